package schedule

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// DefaultLabel is the launchd job label.
const DefaultLabel = "com.newsletter-digest.weekly"

// Thursday 08:00 local time.
const (
	DefaultWeekday = 4
	DefaultHour    = 8
	DefaultMinute  = 0
)

// PlistConfig describes the launchd agent.
type PlistConfig struct {
	Label            string
	ProgramArguments []string
	WorkingDirectory string
	Weekday          int
	Hour             int
	Minute           int
	StdoutPath       string
	StderrPath       string
	// Environment is passed to the job; launchd agents do not inherit the
	// login shell's environment.
	Environment map[string]string
}

// DefaultPlistConfig runs "<executable> run --config <configPath>" every
// Thursday at 08:00 with logs in logDir.
func DefaultPlistConfig(executable, configPath, logDir string) PlistConfig {
	return PlistConfig{
		Label:            DefaultLabel,
		ProgramArguments: []string{executable, "run", "--config", configPath},
		WorkingDirectory: filepath.Dir(configPath),
		Weekday:          DefaultWeekday,
		Hour:             DefaultHour,
		Minute:           DefaultMinute,
		StdoutPath:       filepath.Join(logDir, "weekly.out.log"),
		StderrPath:       filepath.Join(logDir, "weekly.err.log"),
		Environment:      map[string]string{"PATH": os.Getenv("PATH")},
	}
}

var plistTemplate = template.Must(template.New("plist").Funcs(template.FuncMap{
	"xml": xmlEscape,
}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{xml .Label}}</string>
    <key>ProgramArguments</key>
    <array>
{{- range .ProgramArguments}}
        <string>{{xml .}}</string>
{{- end}}
    </array>
{{- if .WorkingDirectory}}
    <key>WorkingDirectory</key>
    <string>{{xml .WorkingDirectory}}</string>
{{- end}}
    <key>StartCalendarInterval</key>
    <dict>
        <key>Weekday</key>
        <integer>{{.Weekday}}</integer>
        <key>Hour</key>
        <integer>{{.Hour}}</integer>
        <key>Minute</key>
        <integer>{{.Minute}}</integer>
    </dict>
{{- if .Environment}}
    <key>EnvironmentVariables</key>
    <dict>
{{- range $k, $v := .Environment}}
        <key>{{xml $k}}</key>
        <string>{{xml $v}}</string>
{{- end}}
    </dict>
{{- end}}
    <key>StandardOutPath</key>
    <string>{{xml .StdoutPath}}</string>
    <key>StandardErrorPath</key>
    <string>{{xml .StderrPath}}</string>
    <key>RunAtLoad</key>
    <false/>
</dict>
</plist>
`))

// RenderPlist renders the launchd property list for c.
func RenderPlist(c PlistConfig) (string, error) {
	if c.Label == "" {
		return "", fmt.Errorf("plist label is required")
	}
	if len(c.ProgramArguments) == 0 {
		return "", fmt.Errorf("plist program arguments are required")
	}
	if c.Weekday < 0 || c.Weekday > 7 || c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return "", fmt.Errorf("invalid calendar interval: weekday %d, %02d:%02d", c.Weekday, c.Hour, c.Minute)
	}

	var buf bytes.Buffer
	if err := plistTemplate.Execute(&buf, c); err != nil {
		return "", fmt.Errorf("failed to render plist: %w", err)
	}
	return buf.String(), nil
}

func xmlEscape(s string) (string, error) {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
