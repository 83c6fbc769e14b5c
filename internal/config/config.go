package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the YAML file leaves a field unset.
const (
	DefaultLookbackDays       = 30
	DefaultWindowDays         = 7
	DefaultTimezone           = "America/Denver"
	DefaultTwoStageThreshold  = 20
	DefaultDeepLimit          = 20
	DefaultSummaryLimit       = 10
	DefaultModel              = "claude-3-7-sonnet-20250219"
	DefaultRankMaxTokens      = 800
	DefaultAnalyzeMaxTokens   = 8000
	DefaultAnalyzeTemperature = 0.3
	DefaultMeetingsLimit      = 3
	DefaultOutputDir          = "summaries/weekly"
	DefaultSlackChannel       = "#ai-brief"
	DefaultCredentialsFile    = "credentials.json"
	DefaultTokenFile          = "token.json"
	DefaultSchedule           = "0 8 * * 4"
)

// Environment variables holding secrets.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvSlackBotToken   = "SLACK_BOT_TOKEN"
	EnvSlackChannel    = "SLACK_CHANNEL"
)

// ErrMissingQuery is returned when news_query is empty.
var ErrMissingQuery = errors.New("news_query is required")

// Config is the full runtime configuration.
type Config struct {
	NewsQuery    string `yaml:"news_query"`
	ContextQuery string `yaml:"context_query"`

	LookbackDays int    `yaml:"lookback_days"`
	WindowDays   int    `yaml:"window_days"`
	Timezone     string `yaml:"timezone"`

	TwoStageThreshold int `yaml:"two_stage_threshold"`
	DeepLimit         int `yaml:"deep_limit"`
	SummaryLimit      int `yaml:"summary_limit"`

	Model              string   `yaml:"model"`
	RankMaxTokens      int      `yaml:"rank_max_tokens"`
	AnalyzeMaxTokens   int      `yaml:"analyze_max_tokens"`
	AnalyzeTemperature *float64 `yaml:"analyze_temperature"`

	// Schedule is the cron spec used by the daemon command.
	Schedule string `yaml:"schedule"`

	Team    TeamConfig    `yaml:"team"`
	Output  OutputConfig  `yaml:"output"`
	Slack   SlackConfig   `yaml:"slack"`
	Google  GoogleConfig  `yaml:"google"`
	History HistoryConfig `yaml:"history"`

	// Secrets, populated from the environment.
	AnthropicAPIKey string `yaml:"-"`
	SlackBotToken   string `yaml:"-"`

	// Dir is the directory the config file was loaded from.
	Dir string `yaml:"-"`

	location *time.Location
}

// TeamConfig points at the files that describe the reader's team.
type TeamConfig struct {
	OverviewFile  string `yaml:"overview_file"`
	MeetingsDir   string `yaml:"meetings_dir"`
	MeetingsLimit int    `yaml:"meetings_limit"`
}

// OutputConfig controls where generated briefs are archived.
type OutputConfig struct {
	Dir        string   `yaml:"dir"`
	MirrorDirs []string `yaml:"mirror_dirs"`
}

// SlackConfig controls delivery to Slack.
type SlackConfig struct {
	Channel    string `yaml:"channel"`
	WebBaseURL string `yaml:"web_base_url"`
	// APIURL overrides the Slack Web API base URL. Used by tests.
	APIURL string `yaml:"api_url"`
}

// GoogleConfig points at the Gmail OAuth client and token cache.
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
}

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML file at path, merges environment secrets, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", abs, err)
	}

	dir := filepath.Dir(abs)
	envFile := filepath.Join(dir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Dir = dir
	cfg.ApplyEnv()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML and fills in defaults. It does not touch the
// environment or the filesystem.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// An explicit zero limit is kept so Validate can reject it instead of
	// silently taking the default.
	var limits struct {
		TwoStageThreshold *int `yaml:"two_stage_threshold"`
		DeepLimit         *int `yaml:"deep_limit"`
		SummaryLimit      *int `yaml:"summary_limit"`
	}
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if limits.TwoStageThreshold != nil {
		cfg.TwoStageThreshold = *limits.TwoStageThreshold
	}
	if limits.DeepLimit != nil {
		cfg.DeepLimit = *limits.DeepLimit
	}
	if limits.SummaryLimit != nil {
		cfg.SummaryLimit = *limits.SummaryLimit
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LookbackDays == 0 {
		c.LookbackDays = DefaultLookbackDays
	}
	if c.WindowDays == 0 {
		c.WindowDays = DefaultWindowDays
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.TwoStageThreshold == 0 {
		c.TwoStageThreshold = DefaultTwoStageThreshold
	}
	if c.DeepLimit == 0 {
		c.DeepLimit = DefaultDeepLimit
	}
	if c.SummaryLimit == 0 {
		c.SummaryLimit = DefaultSummaryLimit
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.RankMaxTokens == 0 {
		c.RankMaxTokens = DefaultRankMaxTokens
	}
	if c.AnalyzeMaxTokens == 0 {
		c.AnalyzeMaxTokens = DefaultAnalyzeMaxTokens
	}
	if c.AnalyzeTemperature == nil {
		t := DefaultAnalyzeTemperature
		c.AnalyzeTemperature = &t
	}
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.Team.MeetingsLimit == 0 {
		c.Team.MeetingsLimit = DefaultMeetingsLimit
	}
	if c.Output.Dir == "" {
		c.Output.Dir = DefaultOutputDir
	}
	if c.Slack.Channel == "" {
		c.Slack.Channel = DefaultSlackChannel
	}
	if c.Google.CredentialsFile == "" {
		c.Google.CredentialsFile = DefaultCredentialsFile
	}
	if c.Google.TokenFile == "" {
		c.Google.TokenFile = DefaultTokenFile
	}
}

// ApplyEnv copies secrets and overrides from the environment.
func (c *Config) ApplyEnv() {
	c.AnthropicAPIKey = os.Getenv(EnvAnthropicAPIKey)
	c.SlackBotToken = os.Getenv(EnvSlackBotToken)
	if ch := os.Getenv(EnvSlackChannel); ch != "" {
		c.Slack.Channel = ch
	}
}

func (c *Config) resolvePaths() {
	c.Team.OverviewFile = c.resolve(c.Team.OverviewFile)
	c.Team.MeetingsDir = c.resolve(c.Team.MeetingsDir)
	c.Output.Dir = c.resolve(c.Output.Dir)
	for i, d := range c.Output.MirrorDirs {
		c.Output.MirrorDirs[i] = c.resolve(d)
	}
	c.Google.CredentialsFile = c.resolve(c.Google.CredentialsFile)
	c.Google.TokenFile = c.resolve(c.Google.TokenFile)
	c.History.Path = c.resolve(c.History.Path)
}

func (c *Config) resolve(p string) string {
	if p == "" {
		return ""
	}
	p = ExpandHome(p)
	if filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.NewsQuery) == "" {
		return ErrMissingQuery
	}

	for name, v := range map[string]int{
		"lookback_days":       c.LookbackDays,
		"window_days":         c.WindowDays,
		"two_stage_threshold": c.TwoStageThreshold,
		"deep_limit":          c.DeepLimit,
		"summary_limit":       c.SummaryLimit,
		"rank_max_tokens":     c.RankMaxTokens,
		"analyze_max_tokens":  c.AnalyzeMaxTokens,
		"team.meetings_limit": c.Team.MeetingsLimit,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}

	for name, v := range map[string]int{
		"two_stage_threshold": c.TwoStageThreshold,
		"deep_limit":          c.DeepLimit,
		"summary_limit":       c.SummaryLimit,
	} {
		if v == 0 {
			return fmt.Errorf("%s must be positive, got 0", name)
		}
	}

	if c.LookbackDays < c.WindowDays {
		return fmt.Errorf("lookback_days (%d) must cover window_days (%d)", c.LookbackDays, c.WindowDays)
	}

	if t := *c.AnalyzeTemperature; t < 0 || t > 1 {
		return fmt.Errorf("analyze_temperature must be between 0.0 and 1.0, got %f", t)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.location = loc

	return nil
}

// Location returns the coverage window time zone. Validate must have run.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// SlackEnabled reports whether a bot token is available for delivery.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != ""
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
