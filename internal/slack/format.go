package slack

import (
	"strings"
	"unicode/utf8"
)

// Divider replaces Markdown horizontal rules.
const Divider = "\n━━━━━━━━━━━━━━━━━━━━\n"

// FormatForSlack converts the Markdown produced by the brief generator into
// Slack mrkdwn.
func FormatForSlack(md string) string {
	lines := strings.Split(md, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "# "):
			out = append(out, "*"+headingText(line[2:])+"*")
		case strings.HasPrefix(line, "## "):
			out = append(out, "\n*"+headingText(line[3:])+"*")
		case strings.HasPrefix(line, "### "):
			out = append(out, "\n_"+headingText(line[4:])+"_")
		case strings.HasPrefix(line, "- "):
			out = append(out, "• "+bold(strings.TrimSpace(line[2:])))
		case strings.TrimSpace(line) == "---":
			out = append(out, Divider)
		case strings.TrimSpace(line) == "":
			out = append(out, "")
		default:
			out = append(out, bold(line))
		}
	}
	return strings.Join(out, "\n")
}

func headingText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "**", ""))
}

func bold(s string) string {
	return strings.ReplaceAll(s, "**", "*")
}

// SplitBriefAndSources splits md at the first "---" line or the first line
// starting with "**Sources". sources is empty when neither exists.
func SplitBriefAndSources(md string) (brief, sources string) {
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "---" || strings.HasPrefix(trimmed, "**Sources") {
			brief = strings.TrimSpace(strings.Join(lines[:i], "\n"))
			sources = strings.TrimSpace(strings.Join(lines[i:], "\n"))
			return brief, sources
		}
	}
	return md, ""
}

// SplitAtSections splits Slack-formatted text into messages of at most max
// characters, starting a new message at every line that begins with "*".
// A single oversized line is kept whole.
func SplitAtSections(text string, max int) []string {
	var sections []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sections = append(sections, s)
		}
		current.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "*") {
			flush()
			current.WriteString(line + "\n")
			continue
		}

		if utf8.RuneCountInString(current.String())+utf8.RuneCountInString(line)+1 > max &&
			strings.TrimSpace(current.String()) != "" {
			flush()
		}
		current.WriteString(line + "\n")
	}
	flush()

	if len(sections) == 0 {
		return SplitContent(text, max)
	}
	return sections
}

// SplitContent splits text at line boundaries into chunks of at most max
// characters. Lines longer than max are cut.
func SplitContent(text string, max int) []string {
	if utf8.RuneCountInString(text) <= max {
		return []string{text}
	}

	var chunks []string
	var current []rune
	for _, line := range strings.Split(text, "\n") {
		r := []rune(line)
		if len(current)+len(r)+1 <= max {
			current = append(append(current, r...), '\n')
			continue
		}
		if len(current) > 0 {
			chunks = append(chunks, strings.TrimSpace(string(current)))
			current = append(r, '\n')
			continue
		}
		chunks = append(chunks, string(r[:max]))
		current = append(r[max:], '\n')
	}
	if s := strings.TrimSpace(string(current)); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}
