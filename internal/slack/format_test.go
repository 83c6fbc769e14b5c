package slack

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForSlack(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "title", in: "# Weekly AI Brief — Nov 01–07", want: "*Weekly AI Brief — Nov 01–07*"},
		{name: "section", in: "## Things to try this week", want: "\n*Things to try this week*"},
		{name: "subsection", in: "### Tools", want: "\n_Tools_"},
		{name: "bullet", in: "- **Try it** now", want: "• *Try it* now"},
		{name: "rule", in: "  ---  ", want: Divider},
		{name: "bold", in: "**Agents SDK** (Latent Space, Nov 3)", want: "*Agents SDK* (Latent Space, Nov 3)"},
		{name: "bold heading", in: "## **Bold** heading", want: "\n*Bold heading*"},
		{name: "plain", in: "Just text.", want: "Just text."},
		{name: "blank", in: "   ", want: ""},
		{
			name: "document",
			in:   "# Title\n\n## Section\n- one\n- two",
			want: "*Title*\n\n\n*Section*\n• one\n• two",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatForSlack(tt.in))
		})
	}
}

func TestSplitBriefAndSources(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantBrief   string
		wantSources string
	}{
		{
			name:        "divider",
			in:          "# Brief\nbody\n\n---\n**Sources:** a, b",
			wantBrief:   "# Brief\nbody",
			wantSources: "---\n**Sources:** a, b",
		},
		{
			name:        "sources heading",
			in:          "# Brief\nbody\n**Sources:**\n- a",
			wantBrief:   "# Brief\nbody",
			wantSources: "**Sources:**\n- a",
		},
		{
			name:      "none",
			in:        "# Brief\nbody",
			wantBrief: "# Brief\nbody",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			brief, sources := SplitBriefAndSources(tt.in)
			assert.Equal(t, tt.wantBrief, brief)
			assert.Equal(t, tt.wantSources, sources)
		})
	}
}

func TestSplitAtSections(t *testing.T) {
	text := "*Title*\nintro\n\n*Item one*\nfirst body\n*Item two*\nsecond body"
	assert.Equal(t, []string{
		"*Title*\nintro",
		"*Item one*\nfirst body",
		"*Item two*\nsecond body",
	}, SplitAtSections(text, 100))
}

func TestSplitAtSections_LongSection(t *testing.T) {
	line := strings.Repeat("a", 40)
	text := "*Header*\n" + strings.Join([]string{line, line, line, line}, "\n")

	sections := SplitAtSections(text, 100)
	require.Len(t, sections, 2)
	assert.Equal(t, "*Header*\n"+line+"\n"+line, sections[0])
	assert.Equal(t, line+"\n"+line, sections[1])
	for _, s := range sections {
		assert.LessOrEqual(t, utf8.RuneCountInString(s), 100)
	}
}

func TestSplitAtSections_NoContent(t *testing.T) {
	assert.Equal(t, []string{"  "}, SplitAtSections("  ", 100))
}

func TestSplitContent(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitContent("short", 10))

	got := SplitContent("aaaa\nbbbb\ncccc", 10)
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, got)

	got = SplitContent(strings.Repeat("é", 25), 10)
	assert.Equal(t, []string{strings.Repeat("é", 10), strings.Repeat("é", 15)}, got)
}
