package brief

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sarahdorsten/newsletter-digest/internal/gmail"
)

const (
	rankContextLimit  = 2000
	previousLimit     = 4000
	newsletterLimit   = 12000
	deepTextLimit     = 3000
	summaryTextLimit  = 500
	isoDateTimeFormat = "2006-01-02T15:04:05Z"
)

type rankEntry struct {
	Title  string `yaml:"title"`
	Source string `yaml:"source"`
	Date   string `yaml:"date"`
	Index  int    `yaml:"index"`
}

type deepEntry struct {
	Title  string `yaml:"title"`
	Source string `yaml:"source"`
	Date   string `yaml:"date"`
	Text   string `yaml:"text"`
	URL    string `yaml:"url,omitempty"`
}

type summaryEntry struct {
	Title     string `yaml:"title"`
	Source    string `yaml:"source"`
	Date      string `yaml:"date"`
	BriefText string `yaml:"brief_text"`
}

const rankInstructions = `You are filtering AI newsletters for a product and engineering team that builds with AI every day.

TEAM FOCUS:
%s

NEWSLETTERS TO PRIORITIZE:
%s
Return only JSON with two lists of indexes:
{"high_priority": [0, 5, 12], "medium_priority": [2, 8, 15]}

Rank highest: new or updated tools the team could adopt, agent and workflow patterns, practical write-ups of real implementations.
Skip: pure research, consumer features, funding news and general hype.
Give extra weight to the most recent items.`

func rankPrompt(items []*gmail.Newsletter, teamContext string) (string, error) {
	entries := make([]rankEntry, len(items))
	for i, it := range items {
		entries[i] = rankEntry{
			Title:  it.Title,
			Source: it.Source,
			Date:   it.Date.UTC().Format("2006-01-02"),
			Index:  i,
		}
	}

	list, err := yaml.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode newsletter list: %w", err)
	}
	return fmt.Sprintf(rankInstructions, truncate(teamContext, rankContextLimit), list), nil
}

type analysisInput struct {
	window      Window
	teamContext string
	previous    string
	deep        []*gmail.Newsletter
	summary     []*gmail.Newsletter
}

func analysisPrompt(in analysisInput) (string, error) {
	deep := make([]deepEntry, len(in.deep))
	for i, it := range in.deep {
		deep[i] = deepEntry{
			Title:  it.Title,
			Source: it.Source,
			Date:   it.Date.UTC().Format(isoDateTimeFormat),
			Text:   truncate(it.Text, deepTextLimit),
			URL:    it.Link(),
		}
	}
	deepYAML, err := yaml.Marshal(deep)
	if err != nil {
		return "", fmt.Errorf("failed to encode newsletters: %w", err)
	}

	var b strings.Builder
	b.WriteString("You write a weekly AI brief for one specific team. Turn this week's newsletters into analysis that is useful for their work, their clients and their tools.\n\n")
	b.WriteString("TEAM CONTEXT (connect every item to this):\n")
	b.WriteString(in.teamContext)
	b.WriteString("\n\nPREVIOUS BRIEFS (build on them, do not repeat them):\n")
	b.WriteString(truncate(in.previous, previousLimit))
	fmt.Fprintf(&b, "\n\nNEWSLETTERS FROM %s:\n", strings.ToUpper(in.window.Display))
	b.WriteString(truncate(string(deepYAML), newsletterLimit))

	if len(in.summary) > 0 {
		summary := make([]summaryEntry, len(in.summary))
		for i, it := range in.summary {
			summary[i] = summaryEntry{
				Title:     it.Title,
				Source:    it.Source,
				Date:      it.Date.UTC().Format(isoDateTimeFormat),
				BriefText: truncate(it.Text, summaryTextLimit),
			}
		}
		summaryYAML, err := yaml.Marshal(summary)
		if err != nil {
			return "", fmt.Errorf("failed to encode newsletter summaries: %w", err)
		}
		b.WriteString("\nALSO THIS WEEK (lower priority, mention only when relevant):\n")
		b.Write(summaryYAML)
	}

	fmt.Fprintf(&b, `
Write the brief in Markdown using exactly this outline:

# Weekly AI Brief — %s

## What this means for your team

6-10 items. For each:

**[Headline]** (Source, Date)

**What it is:**
[The facts: what changed or was announced.]

**What it means for you:**
[How it connects to the team's projects, tools and recent discussions, with a concrete next step.]

## Worth keeping an eye on

2-4 early signals. For each:
**[Trend]** (Source, Date)
[One or two paragraphs.]
→ Worth watching: [why this team should track it]

## Things to try this week

3-5 experiments. For each:
**[Action]** → Solves: [team problem] → Time: [estimate]
• [two or three concrete steps]

---
**Sources:** [every newsletter, meeting and email used, with links]

Rules: every item must reference the team context; name people, projects and tools where relevant; include dates; be specific rather than abstract.`, in.window.Display)

	return b.String(), nil
}
