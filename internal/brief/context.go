package brief

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sarahdorsten/newsletter-digest/internal/config"
	"github.com/sarahdorsten/newsletter-digest/internal/gmail"
	"github.com/sarahdorsten/newsletter-digest/internal/logging"
)

const (
	overviewLimit     = 10000
	meetingLimit      = 4000
	contextEmailLimit = 4000

	previousBriefLines  = 50
	previousBriefPoints = 8
	topicMinLength      = 10
	topicMaxLength      = 100

	// NoTeamContext is used when no overview, meeting notes or context emails exist.
	NoTeamContext = "No team context available."
	// NoPreviousBriefs is used when the archive has no briefs yet.
	NoPreviousBriefs = "No previous briefs found."
)

// LoadTeamContext assembles the team overview, the newest meeting notes and
// any context emails into one prompt section.
func LoadTeamContext(team config.TeamConfig, docs []*gmail.ContextDoc) string {
	var parts []string

	if team.OverviewFile != "" {
		data, err := os.ReadFile(team.OverviewFile)
		if err != nil {
			slog.Warn("team overview not loaded", "path", team.OverviewFile, logging.Err(err))
		} else {
			parts = append(parts, "TEAM CONTEXT:\n"+truncate(string(data), overviewLimit))
		}
	}

	if team.MeetingsDir != "" {
		files, err := newestMarkdown(team.MeetingsDir, team.MeetingsLimit)
		if err != nil {
			slog.Warn("meeting notes not loaded", "dir", team.MeetingsDir, logging.Err(err))
		}
		var meetings []string
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				slog.Warn("skipping meeting note", "path", f, logging.Err(err))
				continue
			}
			meetings = append(meetings, fmt.Sprintf("MEETING: %s\n%s", filepath.Base(f), truncate(string(data), meetingLimit)))
		}
		if len(meetings) > 0 {
			parts = append(parts, "RECENT MEETINGS:\n"+strings.Join(meetings, "\n---\n"))
		}
	}

	if len(docs) > 0 {
		emails := make([]string, 0, len(docs))
		for _, d := range docs {
			emails = append(emails, fmt.Sprintf("EMAIL: %s (%s)\n%s", d.ID, d.Date.Format("2006-01-02"), truncate(d.Text, contextEmailLimit)))
		}
		parts = append(parts, "CONTEXT EMAILS:\n"+strings.Join(emails, "\n---\n"))
	}

	if len(parts) == 0 {
		slog.Warn("no team context loaded, check team paths in the config")
		return NoTeamContext
	}
	return strings.Join(parts, "\n\n")
}

// LoadPreviousBriefs summarises the n newest briefs in dir as
// "section: topic" lines so the model can avoid repeating itself.
func LoadPreviousBriefs(dir string, n int) string {
	files, err := newestMarkdown(dir, n)
	if err != nil || len(files) == 0 {
		return NoPreviousBriefs
	}

	summaries := make([]string, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			slog.Warn("could not read previous brief", "path", f, logging.Err(err))
			continue
		}
		points := briefTopics(string(data))
		summaries = append(summaries, "FILE: "+filepath.Base(f)+"\n"+strings.Join(points, "\n"))
	}
	if len(summaries) == 0 {
		return NoPreviousBriefs
	}
	return strings.Join(summaries, "\n\n---\n\n")
}

// briefTopics extracts up to previousBriefPoints bullet topics from the head
// of a brief, each prefixed with its "## " section heading.
func briefTopics(content string) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > previousBriefLines {
		lines = lines[:previousBriefLines]
	}

	var section string
	var points []string
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "## "):
			section = strings.TrimSpace(line)
		case strings.HasPrefix(line, "• ") && section != "":
			topic := strings.Split(line, "•")[1]
			topic = strings.TrimSpace(strings.SplitN(strings.TrimSpace(topic), "→", 2)[0])
			if len([]rune(topic)) > topicMinLength {
				points = append(points, section+": "+truncate(topic, topicMaxLength))
			}
		}
	}
	if len(points) > previousBriefPoints {
		points = points[:previousBriefPoints]
	}
	return points
}

// newestMarkdown returns up to limit *.md files in dir, newest first by
// modification time.
func newestMarkdown(dir string, limit int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type file struct {
		path  string
		mtime int64
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{path: filepath.Join(dir, e.Name()), mtime: info.ModTime().UnixNano()})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].mtime != files[j].mtime {
			return files[i].mtime > files[j].mtime
		}
		return files[i].path > files[j].path
	})
	if limit >= 0 && len(files) > limit {
		files = files[:limit]
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// truncate returns at most n characters of s.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
