package brief

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/sarahdorsten/newsletter-digest/internal/gmail"
)

const (
	fallbackHigh   = 15
	fallbackMedium = 25
)

var errNoRankingJSON = errors.New("no JSON object in ranking reply")

// Ranking holds the indexes the rank pass marked as high and medium priority.
type Ranking struct {
	High   []int
	Medium []int
	// Fallback is set when the reply could not be parsed and the ranking is
	// plain chronological order.
	Fallback bool
}

// ParseRanking extracts {"high_priority": [...], "medium_priority": [...]}
// from the first "{" to the last "}" of reply. Indexes outside [0, n) and
// repeated indexes are dropped; an index listed as high is never medium.
func ParseRanking(reply string, n int) (Ranking, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return Ranking{}, errNoRankingJSON
	}

	var raw struct {
		High   []int `json:"high_priority"`
		Medium []int `json:"medium_priority"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return Ranking{}, err
	}

	seen := make(map[int]bool, n)
	clean := func(idx []int) []int {
		out := make([]int, 0, len(idx))
		for _, i := range idx {
			if i < 0 || i >= n || seen[i] {
				continue
			}
			seen[i] = true
			out = append(out, i)
		}
		return out
	}

	r := Ranking{High: clean(raw.High), Medium: clean(raw.Medium)}
	if len(r.High) == 0 && len(r.Medium) == 0 {
		return Ranking{}, errors.New("ranking reply selected no newsletters")
	}
	return r, nil
}

// FallbackRanking ranks n newsletters in their existing (newest first)
// order: the first 15 are high priority and the next 10 medium.
func FallbackRanking(n int) Ranking {
	r := Ranking{Fallback: true}
	for i := 0; i < n && i < fallbackMedium; i++ {
		if i < fallbackHigh {
			r.High = append(r.High, i)
		} else {
			r.Medium = append(r.Medium, i)
		}
	}
	return r
}

// Select picks the deep-analysis and summary newsletters for a ranking.
func Select(items []*gmail.Newsletter, r Ranking, deepLimit, summaryLimit int) (deep, summary []*gmail.Newsletter) {
	pick := func(idx []int, limit int) []*gmail.Newsletter {
		out := make([]*gmail.Newsletter, 0, min(len(idx), limit))
		for _, i := range idx {
			if len(out) == limit {
				break
			}
			if i >= 0 && i < len(items) {
				out = append(out, items[i])
			}
		}
		return out
	}
	return pick(r.High, deepLimit), pick(r.Medium, summaryLimit)
}
