package review

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/bkyoung/inline-reviewer/internal/domain"
)

var (
	// Greedy so that fenced code examples inside comment bodies stay intact:
	// match from the first opening fence to the last closing one.
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*([\\s\\S]*)```")
	jsonObjectRe  = regexp.MustCompile(`\{[\s\S]*\}`)
)

// rawCandidate tolerates the loose typing of model output: numbers may
// arrive as integers or floats, any field may be missing.
type rawCandidate struct {
	NewPath string      `json:"new_path"`
	NewLine json.Number `json:"new_line"`
	Body    string      `json:"body"`
	Code    string      `json:"code"`
}

// ParseCandidates extracts candidate comments from model output text.
// Accepted shapes are {"comments": [...]} and a bare array, optionally
// wrapped in markdown fences or surrounded by stray prose. Anything
// unparseable yields an empty slice, never an error.
func ParseCandidates(text string) []domain.CandidateComment {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil
	}

	if m := fencedBlockRe.FindStringSubmatch(s); len(m) > 1 {
		s = strings.TrimSpace(m[1])
	}

	if out, ok := decodeCandidates(s); ok {
		return out
	}

	// Stray prose around the payload: retry on the widest object span.
	if m := jsonObjectRe.FindString(s); m != "" {
		if out, ok := decodeCandidates(m); ok {
			return out
		}
	}

	return nil
}

func decodeCandidates(s string) ([]domain.CandidateComment, bool) {
	var wrapper struct {
		Comments []rawCandidate `json:"comments"`
	}
	if err := json.Unmarshal([]byte(s), &wrapper); err == nil && wrapper.Comments != nil {
		return mapCandidates(wrapper.Comments), true
	}

	var list []rawCandidate
	if err := json.Unmarshal([]byte(s), &list); err == nil {
		return mapCandidates(list), true
	}

	return nil, false
}

func mapCandidates(raw []rawCandidate) []domain.CandidateComment {
	out := make([]domain.CandidateComment, 0, len(raw))
	for _, r := range raw {
		out = append(out, domain.CandidateComment{
			Path:    r.NewPath,
			NewLine: coerceLine(r.NewLine),
			Body:    strings.TrimSpace(r.Body),
			Code:    strings.TrimSpace(r.Code),
		})
	}
	return out
}

// coerceLine converts a loosely typed line number to an int, defaulting to 0.
func coerceLine(n json.Number) int {
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	if f, err := n.Float64(); err == nil {
		return int(f)
	}
	return 0
}
