package review

import (
	"sort"
	"strings"

	"github.com/bkyoung/inline-reviewer/internal/diff"
	"github.com/bkyoung/inline-reviewer/internal/domain"
)

// Validate filters untrusted candidates down to comments that provably land
// on an added line of the supplied file diffs.
//
// Candidates are processed in input order. A candidate is dropped when its
// path or body is empty, its path matches no known file even after suffix
// reconciliation, its anchor resolves to no added line, or (under
// AddressByPosition) the resolved line has no patch position. Drops are
// silent: an empty result is a legitimate outcome.
//
// At most maxComments results are emitted; a non-positive maxComments
// disables the cap. The function is pure and safe for concurrent use.
func Validate(candidates []domain.CandidateComment, files []domain.FileDiff, mode domain.AddressingMode, maxComments int) []domain.ValidatedComment {
	added := make(map[string]map[int]string, len(files))
	positions := make(map[string]map[int]int, len(files))
	for _, f := range files {
		if f.Path == "" {
			continue
		}
		parsed := diff.Parse(f.Patch)
		added[f.Path] = parsed.AddedLines()
		if mode == domain.AddressByPosition {
			positions[f.Path] = parsed.Positions()
		}
	}
	return ValidateIndexed(candidates, added, positions, mode, maxComments)
}

// ValidateIndexed is Validate over pre-built per-file indexes: added maps
// new-file line numbers to added-line text per path, positions maps them to
// absolute patch positions (consulted only under AddressByPosition).
func ValidateIndexed(candidates []domain.CandidateComment, added map[string]map[int]string, positions map[string]map[int]int, mode domain.AddressingMode, maxComments int) []domain.ValidatedComment {
	knownPaths := make([]string, 0, len(added))
	for p := range added {
		knownPaths = append(knownPaths, p)
	}
	sort.Strings(knownPaths)

	var valid []domain.ValidatedComment
	for _, c := range candidates {
		body := strings.TrimSpace(c.Body)
		if c.Path == "" || body == "" {
			continue
		}

		path := c.Path
		lineMap, ok := added[path]
		if !ok {
			path, ok = reconcilePath(c.Path, knownPaths)
			if !ok {
				continue
			}
			lineMap = added[path]
		}

		line, ok := Resolve(lineMap, c.NewLine, c.Code, body)
		if !ok {
			continue
		}

		vc := domain.ValidatedComment{
			Path:    path,
			NewLine: line,
			Body:    body,
		}
		if mode == domain.AddressByPosition {
			pos, ok := positions[path][line]
			if !ok {
				// The line map and position map disagree; refusing to emit
				// beats posting a comment the platform cannot place.
				continue
			}
			vc.Position = &pos
		}

		valid = append(valid, vc)
		if maxComments > 0 && len(valid) >= maxComments {
			break
		}
	}
	return valid
}

// reconcilePath matches a candidate path against known file paths when an
// exact lookup failed. A known path matches when either string is a suffix of
// the other; the winner is the match with the longest shared suffix, with
// lexicographic order breaking ties. knownPaths must be sorted.
func reconcilePath(candidate string, knownPaths []string) (string, bool) {
	best := ""
	bestLen := -1
	for _, k := range knownPaths {
		var shared int
		switch {
		case strings.HasSuffix(k, candidate):
			shared = len(candidate)
		case strings.HasSuffix(candidate, k):
			shared = len(k)
		default:
			continue
		}
		if shared > bestLen {
			best = k
			bestLen = shared
		}
	}
	return best, bestLen >= 0
}
