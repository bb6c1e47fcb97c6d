// Package review turns untrusted model output into comments that verifiably
// land on real added lines of a change set.
package review

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// fuzzyThreshold is the minimum similarity ratio for a non-exact anchor
// match. High on purpose: a dropped comment is cheap, a wrong-line comment
// is not.
const fuzzyThreshold = 0.92

var inlineCodeRe = regexp.MustCompile("`([^`]+)`")

// Resolve maps one candidate onto a verified added line of the given
// line-number map. The anchor snippet wins over the body's first
// backtick-delimited span; without either there is nothing reliable to match
// and resolution fails. Exact trimmed-text matches are preferred, with the
// desired line breaking ties by numeric distance; otherwise the best fuzzy
// match above fuzzyThreshold is taken. The returned line is always a key of
// added.
func Resolve(added map[int]string, desiredLine int, anchor, body string) (int, bool) {
	target := strings.TrimSpace(anchor)
	if target == "" {
		target = extractInlineCode(body)
	}
	if target == "" {
		return 0, false
	}

	lines := sortedKeys(added)

	var exact []int
	for _, ln := range lines {
		if strings.TrimSpace(added[ln]) == target {
			exact = append(exact, ln)
		}
	}
	if len(exact) > 0 {
		if desiredLine > 0 {
			return closestLine(exact, desiredLine), true
		}
		return exact[0], true
	}

	bestLine := 0
	bestRatio := 0.0
	for _, ln := range lines {
		r := similarity(strings.TrimSpace(added[ln]), target)
		if r > fuzzyThreshold && r > bestRatio {
			bestRatio = r
			bestLine = ln
		}
	}
	if bestLine > 0 {
		return bestLine, true
	}
	return 0, false
}

// extractInlineCode returns the first backtick-delimited span of the body.
func extractInlineCode(body string) string {
	m := inlineCodeRe.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// similarity is a normalized text-similarity ratio in [0,1], computed over
// characters the way Python's difflib.SequenceMatcher does.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	matcher := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return matcher.Ratio()
}

// closestLine picks the candidate numerically closest to desired. Equidistant
// candidates resolve to the smaller line number because candidates is sorted.
func closestLine(candidates []int, desired int) int {
	best := candidates[0]
	bestDist := abs(best - desired)
	for _, ln := range candidates[1:] {
		if d := abs(ln - desired); d < bestDist {
			best = ln
			bestDist = d
		}
	}
	return best
}

func sortedKeys(m map[int]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
