package diff

import (
	"regexp"
	"strconv"
	"strings"
)

// LineKind classifies a physical line inside a diff hunk.
type LineKind int

const (
	// KindContext is an unchanged line (leading space). Advances both cursors.
	KindContext LineKind = iota
	// KindAdded is an added line (leading '+', not '+++'). Advances the new cursor.
	KindAdded
	// KindRemoved is a removed line (leading '-', not '---'). Advances the old cursor.
	KindRemoved
	// KindNoNewline is a '\ No newline at end of file' marker. Counted like context.
	KindNoNewline
	// KindUnknown is any line that fits no other kind, including everything
	// that follows a malformed hunk header. The new cursor advances
	// best-effort so that later lines keep plausible numbers.
	KindUnknown
)

// Line is one physical line of a hunk body, with both addressing views.
type Line struct {
	Kind    LineKind
	Content string // prefix character stripped where one exists
	NewLine *int   // new-file line number; nil for removed or unknown-cursor lines
	OldLine *int   // old-file line number; nil for added or unknown-cursor lines

	// Position is the absolute patch position: 1-indexed from the first
	// valid @@ header, counting every physical line after it. Zero when the
	// line precedes the first valid header.
	Position int
}

// Hunk is a single @@ block of a unified diff.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// FilePatch is the parsed form of one file's unified diff.
type FilePatch struct {
	Hunks []Hunk
}

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Parse parses unified diff text into ordered hunks. It never fails: empty
// input yields an empty patch and malformed regions degrade to Unknown lines.
func Parse(patch string) FilePatch {
	if patch == "" {
		return FilePatch{}
	}

	lines := strings.Split(patch, "\n")
	if n := len(lines); lines[n-1] == "" {
		// Trailing newline artifact, not a physical line.
		lines = lines[:n-1]
	}

	var result FilePatch
	var current *Hunk

	position := 0
	headerSeen := false

	// Cursors are only meaningful between a valid header and the next
	// malformed one.
	cursorsValid := false
	newCursor := 0
	oldCursor := 0

	flush := func() {
		if current != nil {
			result.Hunks = append(result.Hunks, *current)
			current = nil
		}
	}

	for _, raw := range lines {
		if headerSeen {
			position++
		}

		if strings.HasPrefix(raw, "@@") {
			m := hunkHeaderRe.FindStringSubmatch(raw)
			if m == nil {
				// Line numbering is no longer trustworthy until the next
				// valid header.
				cursorsValid = false
				continue
			}

			flush()
			current = &Hunk{
				OldStart: atoi(m[1]),
				OldLines: atoiOr(m[2], 1),
				NewStart: atoi(m[3]),
				NewLines: atoiOr(m[4], 1),
			}
			oldCursor = current.OldStart
			newCursor = current.NewStart
			cursorsValid = true
			headerSeen = true
			continue
		}

		if current == nil {
			// File headers and noise before the first hunk.
			continue
		}

		line := Line{Position: position}

		if !cursorsValid {
			// Numbering was lost to a malformed header; nothing here can be
			// trusted until the next valid one.
			line.Kind = KindUnknown
			line.Content = raw
			current.Lines = append(current.Lines, line)
			continue
		}

		switch {
		case strings.HasPrefix(raw, "+++"), strings.HasPrefix(raw, "---"):
			line.Kind = KindUnknown
			line.Content = raw
			newCursor++
		case strings.HasPrefix(raw, "+"):
			line.Kind = KindAdded
			line.Content = raw[1:]
			line.NewLine = intPtr(newCursor)
			newCursor++
		case strings.HasPrefix(raw, "-"):
			line.Kind = KindRemoved
			line.Content = raw[1:]
			line.OldLine = intPtr(oldCursor)
			oldCursor++
		case strings.HasPrefix(raw, " "):
			line.Kind = KindContext
			line.Content = raw[1:]
			line.NewLine = intPtr(newCursor)
			line.OldLine = intPtr(oldCursor)
			newCursor++
			oldCursor++
		case strings.HasPrefix(raw, "\\"):
			line.Kind = KindNoNewline
			line.Content = strings.TrimPrefix(raw, "\\")
			newCursor++
		default:
			line.Kind = KindUnknown
			line.Content = raw
			newCursor++
		}

		current.Lines = append(current.Lines, line)
	}

	flush()
	return result
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	return atoi(s)
}

func intPtr(n int) *int {
	v := n
	return &v
}
