package review_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/inline-reviewer/internal/review"
)

func TestParseCandidates_ObjectShape(t *testing.T) {
	text := `{"comments": [{"new_path": "f.go", "new_line": 3, "body": "check", "code": "x := 1"}]}`

	out := review.ParseCandidates(text)
	require.Len(t, out, 1)
	assert.Equal(t, "f.go", out[0].Path)
	assert.Equal(t, 3, out[0].NewLine)
	assert.Equal(t, "check", out[0].Body)
	assert.Equal(t, "x := 1", out[0].Code)
}

func TestParseCandidates_BareArray(t *testing.T) {
	text := `[{"new_path": "f.go", "new_line": 1, "body": "b"}]`

	out := review.ParseCandidates(text)
	require.Len(t, out, 1)
	assert.Equal(t, "f.go", out[0].Path)
}

func TestParseCandidates_MarkdownFences(t *testing.T) {
	text := "```json\n{\"comments\": [{\"new_path\": \"f.go\", \"new_line\": 2, \"body\": \"b\"}]}\n```"

	out := review.ParseCandidates(text)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].NewLine)
}

func TestParseCandidates_ProseAroundObject(t *testing.T) {
	text := "Here is my review:\n{\"comments\": [{\"new_path\": \"f.go\", \"new_line\": 2, \"body\": \"b\"}]}\nHope this helps!"

	out := review.ParseCandidates(text)
	require.Len(t, out, 1)
}

func TestParseCandidates_LooseNumberTypes(t *testing.T) {
	text := `{"comments": [
		{"new_path": "f.go", "new_line": 3.0, "body": "float"},
		{"new_path": "f.go", "body": "absent line"},
		{"new_path": "f.go", "new_line": -4, "body": "negative"}
	]}`

	out := review.ParseCandidates(text)
	require.Len(t, out, 3)
	assert.Equal(t, 3, out[0].NewLine)
	assert.Equal(t, 0, out[1].NewLine)
	assert.Equal(t, -4, out[2].NewLine)
}

func TestParseCandidates_Garbage(t *testing.T) {
	for _, text := range []string{"", "   ", "not json at all", "{broken", "```\nnope\n```"} {
		assert.Empty(t, review.ParseCandidates(text), "input %q", text)
	}
}

func TestParseCandidates_TrimsBodyAndCode(t *testing.T) {
	text := `{"comments": [{"new_path": "f.go", "new_line": 1, "body": "  b  ", "code": "  x  "}]}`

	out := review.ParseCandidates(text)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Body)
	assert.Equal(t, "x", out[0].Code)
}
