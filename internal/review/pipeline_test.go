package review_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/inline-reviewer/internal/domain"
	"github.com/bkyoung/inline-reviewer/internal/review"
)

func fileDiff(path, patch string) domain.FileDiff {
	return domain.FileDiff{Path: path, Status: domain.FileStatusModified, Patch: patch}
}

func TestValidate_LineMode(t *testing.T) {
	files := []domain.FileDiff{
		fileDiff("pkg/math.go", "@@ -1,2 +1,3 @@\n a\n+sum := x + y\n c\n"),
	}
	candidates := []domain.CandidateComment{
		{Path: "pkg/math.go", NewLine: 2, Code: "sum := x + y", Body: "name this"},
	}

	out := review.Validate(candidates, files, domain.AddressByLine, 10)
	require.Len(t, out, 1)
	assert.Equal(t, "pkg/math.go", out[0].Path)
	assert.Equal(t, 2, out[0].NewLine)
	assert.Nil(t, out[0].Position, "line mode carries no position")
}

func TestValidate_PositionMode(t *testing.T) {
	files := []domain.FileDiff{
		fileDiff("pkg/math.go", "@@ -1,2 +1,3 @@\n a\n+sum := x + y\n c\n"),
	}
	candidates := []domain.CandidateComment{
		{Path: "pkg/math.go", NewLine: 2, Code: "sum := x + y", Body: "name this"},
	}

	out := review.Validate(candidates, files, domain.AddressByPosition, 10)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Position)
	assert.Equal(t, 2, *out[0].Position)
}

func TestValidateIndexed_MissingPositionDropsCandidate(t *testing.T) {
	added := map[string]map[int]string{
		"f.py": {5: "return x"},
	}
	positions := map[string]map[int]int{
		"f.py": {}, // line 5 resolves but has no position: internal inconsistency
	}
	candidates := []domain.CandidateComment{
		{Path: "f.py", NewLine: 5, Code: "return x", Body: "bug"},
	}

	out := review.ValidateIndexed(candidates, added, positions, domain.AddressByPosition, 10)
	assert.Empty(t, out, "a candidate without a position is dropped, not emitted bare")
}

func TestValidate_MaxCommentsCapsInInputOrder(t *testing.T) {
	files := []domain.FileDiff{
		fileDiff("f.go", "@@ -1,1 +1,4 @@\n z\n+one\n+two\n+three\n"),
	}
	candidates := []domain.CandidateComment{
		{Path: "f.go", NewLine: 2, Code: "one", Body: "A"},
		{Path: "f.go", NewLine: 3, Code: "two", Body: "B"},
		{Path: "f.go", NewLine: 4, Code: "three", Body: "C"},
	}

	out := review.Validate(candidates, files, domain.AddressByLine, 1)
	require.Len(t, out, 1)
	assert.Equal(t, "A", out[0].Body)
}

func TestValidate_OutputNeverExceedsInput(t *testing.T) {
	files := []domain.FileDiff{
		fileDiff("f.go", "@@ -1,1 +1,2 @@\n z\n+one\n"),
	}
	candidates := []domain.CandidateComment{
		{Path: "f.go", NewLine: 2, Code: "one", Body: "A"},
	}

	out := review.Validate(candidates, files, domain.AddressByLine, 50)
	assert.LessOrEqual(t, len(out), len(candidates))
}

func TestValidate_DropsEmptyPathAndBody(t *testing.T) {
	files := []domain.FileDiff{
		fileDiff("f.go", "@@ -1,1 +1,2 @@\n z\n+one\n"),
	}
	candidates := []domain.CandidateComment{
		{Path: "", NewLine: 2, Code: "one", Body: "no path"},
		{Path: "f.go", NewLine: 2, Code: "one", Body: "   "},
	}

	out := review.Validate(candidates, files, domain.AddressByLine, 10)
	assert.Empty(t, out)
}

func TestValidate_UnknownPathDropped(t *testing.T) {
	files := []domain.FileDiff{
		fileDiff("src/app/f.go", "@@ -1,1 +1,2 @@\n z\n+one\n"),
	}
	candidates := []domain.CandidateComment{
		{Path: "elsewhere/g.go", NewLine: 2, Code: "one", Body: "wrong file"},
	}

	out := review.Validate(candidates, files, domain.AddressByLine, 10)
	assert.Empty(t, out)
}

func TestValidate_SuffixPathReconciliation(t *testing.T) {
	files := []domain.FileDiff{
		fileDiff("src/app/f.py", "@@ -1,1 +1,2 @@\n z\n+return x\n"),
	}
	candidates := []domain.CandidateComment{
		// The model abbreviated the path.
		{Path: "app/f.py", NewLine: 2, Code: "return x", Body: "check"},
	}

	out := review.Validate(candidates, files, domain.AddressByLine, 10)
	require.Len(t, out, 1)
	assert.Equal(t, "src/app/f.py", out[0].Path, "emitted path is the known one")
}

func TestValidate_SuffixTieBreaksLexicographically(t *testing.T) {
	patch := "@@ -1,1 +1,2 @@\n z\n+return x\n"
	files := []domain.FileDiff{
		fileDiff("b/util/f.py", patch),
		fileDiff("a/util/f.py", patch),
	}
	candidates := []domain.CandidateComment{
		{Path: "f.py", NewLine: 2, Code: "return x", Body: "check"},
	}

	out := review.Validate(candidates, files, domain.AddressByLine, 10)
	require.Len(t, out, 1)
	assert.Equal(t, "a/util/f.py", out[0].Path)
}

func TestValidate_LongestSharedSuffixWinsOverLexicographic(t *testing.T) {
	patch := "@@ -1,1 +1,2 @@\n z\n+return x\n"
	files := []domain.FileDiff{
		fileDiff("f.py", patch),
		fileDiff("z/util/f.py", patch),
	}
	candidates := []domain.CandidateComment{
		{Path: "util/f.py", NewLine: 2, Code: "return x", Body: "check"},
	}

	out := review.Validate(candidates, files, domain.AddressByLine, 10)
	require.Len(t, out, 1)
	assert.Equal(t, "z/util/f.py", out[0].Path)
}

func TestValidate_EmptyInputsYieldEmptyResult(t *testing.T) {
	assert.Empty(t, review.Validate(nil, nil, domain.AddressByLine, 10))
	assert.Empty(t, review.Validate([]domain.CandidateComment{{Path: "f", Body: "b"}}, nil, domain.AddressByLine, 10))
}
