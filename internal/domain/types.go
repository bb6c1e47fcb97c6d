package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FileStatus classifies how a file changed within a diff.
type FileStatus string

const (
	FileStatusAdded    FileStatus = "added"
	FileStatusModified FileStatus = "modified"
	FileStatusDeleted  FileStatus = "deleted"
	FileStatusRenamed  FileStatus = "renamed"
)

// AddressingMode selects how a platform addresses an inline diff comment.
type AddressingMode int

const (
	// AddressByLine targets comments by new-file line number (GitLab
	// discussions).
	AddressByLine AddressingMode = iota
	// AddressByPosition targets comments by absolute patch position
	// (GitHub review comments).
	AddressByPosition
)

// Diff represents the full change set of one review cycle.
type Diff struct {
	FromCommitHash string
	ToCommitHash   string
	Files          []FileDiff
}

// FileDiff captures the unified diff for a single file.
// Path is the new path, or the old path for deletions.
type FileDiff struct {
	Path     string
	OldPath  string
	Status   FileStatus
	Patch    string
	IsBinary bool
}

// CandidateComment is an untrusted, model-proposed inline comment. Any field
// may be empty, stale, or plain wrong; validation decides what survives.
type CandidateComment struct {
	Path    string `json:"new_path"`
	NewLine int    `json:"new_line"`
	Body    string `json:"body"`
	Code    string `json:"code"`
}

// ValidatedComment references a verified added line of a real FileDiff.
// Position is set only under AddressByPosition.
type ValidatedComment struct {
	Path     string
	NewLine  int
	Position *int
	Body     string
}

// Fingerprint returns a deterministic identity for the comment, used to
// avoid reposting the same note when a webhook fires again for the same
// change request.
func (c ValidatedComment) Fingerprint() string {
	payload := fmt.Sprintf("%s|%d|%s", c.Path, c.NewLine, c.Body)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Review is the outcome of one review cycle.
type Review struct {
	Summary  string
	Comments []ValidatedComment
}

// OldFile is a pre-change file fetched for model context.
type OldFile struct {
	Name    string
	Content string
}
