// Package git computes diffs from a local repository, backing the local
// review mode where no platform API is involved.
package git

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	goGit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	formatdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/bkyoung/inline-reviewer/internal/domain"
)

// Engine produces unified diffs between committed refs using go-git.
type Engine struct {
	repoDir string
}

// NewEngine constructs an Engine for the provided repository directory.
func NewEngine(repoDir string) *Engine {
	return &Engine{repoDir: repoDir}
}

// Diff computes the per-file unified diff between two committed refs.
func (e *Engine) Diff(ctx context.Context, baseRef, targetRef string) (domain.Diff, error) {
	repo, err := goGit.PlainOpenWithOptions(e.repoDir, &goGit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return domain.Diff{}, fmt.Errorf("open repo: %w", err)
	}

	baseCommit, err := resolveCommit(repo, baseRef)
	if err != nil {
		return domain.Diff{}, fmt.Errorf("resolve base ref: %w", err)
	}

	targetCommit, err := resolveCommit(repo, targetRef)
	if err != nil {
		return domain.Diff{}, fmt.Errorf("resolve target ref: %w", err)
	}

	patch, err := baseCommit.PatchContext(ctx, targetCommit)
	if err != nil {
		return domain.Diff{}, fmt.Errorf("compute patch: %w", err)
	}

	fileDiffs := make([]domain.FileDiff, 0, len(patch.FilePatches()))
	for _, fp := range patch.FilePatches() {
		path, oldPath, status := diffPathAndStatus(fp)
		patchText, err := encodeFilePatch(fp)
		if err != nil {
			return domain.Diff{}, fmt.Errorf("encode patch: %w", err)
		}
		fileDiffs = append(fileDiffs, domain.FileDiff{
			Path:     path,
			OldPath:  oldPath,
			Status:   status,
			Patch:    patchText,
			IsBinary: IsBinaryPatch(patchText),
		})
	}

	return domain.Diff{
		FromCommitHash: baseCommit.Hash.String(),
		ToCommitHash:   targetCommit.Hash.String(),
		Files:          fileDiffs,
	}, nil
}

// CurrentBranch returns the name of the checked-out branch.
func (e *Engine) CurrentBranch(ctx context.Context) (string, error) {
	repo, err := goGit.PlainOpenWithOptions(e.repoDir, &goGit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	name := head.Name()
	if name.IsBranch() {
		return name.Short(), nil
	}
	return "", fmt.Errorf("detached HEAD")
}

// FileAtRef returns the content of a file at a given ref, or an empty string
// when the file does not exist there. Used to provide pre-change context for
// the model without a platform round trip.
func (e *Engine) FileAtRef(ctx context.Context, ref, path string) (string, error) {
	repo, err := goGit.PlainOpenWithOptions(e.repoDir, &goGit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	commit, err := resolveCommit(repo, ref)
	if err != nil {
		return "", fmt.Errorf("resolve ref: %w", err)
	}
	file, err := commit.File(path)
	if err != nil {
		if err == object.ErrFileNotFound {
			return "", nil
		}
		return "", fmt.Errorf("read %s@%s: %w", path, ref, err)
	}
	return file.Contents()
}

func resolveCommit(repo *goGit.Repository, ref string) (*object.Commit, error) {
	candidates := []string{
		ref,
		fmt.Sprintf("refs/heads/%s", ref),
		fmt.Sprintf("refs/remotes/origin/%s", ref),
	}

	var lastErr error
	for _, candidate := range candidates {
		name := plumbing.Revision(candidate)
		hash, err := repo.ResolveRevision(name)
		if err != nil {
			lastErr = err
			continue
		}
		return repo.CommitObject(*hash)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("unable to resolve ref %s", ref)
}

// diffPathAndStatus returns the path, old path (for renames), and status for
// a file patch. For non-renames, oldPath is empty.
func diffPathAndStatus(fp formatdiff.FilePatch) (path, oldPath string, status domain.FileStatus) {
	from, to := fp.Files()

	switch {
	case from == nil && to != nil:
		return to.Path(), "", domain.FileStatusAdded
	case from != nil && to == nil:
		return from.Path(), "", domain.FileStatusDeleted
	case from != nil && to != nil:
		if from.Path() != to.Path() {
			return to.Path(), from.Path(), domain.FileStatusRenamed
		}
		return to.Path(), "", domain.FileStatusModified
	default:
		return "", "", domain.FileStatusModified
	}
}

// IsBinaryPatch checks if a patch represents a binary file. Git marks these
// with "Binary files ... differ" or "GIT binary patch". Only lines starting
// with the marker count, so diff content mentioning binary files does not
// trigger a match.
func IsBinaryPatch(patchText string) bool {
	for _, line := range strings.Split(patchText, "\n") {
		if strings.HasPrefix(line, "Binary files ") || strings.HasPrefix(line, "GIT binary patch") {
			return true
		}
	}
	return false
}

func encodeFilePatch(fp formatdiff.FilePatch) (string, error) {
	var buf bytes.Buffer
	encoder := formatdiff.NewUnifiedEncoder(&buf, formatdiff.DefaultContextLines)
	if err := encoder.Encode(singlePatch{fp: fp}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type singlePatch struct {
	fp formatdiff.FilePatch
}

func (s singlePatch) FilePatches() []formatdiff.FilePatch {
	return []formatdiff.FilePatch{s.fp}
}

func (s singlePatch) Message() string {
	return ""
}
