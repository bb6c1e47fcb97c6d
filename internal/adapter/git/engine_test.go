package git_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goGit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/bkyoung/inline-reviewer/internal/adapter/git"
	"github.com/bkyoung/inline-reviewer/internal/domain"
)

func TestEngineDiffBetweenBranches(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	repo, err := goGit.PlainInit(tmp, false)
	if err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}

	writeFile(t, tmp, "main.go", "package main\n\nfunc main() {\n\tprintln(\"hello\")\n}\n")
	if _, err := worktree.Add("main.go"); err != nil {
		t.Fatalf("add error: %v", err)
	}
	if _, err := worktree.Commit("initial", &goGit.CommitOptions{Author: defaultSignature()}); err != nil {
		t.Fatalf("commit error: %v", err)
	}
	if err := checkoutBranch(worktree, "feature"); err != nil {
		t.Fatalf("checkout error: %v", err)
	}

	writeFile(t, tmp, "main.go", "package main\n\nfunc main() {\n\tprintln(\"feature\")\n}\n")
	if _, err := worktree.Add("main.go"); err != nil {
		t.Fatalf("add error: %v", err)
	}
	if _, err := worktree.Commit("feature change", &goGit.CommitOptions{Author: defaultSignature()}); err != nil {
		t.Fatalf("feature commit error: %v", err)
	}

	engine := git.NewEngine(tmp)
	diff, err := engine.Diff(ctx, "master", "feature")
	if err != nil {
		t.Fatalf("Diff returned error: %v", err)
	}

	if diff.FromCommitHash == "" || diff.ToCommitHash == "" {
		t.Fatalf("expected commit hashes to be populated: %+v", diff)
	}
	if len(diff.Files) != 1 {
		t.Fatalf("expected 1 file diff, got %d", len(diff.Files))
	}
	if diff.Files[0].Status != domain.FileStatusModified {
		t.Fatalf("expected modified status, got %s", diff.Files[0].Status)
	}
	if !strings.Contains(diff.Files[0].Patch, "feature") {
		t.Fatalf("expected patch to include change: %s", diff.Files[0].Patch)
	}
}

func TestEngineCurrentBranch(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	repo, err := goGit.PlainInit(tmp, false)
	if err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}
	writeFile(t, tmp, "a.txt", "a\n")
	if _, err := worktree.Add("a.txt"); err != nil {
		t.Fatalf("add error: %v", err)
	}
	if _, err := worktree.Commit("initial", &goGit.CommitOptions{Author: defaultSignature()}); err != nil {
		t.Fatalf("commit error: %v", err)
	}
	if err := checkoutBranch(worktree, "feature"); err != nil {
		t.Fatalf("checkout error: %v", err)
	}

	engine := git.NewEngine(tmp)
	branch, err := engine.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch returned error: %v", err)
	}
	if branch != "feature" {
		t.Fatalf("expected feature, got %s", branch)
	}
}

func TestEngineFileAtRef(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	repo, err := goGit.PlainInit(tmp, false)
	if err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}
	writeFile(t, tmp, "app.py", "print('v1')\n")
	if _, err := worktree.Add("app.py"); err != nil {
		t.Fatalf("add error: %v", err)
	}
	if _, err := worktree.Commit("initial", &goGit.CommitOptions{Author: defaultSignature()}); err != nil {
		t.Fatalf("commit error: %v", err)
	}

	engine := git.NewEngine(tmp)

	content, err := engine.FileAtRef(ctx, "master", "app.py")
	if err != nil {
		t.Fatalf("FileAtRef returned error: %v", err)
	}
	if content != "print('v1')\n" {
		t.Fatalf("unexpected content: %q", content)
	}

	missing, err := engine.FileAtRef(ctx, "master", "nope.py")
	if err != nil {
		t.Fatalf("FileAtRef for missing file returned error: %v", err)
	}
	if missing != "" {
		t.Fatalf("expected empty content for missing file, got %q", missing)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write file error: %v", err)
	}
}

func defaultSignature() *object.Signature {
	return &object.Signature{
		Name:  "Test",
		Email: "test@example.com",
		When:  time.Unix(0, 0),
	}
}

func checkoutBranch(worktree *goGit.Worktree, branch string) error {
	return worktree.Checkout(&goGit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	})
}

func TestIsBinaryPatch(t *testing.T) {
	tests := []struct {
		name     string
		patch    string
		expected bool
	}{
		{
			name:     "binary files differ",
			patch:    "Binary files a/image.png and b/image.png differ\n",
			expected: true,
		},
		{
			name:     "GIT binary patch",
			patch:    "GIT binary patch\nliteral 1234\n...",
			expected: true,
		},
		{
			name:     "normal text diff",
			patch:    "@@ -1,3 +1,4 @@\n context\n+added\n",
			expected: false,
		},
		{
			name:     "empty patch",
			patch:    "",
			expected: false,
		},
		{
			name:     "patch mentioning binary in content",
			patch:    "@@ -1,1 +1,1 @@\n-// Binary files are not supported\n+// Binary files are now supported\n",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := git.IsBinaryPatch(tt.patch)
			if got != tt.expected {
				t.Errorf("IsBinaryPatch(%q) = %v, want %v", tt.patch, got, tt.expected)
			}
		})
	}
}
