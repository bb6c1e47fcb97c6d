// Package github implements the pull request adapter using the go-github
// library. GitHub addresses inline comments by absolute diff position rather
// than new-file line number, so this adapter consumes the position index
// computed by the diff package.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v82/github"

	"github.com/bkyoung/inline-reviewer/internal/domain"
)

// Client wraps the go-github REST client with the calls the reviewer needs.
type Client struct {
	gh *gh.Client
}

// NewClient creates a GitHub API client authenticated with a personal access
// token.
func NewClient(token string) *Client {
	return &Client{gh: gh.NewClient(nil).WithAuthToken(token)}
}

// NewClientWithHTTPClient creates a Client against a custom base URL. Used by
// tests to point at an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// PullRequestFiles retrieves the changed files of a pull request, including
// each file's unified diff patch. Handles pagination.
func (c *Client) PullRequestFiles(ctx context.Context, repoFullName string, prNumber int) ([]domain.FileDiff, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.ListOptions{PerPage: 100}
	var files []domain.FileDiff

	for {
		pageFiles, resp, err := c.gh.PullRequests.ListFiles(ctx, owner, repo, prNumber, opts)
		if err != nil {
			return nil, fmt.Errorf("listing files for %s#%d (page %d): %w", repoFullName, prNumber, opts.Page, err)
		}

		for _, f := range pageFiles {
			files = append(files, mapFile(f))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return files, nil
}

// PullRequestHead returns the head commit SHA and base ref of a pull request.
// Position comments must reference the head commit.
func (c *Client) PullRequestHead(ctx context.Context, repoFullName string, prNumber int) (headSHA, baseRef string, err error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return "", "", err
	}

	pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, prNumber)
	if err != nil {
		return "", "", fmt.Errorf("fetching %s#%d: %w", repoFullName, prNumber, err)
	}
	return pr.GetHead().GetSHA(), pr.GetBase().GetRef(), nil
}

// FileContent fetches the raw content of a file at a ref. A 404 returns an
// empty string so deleted and newly added files read as absent context.
func (c *Client) FileContent(ctx context.Context, repoFullName, path, ref string) (string, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return "", err
	}

	file, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path,
		&gh.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("fetching %s@%s: %w", path, ref, err)
	}
	if file == nil {
		return "", nil
	}

	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decoding %s@%s: %w", path, ref, err)
	}
	return content, nil
}

// PostPositionComment attaches a comment to a diff position on the head
// commit. The comment's Position must already be resolved against the
// pull request's patches.
func (c *Client) PostPositionComment(ctx context.Context, repoFullName string, prNumber int, commitSHA string, comment domain.ValidatedComment) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}
	if comment.Position == nil {
		return fmt.Errorf("comment on %s has no diff position", comment.Path)
	}

	prComment := &gh.PullRequestComment{
		Body:     gh.Ptr(comment.Body),
		CommitID: gh.Ptr(commitSHA),
		Path:     gh.Ptr(comment.Path),
		Position: gh.Ptr(*comment.Position),
	}
	_, _, err = c.gh.PullRequests.CreateComment(ctx, owner, repo, prNumber, prComment)
	if err != nil {
		return fmt.Errorf("creating position comment on %s#%d at %s:%d: %w",
			repoFullName, prNumber, comment.Path, *comment.Position, err)
	}
	return nil
}

// PostSummaryReview submits a review with a summary body. event must be
// "COMMENT" or "APPROVE".
func (c *Client) PostSummaryReview(ctx context.Context, repoFullName string, prNumber int, body, event string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	review := &gh.PullRequestReviewRequest{
		Body:  gh.Ptr(body),
		Event: gh.Ptr(event),
	}
	_, _, err = c.gh.PullRequests.CreateReview(ctx, owner, repo, prNumber, review)
	if err != nil {
		return fmt.Errorf("creating review for %s#%d: %w", repoFullName, prNumber, err)
	}
	return nil
}

// mapFile converts a go-github CommitFile to the domain representation.
func mapFile(f *gh.CommitFile) domain.FileDiff {
	return domain.FileDiff{
		Path:    f.GetFilename(),
		OldPath: previousPath(f),
		Status:  mapStatus(f.GetStatus()),
		Patch:   f.GetPatch(),
	}
}

func previousPath(f *gh.CommitFile) string {
	if prev := f.GetPreviousFilename(); prev != "" {
		return prev
	}
	return f.GetFilename()
}

func mapStatus(s string) domain.FileStatus {
	switch s {
	case "added":
		return domain.FileStatusAdded
	case "removed":
		return domain.FileStatusDeleted
	case "renamed":
		return domain.FileStatusRenamed
	default:
		return domain.FileStatusModified
	}
}

// splitRepo splits an "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
