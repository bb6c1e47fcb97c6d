// Package gitlab implements a GitLab REST v4 client covering the calls the
// reviewer needs: branch compares, merge request changes and diff refs, raw
// file fetches, and posting notes and inline discussions.
package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bkyoung/inline-reviewer/internal/domain"
)

const defaultTimeout = 30 * time.Second

// DiffRefs are the commit SHAs GitLab requires to position an inline
// discussion on a merge request diff.
type DiffRefs struct {
	BaseSHA  string `json:"base_sha"`
	StartSHA string `json:"start_sha"`
	HeadSHA  string `json:"head_sha"`
}

// Client talks to the GitLab REST API using a private token.
type Client struct {
	apiURL string
	token  string
	client *http.Client
}

// NewClient creates a GitLab client. apiURL is the API root, e.g.
// "https://gitlab.com/api/v4".
func NewClient(apiURL, token string) *Client {
	return &Client{
		apiURL: apiURL,
		token:  token,
		client: &http.Client{Timeout: defaultTimeout},
	}
}

// CompareBranches fetches the unified diff between two branches.
//
// GET /projects/:id/repository/compare?from=target&to=source&unidiff=true
func (c *Client) CompareBranches(ctx context.Context, projectID int, targetBranch, sourceBranch string) (*domain.Diff, error) {
	endpoint := fmt.Sprintf("%s/projects/%d/repository/compare", c.apiURL, projectID)
	params := url.Values{}
	params.Set("from", targetBranch)
	params.Set("to", sourceBranch)
	params.Set("unidiff", "true")

	var resp compareResponse
	if err := c.getJSON(ctx, endpoint+"?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("failed to compare branches: %w", err)
	}

	diff := &domain.Diff{
		FromCommitHash: resp.Commit.ParentIDs.first(),
		ToCommitHash:   resp.Commit.ID,
	}
	for _, d := range resp.Diffs {
		diff.Files = append(diff.Files, toFileDiff(d))
	}
	return diff, nil
}

// MergeRequestChanges fetches the per-file diffs of a merge request.
//
// GET /projects/:id/merge_requests/:iid/changes
func (c *Client) MergeRequestChanges(ctx context.Context, projectID, mergeRequestIID int) ([]domain.FileDiff, error) {
	endpoint := fmt.Sprintf("%s/projects/%d/merge_requests/%d/changes", c.apiURL, projectID, mergeRequestIID)

	var resp changesResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch merge request changes: %w", err)
	}

	files := make([]domain.FileDiff, 0, len(resp.Changes))
	for _, ch := range resp.Changes {
		files = append(files, toFileDiff(ch))
	}
	return files, nil
}

// MergeRequestDiffRefs fetches the diff refs needed to post inline
// discussions. Returns an error when GitLab omits any of the three SHAs.
//
// GET /projects/:id/merge_requests/:iid
func (c *Client) MergeRequestDiffRefs(ctx context.Context, projectID, mergeRequestIID int) (*DiffRefs, error) {
	endpoint := fmt.Sprintf("%s/projects/%d/merge_requests/%d", c.apiURL, projectID, mergeRequestIID)

	var resp struct {
		DiffRefs DiffRefs `json:"diff_refs"`
	}
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch merge request: %w", err)
	}
	if resp.DiffRefs.BaseSHA == "" || resp.DiffRefs.StartSHA == "" || resp.DiffRefs.HeadSHA == "" {
		return nil, fmt.Errorf("merge request %d/%d has incomplete diff refs", projectID, mergeRequestIID)
	}
	return &resp.DiffRefs, nil
}

// RawFile fetches the content of a file at a given ref. The path is
// URL-encoded including slashes, as the files API requires.
//
// GET /projects/:id/repository/files/:file_path/raw?ref=<ref>
func (c *Client) RawFile(ctx context.Context, projectID int, filePath, ref string) (string, error) {
	endpoint := fmt.Sprintf("%s/projects/%d/repository/files/%s/raw?ref=%s",
		c.apiURL, projectID, url.PathEscape(filePath), url.QueryEscape(ref))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch raw file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("raw file %s@%s: HTTP %d", filePath, ref, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read raw file: %w", err)
	}
	return string(body), nil
}

// PostNote posts a plain comment on a merge request.
//
// POST /projects/:id/merge_requests/:iid/notes
func (c *Client) PostNote(ctx context.Context, projectID, mergeRequestIID int, body string) error {
	endpoint := fmt.Sprintf("%s/projects/%d/merge_requests/%d/notes", c.apiURL, projectID, mergeRequestIID)
	payload := map[string]string{"body": body}
	if err := c.postJSON(ctx, endpoint, payload); err != nil {
		return fmt.Errorf("failed to post merge request note: %w", err)
	}
	return nil
}

// PostInlineDiscussion attaches a comment to a specific new line of the
// merge request diff.
//
// POST /projects/:id/merge_requests/:iid/discussions
func (c *Client) PostInlineDiscussion(ctx context.Context, projectID, mergeRequestIID int, comment domain.ValidatedComment, refs DiffRefs) error {
	endpoint := fmt.Sprintf("%s/projects/%d/merge_requests/%d/discussions", c.apiURL, projectID, mergeRequestIID)
	payload := map[string]interface{}{
		"body": comment.Body,
		"position": map[string]interface{}{
			"position_type": "text",
			"base_sha":      refs.BaseSHA,
			"start_sha":     refs.StartSHA,
			"head_sha":      refs.HeadSHA,
			"new_path":      comment.Path,
			"new_line":      comment.NewLine,
		},
	}
	if err := c.postJSON(ctx, endpoint, payload); err != nil {
		return fmt.Errorf("failed to post inline discussion at %s:%d: %w", comment.Path, comment.NewLine, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Private-Token", c.token)
	req.Header.Set("Accept", "application/json")
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return apiError(resp.StatusCode, body)
	}
	return nil
}

func apiError(statusCode int, body []byte) error {
	var errResp struct {
		Message interface{} `json:"message"`
		Error   string      `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Message != nil {
			return fmt.Errorf("gitlab API error (HTTP %d): %v", statusCode, errResp.Message)
		}
		if errResp.Error != "" {
			return fmt.Errorf("gitlab API error (HTTP %d): %s", statusCode, errResp.Error)
		}
	}
	return fmt.Errorf("gitlab API error: HTTP %d", statusCode)
}

// toFileDiff converts a GitLab diff entry into the domain representation,
// falling back across the path aliases different endpoints use.
func toFileDiff(d changeEntry) domain.FileDiff {
	path := d.NewPath
	if path == "" {
		path = d.NewFilePath
	}
	if path == "" {
		path = d.OldPath
	}
	return domain.FileDiff{
		Path:    path,
		OldPath: d.OldPath,
		Status:  changeStatus(d),
		Patch:   d.Diff,
	}
}

func changeStatus(d changeEntry) domain.FileStatus {
	switch {
	case d.NewFile:
		return domain.FileStatusAdded
	case d.DeletedFile:
		return domain.FileStatusDeleted
	case d.RenamedFile:
		return domain.FileStatusRenamed
	default:
		return domain.FileStatusModified
	}
}

type changeEntry struct {
	NewPath     string `json:"new_path"`
	NewFilePath string `json:"new_file_path"`
	OldPath     string `json:"old_path"`
	Diff        string `json:"diff"`
	NewFile     bool   `json:"new_file"`
	DeletedFile bool   `json:"deleted_file"`
	RenamedFile bool   `json:"renamed_file"`
}

type compareResponse struct {
	Commit struct {
		ID        string    `json:"id"`
		ParentIDs parentIDs `json:"parent_ids"`
	} `json:"commit"`
	Diffs []changeEntry `json:"diffs"`
}

type changesResponse struct {
	Changes []changeEntry `json:"changes"`
}

type parentIDs []string

func (p parentIDs) first() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// ProjectRef formats a project identity for log fields and store keys.
func ProjectRef(projectID, mergeRequestIID int) string {
	return strconv.Itoa(projectID) + "!" + strconv.Itoa(mergeRequestIID)
}
