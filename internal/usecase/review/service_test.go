package review

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/inline-reviewer/internal/adapter/gitlab"
	"github.com/bkyoung/inline-reviewer/internal/adapter/llm/openrouter"
	"github.com/bkyoung/inline-reviewer/internal/adapter/output/markdown"
	"github.com/bkyoung/inline-reviewer/internal/domain"
)

// fakeModel returns a fixed summary for the first call and fixed candidate
// JSON for the second, recording the user prompt of each call.
type fakeModel struct {
	summary    string
	candidates string
	calls      int
	users      []string
}

func (m *fakeModel) Complete(ctx context.Context, system, user string) (*openrouter.Completion, error) {
	m.calls++
	m.users = append(m.users, user)
	if m.calls == 1 {
		return &openrouter.Completion{Text: m.summary}, nil
	}
	return &openrouter.Completion{Text: m.candidates}, nil
}

func (m *fakeModel) Model() string { return "test-model" }

type postedDiscussion struct {
	comment domain.ValidatedComment
	refs    gitlab.DiffRefs
}

type fakeGitLab struct {
	changes      []domain.FileDiff
	refs         gitlab.DiffRefs
	notes        []string
	discussions  []postedDiscussion
	rawErr       error
	compareCalls int
	changesCalls int
}

func (g *fakeGitLab) CompareBranches(ctx context.Context, projectID int, targetBranch, sourceBranch string) (*domain.Diff, error) {
	g.compareCalls++
	return &domain.Diff{Files: g.changes}, nil
}

func (g *fakeGitLab) MergeRequestChanges(ctx context.Context, projectID, iid int) ([]domain.FileDiff, error) {
	g.changesCalls++
	return g.changes, nil
}

func (g *fakeGitLab) MergeRequestDiffRefs(ctx context.Context, projectID, iid int) (*gitlab.DiffRefs, error) {
	refs := g.refs
	return &refs, nil
}

func (g *fakeGitLab) RawFile(ctx context.Context, projectID int, filePath, ref string) (string, error) {
	if g.rawErr != nil {
		return "", g.rawErr
	}
	return "old content of " + filePath, nil
}

func (g *fakeGitLab) PostNote(ctx context.Context, projectID, iid int, body string) error {
	g.notes = append(g.notes, body)
	return nil
}

func (g *fakeGitLab) PostInlineDiscussion(ctx context.Context, projectID, iid int, comment domain.ValidatedComment, refs gitlab.DiffRefs) error {
	g.discussions = append(g.discussions, postedDiscussion{comment: comment, refs: refs})
	return nil
}

type fakeGitHub struct {
	files    []domain.FileDiff
	headSHA  string
	baseRef  string
	comments []domain.ValidatedComment
	reviews  []string
}

func (g *fakeGitHub) PullRequestFiles(ctx context.Context, repo string, pr int) ([]domain.FileDiff, error) {
	return g.files, nil
}

func (g *fakeGitHub) PullRequestHead(ctx context.Context, repo string, pr int) (string, string, error) {
	return g.headSHA, g.baseRef, nil
}

func (g *fakeGitHub) FileContent(ctx context.Context, repo, path, ref string) (string, error) {
	return "", nil
}

func (g *fakeGitHub) PostPositionComment(ctx context.Context, repo string, pr int, commitSHA string, comment domain.ValidatedComment) error {
	g.comments = append(g.comments, comment)
	return nil
}

func (g *fakeGitHub) PostSummaryReview(ctx context.Context, repo string, pr int, body, event string) error {
	g.reviews = append(g.reviews, body)
	return nil
}

type fakeGit struct {
	diff domain.Diff
}

func (g *fakeGit) Diff(ctx context.Context, base, target string) (domain.Diff, error) {
	return g.diff, nil
}

func (g *fakeGit) FileAtRef(ctx context.Context, ref, path string) (string, error) {
	return "", nil
}

// memStore is an in-memory ledger.
type memStore struct {
	comments  map[string]bool
	summaries map[string]bool
}

func newMemStore() *memStore {
	return &memStore{comments: map[string]bool{}, summaries: map[string]bool{}}
}

func (s *memStore) key(platform, project, changeRequest, suffix string) string {
	return fmt.Sprintf("%s/%s/%s/%s", platform, project, changeRequest, suffix)
}

func (s *memStore) Seen(ctx context.Context, platform, project, changeRequest string, c domain.ValidatedComment) (bool, error) {
	return s.comments[s.key(platform, project, changeRequest, c.Fingerprint())], nil
}

func (s *memStore) Record(ctx context.Context, platform, project, changeRequest string, c domain.ValidatedComment) error {
	s.comments[s.key(platform, project, changeRequest, c.Fingerprint())] = true
	return nil
}

func (s *memStore) SummarySeen(ctx context.Context, platform, project, changeRequest, head string) (bool, error) {
	return s.summaries[s.key(platform, project, changeRequest, head)], nil
}

func (s *memStore) RecordSummary(ctx context.Context, platform, project, changeRequest, head string) error {
	s.summaries[s.key(platform, project, changeRequest, head)] = true
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, map[string]interface{}) {}
func (nopLogger) Info(context.Context, string, map[string]interface{})  {}
func (nopLogger) Error(context.Context, string, map[string]interface{}) {}

const samplePatch = "@@ -1,2 +1,3 @@\n context\n+added line one\n+added line two\n"

func sampleChanges() []domain.FileDiff {
	return []domain.FileDiff{
		{Path: "src/app.py", OldPath: "src/app.py", Status: domain.FileStatusModified, Patch: samplePatch},
	}
}

func candidateJSON(body string) string {
	return fmt.Sprintf(`{"comments":[{"new_path":"src/app.py","new_line":2,"body":%q,"code":"added line one"}]}`, body)
}

func TestReviewMergeRequest_PostsSummaryAndComments(t *testing.T) {
	model := &fakeModel{summary: "looks fine overall", candidates: candidateJSON("tighten this up")}
	gl := &fakeGitLab{changes: sampleChanges(), refs: gitlab.DiffRefs{BaseSHA: "b", StartSHA: "s", HeadSHA: "h"}}
	store := newMemStore()

	svc := NewService(model, gl, nil, nil, store, nil, nopLogger{},
		Options{MaxComments: 3, SummaryEnabled: true, FetchConcurrency: 2})

	err := svc.ReviewMergeRequest(context.Background(), MergeRequestTask{
		ProjectID: 42, MergeRequestIID: 7, SourceBranch: "feature", TargetBranch: "main",
	})
	require.NoError(t, err)

	require.Len(t, gl.notes, 1)
	assert.Contains(t, gl.notes[0], summaryMarker)
	assert.Contains(t, gl.notes[0], "looks fine overall")

	require.Len(t, gl.discussions, 1)
	assert.Equal(t, "src/app.py", gl.discussions[0].comment.Path)
	assert.Equal(t, 2, gl.discussions[0].comment.NewLine)
	assert.Equal(t, "h", gl.discussions[0].refs.HeadSHA)
}

func TestReviewMergeRequest_SecondRunSkipsPostedComments(t *testing.T) {
	gl := &fakeGitLab{changes: sampleChanges(), refs: gitlab.DiffRefs{BaseSHA: "b", StartSHA: "s", HeadSHA: "h"}}
	store := newMemStore()
	task := MergeRequestTask{ProjectID: 42, MergeRequestIID: 7, TargetBranch: "main"}

	for range 2 {
		model := &fakeModel{summary: "same summary", candidates: candidateJSON("same comment")}
		svc := NewService(model, gl, nil, nil, store, nil, nopLogger{},
			Options{MaxComments: 3, SummaryEnabled: true})
		require.NoError(t, svc.ReviewMergeRequest(context.Background(), task))
	}

	assert.Len(t, gl.notes, 1, "summary should post once per head commit")
	assert.Len(t, gl.discussions, 1, "identical comment should post once")
}

func TestReviewMergeRequest_InvalidCandidatesDroppedSilently(t *testing.T) {
	model := &fakeModel{
		summary: "s",
		candidates: `{"comments":[
			{"new_path":"src/app.py","new_line":2,"body":"good","code":"added line one"},
			{"new_path":"unknown.py","new_line":1,"body":"bad path","code":"x"},
			{"new_path":"src/app.py","new_line":99,"body":"bad anchor","code":"nothing like this"}
		]}`,
	}
	gl := &fakeGitLab{changes: sampleChanges(), refs: gitlab.DiffRefs{HeadSHA: "h", BaseSHA: "b", StartSHA: "s"}}

	svc := NewService(model, gl, nil, nil, newMemStore(), nil, nopLogger{},
		Options{MaxComments: 10, SummaryEnabled: true})
	require.NoError(t, svc.ReviewMergeRequest(context.Background(), MergeRequestTask{ProjectID: 1, MergeRequestIID: 1}))

	require.Len(t, gl.discussions, 1)
	assert.Equal(t, "good", gl.discussions[0].comment.Body)
}

func TestReviewMergeRequest_ComparesBranchesWhenKnown(t *testing.T) {
	gl := &fakeGitLab{changes: sampleChanges(), refs: gitlab.DiffRefs{BaseSHA: "b", StartSHA: "s", HeadSHA: "h"}}
	svc := NewService(&fakeModel{candidates: "[]"}, gl, nil, nil, newMemStore(), nil, nopLogger{}, Options{})

	err := svc.ReviewMergeRequest(context.Background(), MergeRequestTask{
		ProjectID: 42, MergeRequestIID: 7, SourceBranch: "feature", TargetBranch: "main",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, gl.compareCalls)
	assert.Equal(t, 0, gl.changesCalls)
}

func TestReviewMergeRequest_FallsBackToChangesWithoutBranches(t *testing.T) {
	gl := &fakeGitLab{changes: sampleChanges(), refs: gitlab.DiffRefs{BaseSHA: "b", StartSHA: "s", HeadSHA: "h"}}
	svc := NewService(&fakeModel{candidates: "[]"}, gl, nil, nil, newMemStore(), nil, nopLogger{}, Options{})

	err := svc.ReviewMergeRequest(context.Background(), MergeRequestTask{ProjectID: 42, MergeRequestIID: 7})
	require.NoError(t, err)
	assert.Equal(t, 0, gl.compareCalls)
	assert.Equal(t, 1, gl.changesCalls)
}

func TestRunModel_TruncatesOversizedPrompt(t *testing.T) {
	model := &fakeModel{candidates: "[]"}
	svc := NewService(model, nil, nil, nil, newMemStore(), nil, nopLogger{},
		Options{MaxComments: 3, MaxPromptTokens: 16})

	files := []domain.FileDiff{{
		Path:   "a.py",
		Status: domain.FileStatusModified,
		Patch:  "@@ -1,1 +1,1 @@\n+" + strings.Repeat("x", 5000) + "\n",
	}}
	_, err := svc.runModel(context.Background(), nil, files, domain.AddressByLine, nil)
	require.NoError(t, err)

	require.Len(t, model.users, 1)
	assert.Contains(t, model.users[0], "...TRUNCATED...")
	assert.Less(t, len(model.users[0]), 1000, "prompt should shrink toward the token limit")
}

func TestReviewPullRequest_UsesPositions(t *testing.T) {
	model := &fakeModel{summary: "summary", candidates: candidateJSON("position me")}
	gh := &fakeGitHub{files: sampleChanges(), headSHA: "head-sha", baseRef: "main"}

	svc := NewService(model, nil, gh, nil, newMemStore(), nil, nopLogger{},
		Options{MaxComments: 3, SummaryEnabled: true})
	require.NoError(t, svc.ReviewPullRequest(context.Background(), PullRequestTask{RepoFullName: "acme/api", Number: 12}))

	require.Len(t, gh.reviews, 1)
	require.Len(t, gh.comments, 1)
	require.NotNil(t, gh.comments[0].Position)
	// "+added line one" is the second physical line after the hunk header.
	assert.Equal(t, 2, *gh.comments[0].Position)
}

func TestReviewLocal_WritesReport(t *testing.T) {
	model := &fakeModel{summary: "local summary", candidates: candidateJSON("local comment")}
	engine := &fakeGit{diff: domain.Diff{Files: sampleChanges()}}
	writer := markdown.NewWriter(func() string { return "now" })

	svc := NewService(model, nil, nil, engine, newMemStore(), writer, nopLogger{},
		Options{MaxComments: 3, SummaryEnabled: true})

	path, err := svc.ReviewLocal(context.Background(), LocalTask{
		Repository: "acme/api", BaseRef: "main", TargetRef: "feature", OutputDir: t.TempDir(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, path)
}

func TestReviewLocal_NoReviewableFilesFails(t *testing.T) {
	engine := &fakeGit{diff: domain.Diff{Files: []domain.FileDiff{
		{Path: "img.png", Status: domain.FileStatusModified, Patch: "Binary files a/img.png and b/img.png differ\n", IsBinary: true},
		{Path: "gone.py", Status: domain.FileStatusDeleted, Patch: samplePatch},
	}}}

	svc := NewService(&fakeModel{}, nil, nil, engine, newMemStore(), nil, nopLogger{}, Options{})
	_, err := svc.ReviewLocal(context.Background(), LocalTask{BaseRef: "main", TargetRef: "feature"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reviewable files")
}

func TestFetchOldFiles_SkipsAddedAndToleratesErrors(t *testing.T) {
	gl := &fakeGitLab{rawErr: fmt.Errorf("boom")}
	svc := NewService(&fakeModel{}, gl, nil, nil, newMemStore(), nil, nopLogger{}, Options{FetchConcurrency: 2})

	files := []domain.FileDiff{
		{Path: "new.py", Status: domain.FileStatusAdded},
		{Path: "a.py", OldPath: "a.py", Status: domain.FileStatusModified},
	}
	oldFiles := svc.fetchOldFiles(context.Background(), files, func(ctx context.Context, path string) (string, error) {
		return gl.RawFile(ctx, 1, path, "main")
	})

	require.Len(t, oldFiles, 1)
	assert.Equal(t, "a.py", oldFiles[0].Name)
	assert.Empty(t, oldFiles[0].Content, "fetch errors degrade to empty context")
}
