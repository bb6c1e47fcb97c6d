// Package review orchestrates one review cycle: fetch the diff, gather
// pre-change context, ask the model for a summary and inline candidates,
// validate the candidates against the diff, and publish what survives.
package review

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/bkyoung/inline-reviewer/internal/adapter/gitlab"
	"github.com/bkyoung/inline-reviewer/internal/adapter/llm"
	"github.com/bkyoung/inline-reviewer/internal/adapter/llm/openrouter"
	"github.com/bkyoung/inline-reviewer/internal/adapter/output/markdown"
	"github.com/bkyoung/inline-reviewer/internal/domain"
	"github.com/bkyoung/inline-reviewer/internal/review"
)

// summaryMarker tags posted summaries so humans (and greps) can tell bot
// notes from human ones.
const summaryMarker = "<!-- inline-reviewer -->"

// ModelClient is the completion interface the service consumes.
type ModelClient interface {
	Complete(ctx context.Context, system, user string) (*openrouter.Completion, error)
	Model() string
}

// GitLabClient covers the GitLab calls one merge request review needs.
type GitLabClient interface {
	CompareBranches(ctx context.Context, projectID int, targetBranch, sourceBranch string) (*domain.Diff, error)
	MergeRequestChanges(ctx context.Context, projectID, mergeRequestIID int) ([]domain.FileDiff, error)
	MergeRequestDiffRefs(ctx context.Context, projectID, mergeRequestIID int) (*gitlab.DiffRefs, error)
	RawFile(ctx context.Context, projectID int, filePath, ref string) (string, error)
	PostNote(ctx context.Context, projectID, mergeRequestIID int, body string) error
	PostInlineDiscussion(ctx context.Context, projectID, mergeRequestIID int, comment domain.ValidatedComment, refs gitlab.DiffRefs) error
}

// GitHubClient covers the GitHub calls one pull request review needs.
type GitHubClient interface {
	PullRequestFiles(ctx context.Context, repoFullName string, prNumber int) ([]domain.FileDiff, error)
	PullRequestHead(ctx context.Context, repoFullName string, prNumber int) (headSHA, baseRef string, err error)
	FileContent(ctx context.Context, repoFullName, path, ref string) (string, error)
	PostPositionComment(ctx context.Context, repoFullName string, prNumber int, commitSHA string, comment domain.ValidatedComment) error
	PostSummaryReview(ctx context.Context, repoFullName string, prNumber int, body, event string) error
}

// GitEngine produces diffs from a local repository.
type GitEngine interface {
	Diff(ctx context.Context, baseRef, targetRef string) (domain.Diff, error)
	FileAtRef(ctx context.Context, ref, path string) (string, error)
}

// Store is the posted-comment ledger.
type Store interface {
	Seen(ctx context.Context, platform, project, changeRequest string, comment domain.ValidatedComment) (bool, error)
	Record(ctx context.Context, platform, project, changeRequest string, comment domain.ValidatedComment) error
	SummarySeen(ctx context.Context, platform, project, changeRequest, headCommit string) (bool, error)
	RecordSummary(ctx context.Context, platform, project, changeRequest, headCommit string) error
}

// ReportWriter renders local review results.
type ReportWriter interface {
	Write(ctx context.Context, artifact markdown.Artifact) (string, error)
}

// Logger is the subset of the observability logger the service uses.
type Logger interface {
	Debug(ctx context.Context, message string, fields map[string]interface{})
	Info(ctx context.Context, message string, fields map[string]interface{})
	Error(ctx context.Context, message string, fields map[string]interface{})
}

// Options tune one service instance.
type Options struct {
	MaxComments      int
	SummaryEnabled   bool
	FetchConcurrency int

	// MaxPromptTokens bounds the estimated size of each user prompt sent
	// to the model. Oversized prompts are head/tail truncated.
	MaxPromptTokens int
}

// approxCharsPerToken converts a token limit into a character bound for
// truncation; matches the tokenizer's fallback heuristic.
const approxCharsPerToken = 4

// Service runs review cycles against the configured collaborators. Any of
// the platform clients may be nil when that platform is not configured.
type Service struct {
	model  ModelClient
	gitlab GitLabClient
	github GitHubClient
	git    GitEngine
	store  Store
	writer ReportWriter
	logger Logger
	opts   Options
}

// NewService wires a review service.
func NewService(model ModelClient, gl GitLabClient, gh GitHubClient, git GitEngine, store Store, writer ReportWriter, logger Logger, opts Options) *Service {
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 6
	}
	if opts.MaxPromptTokens <= 0 {
		opts.MaxPromptTokens = 32_000
	}
	return &Service{
		model:  model,
		gitlab: gl,
		github: gh,
		git:    git,
		store:  store,
		writer: writer,
		logger: logger,
		opts:   opts,
	}
}

// MergeRequestTask identifies one GitLab merge request to review.
type MergeRequestTask struct {
	ProjectID       int
	MergeRequestIID int
	SourceBranch    string
	TargetBranch    string
}

// PullRequestTask identifies one GitHub pull request to review.
type PullRequestTask struct {
	RepoFullName string
	Number       int
}

// LocalTask identifies a committed-ref range in a local repository.
// A positive MaxComments overrides the service default.
type LocalTask struct {
	Repository  string
	BaseRef     string
	TargetRef   string
	OutputDir   string
	MaxComments int
}

// ReviewMergeRequest reviews a GitLab merge request: a summary note plus
// inline discussions on validated lines. Comments already posted for this
// merge request are skipped via the store.
func (s *Service) ReviewMergeRequest(ctx context.Context, task MergeRequestTask) error {
	if s.gitlab == nil {
		return fmt.Errorf("gitlab is not configured")
	}

	project := strconv.Itoa(task.ProjectID)
	changeRequest := strconv.Itoa(task.MergeRequestIID)
	mergeRequest := gitlab.ProjectRef(task.ProjectID, task.MergeRequestIID)

	// Webhook events carry branch names, so the diff comes from a branch
	// compare. Tasks without branches fall back to the merge request
	// changes endpoint.
	var files []domain.FileDiff
	if task.SourceBranch != "" && task.TargetBranch != "" {
		compared, err := s.gitlab.CompareBranches(ctx, task.ProjectID, task.TargetBranch, task.SourceBranch)
		if err != nil {
			return fmt.Errorf("compare branches: %w", err)
		}
		files = compared.Files
	} else {
		var err error
		files, err = s.gitlab.MergeRequestChanges(ctx, task.ProjectID, task.MergeRequestIID)
		if err != nil {
			return fmt.Errorf("fetch merge request changes: %w", err)
		}
	}
	files = reviewableFiles(files)
	if len(files) == 0 {
		s.logger.Info(ctx, "no reviewable files in merge request", map[string]interface{}{
			"merge_request": mergeRequest,
		})
		return nil
	}

	refs, err := s.gitlab.MergeRequestDiffRefs(ctx, task.ProjectID, task.MergeRequestIID)
	if err != nil {
		return fmt.Errorf("fetch diff refs: %w", err)
	}

	oldFiles := s.fetchOldFiles(ctx, files, func(ctx context.Context, path string) (string, error) {
		return s.gitlab.RawFile(ctx, task.ProjectID, path, task.TargetBranch)
	})

	result, err := s.runModel(ctx, oldFiles, files, domain.AddressByLine, nil)
	if err != nil {
		return err
	}

	if result.Summary != "" {
		seen, err := s.store.SummarySeen(ctx, "gitlab", project, changeRequest, refs.HeadSHA)
		if err != nil {
			return fmt.Errorf("query summary ledger: %w", err)
		}
		if !seen {
			body := summaryMarker + "\n" + result.Summary
			if err := s.gitlab.PostNote(ctx, task.ProjectID, task.MergeRequestIID, body); err != nil {
				s.logger.Error(ctx, "failed to post summary note", map[string]interface{}{"error": err.Error()})
			} else if err := s.store.RecordSummary(ctx, "gitlab", project, changeRequest, refs.HeadSHA); err != nil {
				return fmt.Errorf("record posted summary: %w", err)
			}
		}
	}

	for _, comment := range result.Comments {
		seen, err := s.store.Seen(ctx, "gitlab", project, changeRequest, comment)
		if err != nil {
			return fmt.Errorf("query comment ledger: %w", err)
		}
		if seen {
			s.logger.Debug(ctx, "comment already posted", map[string]interface{}{
				"path": comment.Path, "line": comment.NewLine,
			})
			continue
		}
		if err := s.gitlab.PostInlineDiscussion(ctx, task.ProjectID, task.MergeRequestIID, comment, *refs); err != nil {
			s.logger.Error(ctx, "failed to post inline discussion", map[string]interface{}{
				"path": comment.Path, "line": comment.NewLine, "error": err.Error(),
			})
			continue
		}
		if err := s.store.Record(ctx, "gitlab", project, changeRequest, comment); err != nil {
			return fmt.Errorf("record posted comment: %w", err)
		}
	}

	s.logger.Info(ctx, "merge request review complete", map[string]interface{}{
		"merge_request": mergeRequest,
		"files":         len(files), "comments": len(result.Comments),
	})
	return nil
}

// ReviewPullRequest reviews a GitHub pull request. GitHub addresses inline
// comments by absolute diff position, so validation runs in position mode
// and candidates whose line carries no position are dropped.
func (s *Service) ReviewPullRequest(ctx context.Context, task PullRequestTask) error {
	if s.github == nil {
		return fmt.Errorf("github is not configured")
	}

	changeRequest := strconv.Itoa(task.Number)

	files, err := s.github.PullRequestFiles(ctx, task.RepoFullName, task.Number)
	if err != nil {
		return fmt.Errorf("fetch pull request files: %w", err)
	}
	files = reviewableFiles(files)
	if len(files) == 0 {
		s.logger.Info(ctx, "no reviewable files in pull request", map[string]interface{}{
			"repo": task.RepoFullName, "pull_request": changeRequest,
		})
		return nil
	}

	headSHA, baseRef, err := s.github.PullRequestHead(ctx, task.RepoFullName, task.Number)
	if err != nil {
		return fmt.Errorf("fetch pull request head: %w", err)
	}

	oldFiles := s.fetchOldFiles(ctx, files, func(ctx context.Context, path string) (string, error) {
		return s.github.FileContent(ctx, task.RepoFullName, path, baseRef)
	})

	result, err := s.runModel(ctx, oldFiles, files, domain.AddressByPosition, nil)
	if err != nil {
		return err
	}

	if result.Summary != "" {
		seen, err := s.store.SummarySeen(ctx, "github", task.RepoFullName, changeRequest, headSHA)
		if err != nil {
			return fmt.Errorf("query summary ledger: %w", err)
		}
		if !seen {
			body := summaryMarker + "\n" + result.Summary
			if err := s.github.PostSummaryReview(ctx, task.RepoFullName, task.Number, body, "COMMENT"); err != nil {
				s.logger.Error(ctx, "failed to post summary review", map[string]interface{}{"error": err.Error()})
			} else if err := s.store.RecordSummary(ctx, "github", task.RepoFullName, changeRequest, headSHA); err != nil {
				return fmt.Errorf("record posted summary: %w", err)
			}
		}
	}

	for _, comment := range result.Comments {
		seen, err := s.store.Seen(ctx, "github", task.RepoFullName, changeRequest, comment)
		if err != nil {
			return fmt.Errorf("query comment ledger: %w", err)
		}
		if seen {
			s.logger.Debug(ctx, "comment already posted", map[string]interface{}{
				"path": comment.Path, "line": comment.NewLine,
			})
			continue
		}
		if err := s.github.PostPositionComment(ctx, task.RepoFullName, task.Number, headSHA, comment); err != nil {
			s.logger.Error(ctx, "failed to post position comment", map[string]interface{}{
				"path": comment.Path, "line": comment.NewLine, "error": err.Error(),
			})
			continue
		}
		if err := s.store.Record(ctx, "github", task.RepoFullName, changeRequest, comment); err != nil {
			return fmt.Errorf("record posted comment: %w", err)
		}
	}

	s.logger.Info(ctx, "pull request review complete", map[string]interface{}{
		"repo": task.RepoFullName, "pull_request": changeRequest,
		"files": len(files), "comments": len(result.Comments),
	})
	return nil
}

// ReviewLocal reviews a committed-ref range of a local repository and writes
// a Markdown report. Returns the report path.
func (s *Service) ReviewLocal(ctx context.Context, task LocalTask) (string, error) {
	if s.git == nil {
		return "", fmt.Errorf("git engine is not configured")
	}

	diff, err := s.git.Diff(ctx, task.BaseRef, task.TargetRef)
	if err != nil {
		return "", fmt.Errorf("compute local diff: %w", err)
	}
	files := reviewableFiles(diff.Files)
	if len(files) == 0 {
		return "", fmt.Errorf("no reviewable files between %s and %s", task.BaseRef, task.TargetRef)
	}

	oldFiles := s.fetchOldFiles(ctx, files, func(ctx context.Context, path string) (string, error) {
		return s.git.FileAtRef(ctx, task.BaseRef, path)
	})

	var limit *int
	if task.MaxComments > 0 {
		limit = &task.MaxComments
	}
	result, err := s.runModel(ctx, oldFiles, files, domain.AddressByLine, limit)
	if err != nil {
		return "", err
	}

	path, err := s.writer.Write(ctx, markdown.Artifact{
		Repository: task.Repository,
		BaseRef:    task.BaseRef,
		TargetRef:  task.TargetRef,
		ModelName:  s.model.Model(),
		OutputDir:  task.OutputDir,
		Review:     result,
	})
	if err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	s.logger.Info(ctx, "local review complete", map[string]interface{}{
		"report": path, "files": len(files), "comments": len(result.Comments),
	})
	return path, nil
}

// runModel performs the summary and candidate calls and validates the
// candidates. A nil maxComments override uses the service default.
func (s *Service) runModel(ctx context.Context, oldFiles []domain.OldFile, files []domain.FileDiff, mode domain.AddressingMode, maxComments *int) (domain.Review, error) {
	limit := s.opts.MaxComments
	if maxComments != nil {
		limit = *maxComments
	}

	var result domain.Review

	if s.opts.SummaryEnabled {
		prompt := review.SummaryPrompt(oldFiles, files)
		prompt.User = s.boundPrompt(ctx, "summary", prompt.User)
		completion, err := s.model.Complete(ctx, prompt.System, prompt.User)
		if err != nil {
			return domain.Review{}, fmt.Errorf("summary completion: %w", err)
		}
		result.Summary = completion.Text
	}

	prompt := review.CandidatePrompt(oldFiles, files, limit)
	prompt.User = s.boundPrompt(ctx, "candidates", prompt.User)
	completion, err := s.model.Complete(ctx, prompt.System, prompt.User)
	if err != nil {
		return domain.Review{}, fmt.Errorf("candidate completion: %w", err)
	}

	candidates := review.ParseCandidates(completion.Text)
	result.Comments = review.Validate(candidates, files, mode, limit)

	s.logger.Debug(ctx, "candidates validated", map[string]interface{}{
		"proposed": len(candidates), "accepted": len(result.Comments),
		"tokens_in": completion.TokensIn, "tokens_out": completion.TokensOut,
	})
	return result, nil
}

// boundPrompt enforces the prompt token limit on a user message. Prompts
// within the limit pass through untouched.
func (s *Service) boundPrompt(ctx context.Context, kind, user string) string {
	tokens := llm.EstimateTokens(user)
	if tokens <= s.opts.MaxPromptTokens {
		s.logger.Debug(ctx, "prompt built", map[string]interface{}{
			"kind": kind, "estimated_tokens": tokens,
		})
		return user
	}

	s.logger.Info(ctx, "prompt over token limit, truncating", map[string]interface{}{
		"kind": kind, "estimated_tokens": tokens, "max_prompt_tokens": s.opts.MaxPromptTokens,
	})
	return review.Truncate(user, s.opts.MaxPromptTokens*approxCharsPerToken)
}

// fetchOldFiles gathers pre-change file contents with bounded concurrency.
// Fetches are best-effort: a failed fetch logs and contributes an empty
// entry rather than failing the review.
func (s *Service) fetchOldFiles(ctx context.Context, files []domain.FileDiff, fetch func(ctx context.Context, path string) (string, error)) []domain.OldFile {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		if f.Status == domain.FileStatusAdded || f.OldPath == "" {
			continue
		}
		paths = append(paths, f.OldPath)
	}

	oldFiles := make([]domain.OldFile, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.FetchConcurrency)
	for i, path := range paths {
		g.Go(func() error {
			content, err := fetch(gctx, path)
			if err != nil {
				s.logger.Info(gctx, "failed to fetch pre-change file", map[string]interface{}{
					"path": path, "error": err.Error(),
				})
				content = ""
			}
			oldFiles[i] = domain.OldFile{Name: path, Content: content}
			return nil
		})
	}
	g.Wait()

	return oldFiles
}

// reviewableFiles drops binary and deleted files: neither carries added
// lines a comment could anchor to.
func reviewableFiles(files []domain.FileDiff) []domain.FileDiff {
	out := make([]domain.FileDiff, 0, len(files))
	for _, f := range files {
		if f.IsBinary || f.Status == domain.FileStatusDeleted || f.Patch == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}
