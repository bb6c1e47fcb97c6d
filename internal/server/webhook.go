package server

import (
	"context"
	"encoding/json"
	"net/http"

	usecase "github.com/bkyoung/inline-reviewer/internal/usecase/review"
)

// gitlabMergeRequestEvent is the subset of the GitLab webhook payload the
// server consumes.
type gitlabMergeRequestEvent struct {
	ObjectKind       string `json:"object_kind"`
	ObjectAttributes struct {
		Action          string `json:"action"`
		IID             int    `json:"iid"`
		TargetProjectID int    `json:"target_project_id"`
		SourceBranch    string `json:"source_branch"`
		TargetBranch    string `json:"target_branch"`
	} `json:"object_attributes"`
}

// githubPullRequestEvent is the subset of the GitHub webhook payload the
// server consumes.
type githubPullRequestEvent struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Number int `json:"number"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// handleGitLab accepts GitLab merge request hooks. The shared secret is
// compared against the X-Gitlab-Token header; only "update" actions trigger
// a review, matching the push-driven workflow this service targets.
func (s *Server) handleGitLab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("X-Gitlab-Token") != s.opts.GitLabSecret {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var event gitlabMergeRequestEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	if event.ObjectKind != "merge_request" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	attrs := event.ObjectAttributes
	if attrs.Action != "update" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored_action", "action": attrs.Action})
		return
	}
	if attrs.TargetProjectID == 0 || attrs.IID == 0 || attrs.SourceBranch == "" || attrs.TargetBranch == "" {
		s.logger.Info(r.Context(), "merge request event missing params", nil)
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "missing_params"})
		return
	}

	task := usecase.MergeRequestTask{
		ProjectID:       attrs.TargetProjectID,
		MergeRequestIID: attrs.IID,
		SourceBranch:    attrs.SourceBranch,
		TargetBranch:    attrs.TargetBranch,
	}
	s.dispatch(func(ctx context.Context) {
		if err := s.reviewer.ReviewMergeRequest(ctx, task); err != nil {
			s.logger.Error(ctx, "merge request review failed", map[string]interface{}{
				"project": task.ProjectID, "merge_request": task.MergeRequestIID, "error": err.Error(),
			})
		}
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// handleGitHub accepts GitHub pull_request hooks for opened and synchronize
// actions.
func (s *Server) handleGitHub(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("X-GitHub-Event") != "pull_request" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	var event githubPullRequestEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	if event.Action != "opened" && event.Action != "synchronize" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored_action", "action": event.Action})
		return
	}

	number := event.Number
	if number == 0 {
		number = event.PullRequest.Number
	}
	if event.Repository.FullName == "" || number == 0 {
		s.logger.Info(r.Context(), "pull request event missing params", nil)
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "missing_params"})
		return
	}

	task := usecase.PullRequestTask{
		RepoFullName: event.Repository.FullName,
		Number:       number,
	}
	s.dispatch(func(ctx context.Context) {
		if err := s.reviewer.ReviewPullRequest(ctx, task); err != nil {
			s.logger.Error(ctx, "pull request review failed", map[string]interface{}{
				"repo": task.RepoFullName, "pull_request": task.Number, "error": err.Error(),
			})
		}
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
