// Package server exposes the webhook surface: platform webhooks trigger
// background review cycles, responding 200 before the review runs so the
// platform does not retry slow deliveries.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bkyoung/inline-reviewer/internal/adapter/observability"
	usecase "github.com/bkyoung/inline-reviewer/internal/usecase/review"
)

// Reviewer runs review cycles for webhook-delivered tasks.
type Reviewer interface {
	ReviewMergeRequest(ctx context.Context, task usecase.MergeRequestTask) error
	ReviewPullRequest(ctx context.Context, task usecase.PullRequestTask) error
}

// Options configure the webhook server. Zero timeouts fall back to the
// built-in defaults.
type Options struct {
	Port          int
	GitLabSecret  string
	GitHubEnabled bool
	GitLabEnabled bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// Server serves /healthz and the platform webhook endpoints.
type Server struct {
	reviewer Reviewer
	logger   observability.Logger
	opts     Options
	http     *http.Server

	// wg tracks in-flight background reviews so Shutdown can drain them.
	wg sync.WaitGroup
}

// NewServer wires the HTTP server and its routes.
func NewServer(reviewer Reviewer, logger observability.Logger, opts Options) *Server {
	s := &Server{
		reviewer: reviewer,
		logger:   logger,
		opts:     opts,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.health)
	if opts.GitLabEnabled {
		mux.HandleFunc("/webhook/gitlab", s.handleGitLab)
	}
	if opts.GitHubEnabled {
		mux.HandleFunc("/webhook/github", s.handleGitHub)
	}

	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 20 * time.Second
	}

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	return s
}

// Start serves until ctx is cancelled, then drains in-flight reviews.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "starting server", map[string]interface{}{
		"port":   s.opts.Port,
		"gitlab": s.opts.GitLabEnabled,
		"github": s.opts.GitHubEnabled,
	})

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// dispatch runs fn in the background, detached from the request context.
func (s *Server) dispatch(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		fn(ctx)
	}()
}
