package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bkyoung/inline-reviewer/internal/adapter/cli"
	"github.com/bkyoung/inline-reviewer/internal/adapter/git"
	githubadapter "github.com/bkyoung/inline-reviewer/internal/adapter/github"
	gitlabadapter "github.com/bkyoung/inline-reviewer/internal/adapter/gitlab"
	"github.com/bkyoung/inline-reviewer/internal/adapter/llm/openrouter"
	"github.com/bkyoung/inline-reviewer/internal/adapter/observability"
	"github.com/bkyoung/inline-reviewer/internal/adapter/output/markdown"
	"github.com/bkyoung/inline-reviewer/internal/adapter/store/sqlite"
	"github.com/bkyoung/inline-reviewer/internal/config"
	"github.com/bkyoung/inline-reviewer/internal/server"
	usecase "github.com/bkyoung/inline-reviewer/internal/usecase/review"
	"github.com/bkyoung/inline-reviewer/internal/version"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, cli.ErrVersionRequested) {
			return
		}
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPaths: defaultConfigPaths(),
	})
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logger := observability.New(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
		cfg.Observability.Logging.RedactAPIKeys,
	)

	modelTimeout, err := time.ParseDuration(orDefault(cfg.Model.Timeout, "120s"))
	if err != nil {
		return fmt.Errorf("invalid model timeout: %w", err)
	}
	model := openrouter.NewClient(cfg.Model.APIKey, cfg.Model.Name, cfg.Model.BaseURL, cfg.Model.Temperature, modelTimeout)
	logger.Debug(ctx, "model client configured", map[string]interface{}{
		"model":   cfg.Model.Name,
		"api_key": logger.RedactAPIKey(cfg.Model.APIKey),
	})

	var gitlabClient usecase.GitLabClient
	if cfg.GitLab.Enabled {
		gitlabClient = gitlabadapter.NewClient(cfg.GitLab.APIURL, cfg.GitLab.Token)
	}

	var githubClient usecase.GitHubClient
	if cfg.GitHub.Enabled {
		githubClient = githubadapter.NewClient(cfg.GitHub.Token)
	}

	repoDir := orDefault(cfg.Git.RepositoryDir, ".")
	gitEngine := git.NewEngine(repoDir)

	ledger, closeLedger, err := buildStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeLedger()

	nowFunc := func() string {
		return time.Now().UTC().Format("20060102T150405Z")
	}
	writer := markdown.NewWriter(nowFunc)

	service := usecase.NewService(model, gitlabClient, githubClient, gitEngine, ledger, writer, logger,
		usecase.Options{
			MaxComments:      cfg.Review.MaxComments,
			SummaryEnabled:   cfg.Review.SummaryEnabled,
			FetchConcurrency: cfg.Review.FetchConcurrency,
			MaxPromptTokens:  cfg.Review.MaxPromptTokens,
		})

	readTimeout, err := time.ParseDuration(orDefault(cfg.Server.ReadTimeout, "10s"))
	if err != nil {
		return fmt.Errorf("invalid server read timeout: %w", err)
	}
	writeTimeout, err := time.ParseDuration(orDefault(cfg.Server.WriteTimeout, "20s"))
	if err != nil {
		return fmt.Errorf("invalid server write timeout: %w", err)
	}
	webhookServer := server.NewServer(service, logger, server.Options{
		Port:          cfg.Server.Port,
		GitLabSecret:  cfg.GitLab.WebhookSecret,
		GitLabEnabled: cfg.GitLab.Enabled,
		GitHubEnabled: cfg.GitHub.Enabled,
		ReadTimeout:   readTimeout,
		WriteTimeout:  writeTimeout,
	})

	root := cli.NewRootCommand(cli.Dependencies{
		LocalReviewer:      service,
		Server:             webhookServer,
		DefaultOutput:      cfg.Output.Directory,
		DefaultRepo:        repositoryName(repoDir),
		DefaultMaxComments: cfg.Review.MaxComments,
		Version:            version.Version,
	})

	return root.ExecuteContext(ctx)
}

// buildStore returns the posted-comment ledger: SQLite when enabled, a
// process-lifetime in-memory database otherwise.
func buildStore(cfg config.StoreConfig) (usecase.Store, func(), error) {
	path := ":memory:"
	if cfg.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create store directory: %w", err)
		}
		path = cfg.Path
	}

	ledger, err := sqlite.NewStore(path)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize store: %w", err)
	}
	return ledger, func() { _ = ledger.Close() }, nil
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".inline-reviewer"))
	}
	return paths
}

func repositoryName(repoDir string) string {
	abs, err := filepath.Abs(repoDir)
	if err != nil {
		return "repository"
	}
	return filepath.Base(abs)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
