// Package markdown renders local review results into Markdown report files.
package markdown

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bkyoung/inline-reviewer/internal/domain"
)

type clock func() string

// Artifact describes one review report to write.
type Artifact struct {
	Repository string
	BaseRef    string
	TargetRef  string
	ModelName  string
	OutputDir  string
	Review     domain.Review
}

// Writer renders reviews into Markdown files.
type Writer struct {
	now clock
}

// NewWriter constructs a Markdown writer with a timestamp supplier.
func NewWriter(now clock) *Writer {
	return &Writer{now: now}
}

// Write persists a Markdown artifact to disk and returns its path.
func (w *Writer) Write(ctx context.Context, artifact Artifact) (string, error) {
	if err := os.MkdirAll(artifact.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	filename := fmt.Sprintf("%s_%s_%s.md",
		sanitise(artifact.Repository),
		sanitise(artifact.TargetRef),
		w.now(),
	)
	path := filepath.Join(artifact.OutputDir, filename)

	content := buildContent(artifact)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write markdown: %w", err)
	}

	return path, nil
}

func buildContent(artifact Artifact) string {
	var builder strings.Builder
	caser := cases.Title(language.English)
	builder.WriteString(fmt.Sprintf("# %s Review Report\n\n", caser.String(shortName(artifact.Repository))))
	builder.WriteString(fmt.Sprintf("- Model: %s\n", artifact.ModelName))
	builder.WriteString(fmt.Sprintf("- Base: %s\n", artifact.BaseRef))
	builder.WriteString(fmt.Sprintf("- Target: %s\n\n", artifact.TargetRef))

	if artifact.Review.Summary != "" {
		builder.WriteString("## Summary\n\n")
		builder.WriteString(artifact.Review.Summary)
		builder.WriteString("\n\n")
	}

	if len(artifact.Review.Comments) == 0 {
		builder.WriteString("No inline comments survived validation.\n")
		return builder.String()
	}

	builder.WriteString("## Inline Comments\n\n")
	for _, comment := range artifact.Review.Comments {
		builder.WriteString(fmt.Sprintf("### %s:%d\n\n", comment.Path, comment.NewLine))
		builder.WriteString(comment.Body)
		builder.WriteString("\n\n")
	}

	return builder.String()
}

func shortName(repository string) string {
	if idx := strings.LastIndex(repository, "/"); idx >= 0 {
		return repository[idx+1:]
	}
	return repository
}

func sanitise(value string) string {
	if value == "" {
		return "unknown"
	}
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, string(filepath.Separator), "-")
	value = strings.ReplaceAll(value, " ", "-")
	return value
}
