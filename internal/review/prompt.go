package review

import (
	"fmt"
	"strings"

	"github.com/bkyoung/inline-reviewer/internal/domain"
)

// Prompt is a system/user message pair ready for a chat-completion call.
type Prompt struct {
	System string
	User   string
}

// Size limits on content sent to the model.
const (
	maxDiffChars = 30_000
	maxFileChars = 30_000
)

const summarySystem = "You are a senior developer reviewing code changes. " +
	"Provide a clear, concise code review in Markdown. Use bullet points and code blocks where helpful."

// Truncate bounds s to maxChars by keeping the head and tail halves around a
// marker. Model context is scarce; the middle of an oversized diff is the
// least informative part.
func Truncate(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	head := s[:maxChars/2]
	tail := s[len(s)-maxChars/2:]
	return head + "\n\n...TRUNCATED...\n\n" + tail
}

// SummaryPrompt builds the free-form review prompt covering the whole change
// set.
func SummaryPrompt(oldFiles []domain.OldFile, files []domain.FileDiff) Prompt {
	var parts []string

	parts = append(parts, "Files before changes (for context):")
	for _, f := range oldFiles {
		parts = append(parts, fmt.Sprintf("Filename: %s\n```\n%s\n```", f.Name, Truncate(f.Content, maxFileChars)))
	}

	var diffs []string
	for _, f := range files {
		diffs = append(diffs, f.Patch)
	}
	parts = append(parts, "\nDiffs (unidiff format):")
	parts = append(parts, fmt.Sprintf("```\n%s\n```", Truncate(strings.Join(diffs, "\n\n"), maxDiffChars)))

	parts = append(parts, strings.TrimSpace(`
Questions:
1. Summarize the changes in a succinct bullet list.
2. Are added/changed code clear and easy to understand?
3. Are names/comments descriptive?
4. Can the code be simplified? If so, give examples.
5. Any potential bugs? Please reference lines in the diff when possible.
6. Any potential security issues?`))

	return Prompt{
		System: summarySystem,
		User:   strings.Join(parts, "\n\n"),
	}
}

// CandidatePrompt builds the strict-JSON prompt asking for per-line comments.
// maxComments is interpolated so the model self-limits before the validation
// pipeline caps output anyway.
func CandidatePrompt(oldFiles []domain.OldFile, files []domain.FileDiff, maxComments int) Prompt {
	system := fmt.Sprintf(
		"You are a precise code reviewer. Produce STRICT JSON only (no markdown, no fences). "+
			"Target each comment to a single added/changed line in the unified diff using the NEW file line number. "+
			"Also include an exact 'code' string with the line's content to anchor accurately. "+
			"Return at most %d comments.", maxComments)

	var parts []string

	parts = append(parts, "Old files (context, truncated):")
	for _, f := range oldFiles {
		parts = append(parts, fmt.Sprintf("Filename: %s\n```\n%s\n```", f.Name, Truncate(f.Content, maxFileChars)))
	}

	parts = append(parts, "\nDiffs by file (unified diff):")
	perFileBudget := maxDiffChars / max(1, len(files))
	for _, f := range files {
		path := f.Path
		if path == "" {
			path = f.OldPath
		}
		parts = append(parts, fmt.Sprintf("FILE: %s\n```\n%s\n```", path, Truncate(f.Patch, perFileBudget)))
	}

	parts = append(parts, strings.TrimSpace(`
Return JSON ONLY in the following shape (no comments, no markdown):
{
  "comments": [
    { "new_path": string, "new_line": number, "body": string, "code": string }
  ]
}
Guidelines:
- Focus on correctness, clarity, naming, security, and complexity.
- Each comment must reference one specific NEW line (an added/changed line starting with '+').
- Keep bodies concise (<= 300 chars).
- Do not include backticks, code fences, or any pre/post text outside JSON.`))

	return Prompt{
		System: system,
		User:   strings.Join(parts, "\n\n"),
	}
}
