// Package diff parses unified diff text and derives the two addressing views
// review platforms use for inline comments: new-file line numbers (GitLab)
// and absolute patch positions (GitHub).
//
// Position is 1-indexed from the first valid @@ hunk header, counting every
// physical line of the patch after that header, including later hunk headers.
// Parsing is best-effort and never fails: malformed input degrades to
// Unknown lines rather than errors.
package diff
