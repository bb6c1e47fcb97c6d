// Package version holds the build version, overridable at link time with
// -ldflags "-X github.com/bkyoung/inline-reviewer/internal/version.Version=...".
package version

// Version is the semantic version of the binary.
var Version = "v0.1.0"
