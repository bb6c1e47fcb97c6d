// Package cli builds the Cobra command tree for the reviewer binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	usecase "github.com/bkyoung/inline-reviewer/internal/usecase/review"
)

// ErrVersionRequested indicates the user requested the CLI version and no
// further work should be done.
var ErrVersionRequested = errors.New("version requested")

// LocalReviewer runs local review cycles.
type LocalReviewer interface {
	ReviewLocal(ctx context.Context, task usecase.LocalTask) (string, error)
}

// Server serves the webhook endpoints until its context is cancelled.
type Server interface {
	Start(ctx context.Context) error
}

// Arguments encapsulates IO writers injected from the host process.
type Arguments struct {
	OutWriter io.Writer
	ErrWriter io.Writer
}

// Dependencies captures the collaborators for the CLI.
type Dependencies struct {
	LocalReviewer      LocalReviewer
	Server             Server
	Args               Arguments
	DefaultOutput      string
	DefaultRepo        string
	DefaultMaxComments int
	Version            string
}

// NewRootCommand constructs the root Cobra command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	versionString := deps.Version
	if versionString == "" {
		versionString = "v0.0.0"
	}

	root := &cobra.Command{
		Use:   "inline-reviewer",
		Short: "AI-assisted inline code review for merge and pull requests",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	outWriter := deps.Args.OutWriter
	if outWriter == nil {
		outWriter = os.Stdout
	}
	errWriter := deps.Args.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	root.SetOut(outWriter)
	root.SetErr(errWriter)

	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Run a code review",
	}
	reviewCmd.AddCommand(localCommand(deps))
	root.AddCommand(reviewCmd)
	root.AddCommand(serveCommand(deps.Server))

	var showVersion bool
	root.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
	versionHandler := func(cmd *cobra.Command, args []string) error {
		if showVersion {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), versionString)
			return ErrVersionRequested
		}
		return nil
	}
	root.PersistentPreRunE = versionHandler
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if err := versionHandler(cmd, args); err != nil {
			return err
		}
		return cmd.Help()
	}

	return root
}

func localCommand(deps Dependencies) *cobra.Command {
	var baseRef string
	var targetRef string
	var outputDir string
	var repository string
	var maxComments int

	cmd := &cobra.Command{
		Use:   "local [target]",
		Short: "Review committed changes in the local repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.LocalReviewer == nil {
				return fmt.Errorf("local review is not configured")
			}
			if len(args) > 0 {
				targetRef = args[0]
			}
			if targetRef == "" {
				return fmt.Errorf("target ref not specified; pass as an argument or use --target")
			}

			path, err := deps.LocalReviewer.ReviewLocal(cmd.Context(), usecase.LocalTask{
				Repository:  repository,
				BaseRef:     baseRef,
				TargetRef:   targetRef,
				OutputDir:   outputDir,
				MaxComments: maxComments,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "review written to %s\n", path)
			return nil
		},
	}

	defaultOutput := deps.DefaultOutput
	if defaultOutput == "" {
		defaultOutput = "out"
	}
	cmd.Flags().StringVar(&baseRef, "base", "main", "Base reference to diff against")
	cmd.Flags().StringVar(&targetRef, "target", "", "Target ref to review (overrides positional)")
	cmd.Flags().StringVar(&outputDir, "output", defaultOutput, "Directory to write the review report")
	cmd.Flags().StringVar(&repository, "repo", deps.DefaultRepo, "Repository name used in the report")
	cmd.Flags().IntVar(&maxComments, "max-comments", deps.DefaultMaxComments, "Maximum inline comments to keep")

	return cmd
}

func serveCommand(server Server) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve platform webhooks and review change requests as they update",
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == nil {
				return fmt.Errorf("server is not configured")
			}
			return server.Start(cmd.Context())
		},
	}
}
