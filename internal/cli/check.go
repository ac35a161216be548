package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codecup-codeday/rctf-spooky/internal/compiler"
)

var checkRunner = runCheck

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate API documents without emitting anything",
		Long:  "Compile the documents under a source root and report the first failing stage, or a summary of the contract.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			return checkRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("source", "", "Source root holding perms.yml, responses/ and routes/ (default \".\")")
	flags.Int("concurrency", 0, "Documents validated in parallel (0 = number of CPUs)")

	return cmd
}

func runCheck(ctx context.Context, cfg *Config) error {
	bundle, err := compiler.Compile(ctx, compiler.Config{
		SourceRoot:  cfg.Source,
		Concurrency: cfg.Concurrency,
		Logger:      newLogger(cfg.stderr(), cfg.Verbose, cfg.NoColor),
	})
	if err != nil {
		return reportCompileError(cfg.stderr(), err, cfg.NoColor)
	}

	w := cfg.stdout()
	green := color.New(color.FgGreen, color.Bold)
	if cfg.NoColor {
		green.DisableColor()
	}
	green.Fprintf(w, "✓ %s\n", bundle.Summary())
	if !cfg.Verbose {
		return nil
	}
	for _, r := range bundle.Routes {
		fmt.Fprintf(w, "  %-7s %-32s %s perms=%d\n", r.Method, r.Path, r.Ident, r.PermMask)
	}
	return nil
}
