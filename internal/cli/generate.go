package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codecup-codeday/rctf-spooky/internal/compiler"
	"github.com/codecup-codeday/rctf-spooky/internal/emitter/emitfs"
	"github.com/codecup-codeday/rctf-spooky/internal/emitter/goemitter"
	"github.com/codecup-codeday/rctf-spooky/internal/emitter/tsemitter"
)

// DefaultOutDir is the output directory below the source root used when no
// --out is given.
const DefaultOutDir = "build"

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Compile API documents and emit typed contract files",
		Long: "Compile the responses, permissions and routes under a source root and emit " +
			"TypeScript or Go contract files. Options can be provided via flags, config files, or defaults.",
		Example: strings.TrimSpace(`  apitypes generate --source ./api --lang ts --out ./build
  apitypes --config apitypes.yaml generate --force --dry-run`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			return generateRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("source", "", "Source root holding perms.yml, responses/ and routes/ (default \".\")")
	flags.String("lang", "", "Target language to emit (ts|go); defaults to ts")
	flags.String("out", "", "Output directory (defaults to <source>/build)")
	flags.String("package-name", "", "npm package name (ts) or Go package clause (go)")
	flags.Int("concurrency", 0, "Documents validated in parallel (0 = number of CPUs)")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")
	flags.Bool("force", false, "Overwrite existing output when set")

	return cmd
}

func runGenerate(ctx context.Context, cfg *Config) error {
	log := newLogger(cfg.stderr(), cfg.Verbose, cfg.NoColor)

	bundle, err := compiler.Compile(ctx, compiler.Config{
		SourceRoot:  cfg.Source,
		Concurrency: cfg.Concurrency,
		Logger:      log,
	})
	if err != nil {
		return reportCompileError(cfg.stderr(), err, cfg.NoColor)
	}

	outDir := cfg.Out
	if outDir == "" {
		outDir = filepath.Join(cfg.Source, DefaultOutDir)
	}
	absOut := outDir
	if ap, err := filepath.Abs(outDir); err == nil {
		absOut = ap
	}

	var planned []emitfs.PlannedFile
	switch cfg.Lang {
	case LangTS:
		res, err := tsemitter.Emit(ctx, bundle, tsemitter.Options{
			OutDir:      outDir,
			PackageName: cfg.PackageName,
			Force:       cfg.Force,
			DryRun:      cfg.DryRun,
			Verbose:     cfg.Verbose,
		})
		if err != nil {
			return wrapOutputError(err, absOut)
		}
		planned = res.Planned
	case LangGo:
		res, err := goemitter.Emit(ctx, bundle, goemitter.Options{
			OutDir:      outDir,
			PackageName: cfg.PackageName,
			Force:       cfg.Force,
			DryRun:      cfg.DryRun,
			Verbose:     cfg.Verbose,
		})
		if err != nil {
			return wrapOutputError(err, absOut)
		}
		log.Debug().Str("package", res.PackageName).Msg("go package")
		planned = res.Planned
	default:
		return newUsageError(fmt.Sprintf("unsupported --lang %q (allowed: ts, go)", cfg.Lang))
	}

	if cfg.DryRun {
		printPlan(cfg.stdout(), absOut, planned, cfg.Verbose)
		return nil
	}
	log.Info().
		Str("lang", cfg.Lang).
		Str("out", absOut).
		Int("files", len(planned)).
		Msg("wrote contract")
	return nil
}

func printPlan(w io.Writer, outDir string, planned []emitfs.PlannedFile, verbose bool) {
	fmt.Fprintf(w, "Planned writes to %s (%d files):\n", outDir, len(planned))
	for _, p := range planned {
		if verbose && p.Unchanged {
			fmt.Fprintf(w, "- %s (unchanged)\n", p.RelPath)
			continue
		}
		fmt.Fprintf(w, "- %s\n", p.RelPath)
	}
}

func wrapOutputError(err error, outDir string) error {
	// Common filesystem failures get a hint about --out and --force.
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "read-only") || strings.Contains(lower, "mkdir") || strings.Contains(lower, "rename") || strings.Contains(lower, "output directory") {
		return newUsageError(fmt.Sprintf("output error for %s: %s\nHint: choose a different --out or use --force when appropriate.", outDir, msg))
	}
	return err
}
