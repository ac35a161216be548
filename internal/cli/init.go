package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codecup-codeday/rctf-spooky/internal/emitter/emitfs"
)

// DefaultConfigFile is the name init writes when --out is omitted.
const DefaultConfigFile = "apitypes.yaml"

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
	Verbose    bool
	Stdout     io.Writer
}

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample apitypes configuration file",
		Long:  "Scaffold a commented apitypes configuration file that documents available options.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			cfg := &InitConfig{
				OutputPath: out,
				Force:      force,
				Verbose:    verbose,
				Stdout:     cmd.OutOrStdout(),
			}
			return initRunner(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("out", DefaultConfigFile, "Where to write the sample config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = DefaultConfigFile
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	switch st, err := os.Stat(absPath); {
	case err != nil:
	case st.IsDir():
		return newUsageError(fmt.Sprintf("init: %q is a directory", absPath))
	case !cfg.Force:
		return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", absPath))
	}

	content := strings.TrimSpace(sampleConfigYAML) + "\n"
	if err := emitfs.WriteAtomic(absPath, []byte(content)); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot write %s: %v\nHint: choose a different --out or check directory permissions.", absPath, err))
	}

	w := cfg.Stdout
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "Wrote sample config to %s\n", absPath)
	if cfg.Verbose {
		fmt.Fprintf(w, "Use it with: apitypes --config %s generate\n", out)
	}
	return nil
}

// sampleConfigYAML is a commented example config documenting available options.
const sampleConfigYAML = `# apitypes configuration (YAML)
# All fields are optional. Command-line flags override config values.

# Source root holding perms.yml (or perms.yaml), responses/ and routes/.
# source: .

# Target language to emit (ts|go). Defaults to ts when omitted.
# lang: ts

# Output directory. Defaults to <source>/build.
# out: ./build

# ts: name written to package.json (omitted when empty).
# go: package clause of the generated file (defaults to apitypes).
# packageName: "@ctf/api-types"

# Documents validated in parallel; 0 uses the number of CPUs.
# concurrency: 0

# Preview planned outputs without writing files.
# dryRun: false

# Overwrite a non-empty output directory.
# force: false

# Enable verbose logging.
# verbose: false

# Disable colored log and error output.
# noColor: false
`
