package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Execute runs the apitypes CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd constructs the root command so tests can exercise the CLI easily.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "apitypes",
		Short:         "Compile API response, permission and route documents into typed contracts",
		Long:          "apitypes validates YAML API documents, resolves permission bitmasks and emits TypeScript or Go contract files shared by client and server.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	// Flag errors such as unknown flags become usage errors that carry the
	// command's help text.
	flagErr := func(c *cobra.Command, err error) error {
		return newUsageError(fmt.Sprintf("%v\n\n%s", err, c.UsageString()))
	}
	cmd.SetFlagErrorFunc(flagErr)

	cmd.PersistentFlags().StringP("config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging output")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	for _, sub := range []*cobra.Command{newGenerateCmd(), newCheckCmd(), newInitCmd()} {
		sub.SetFlagErrorFunc(flagErr)
		cmd.AddCommand(sub)
	}

	return cmd
}
