package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	JSON bool // machine-readable output
}

// NewRootCommand creates the linkvault command. Without a subcommand it
// serves.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "linkvault",
		Short:         "LinkVault - live saved links",
		Long:          "A saved-links service whose open sessions stay in sync with the store in real time.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "JSON output")

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}
