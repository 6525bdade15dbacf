package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/linkvault/internal/version"
)

// NewVersionCommand prints build information.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if rootOpts.JSON {
				return json.NewEncoder(out).Encode(map[string]string{
					"version":    version.Version,
					"commit":     version.Commit,
					"build_date": version.BuildDate,
					"go_version": version.GoVersion,
				})
			}
			_, err := fmt.Fprintln(out, version.String())
			return err
		},
	}
}
