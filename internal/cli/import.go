package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/linkvault/internal/app"
	"github.com/MrSnakeDoc/linkvault/internal/config"
	"github.com/MrSnakeDoc/linkvault/internal/importer"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/sources/homepage"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Owner string
	Kind  string
}

// NewImportCommand imports a Homepage file once and exits.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import links from a Homepage bookmarks.yaml or services.yaml",
		Long: `Import links from a Homepage configuration file into one owner's collection.
Links whose URL is already saved are skipped, so the command can be rerun.
Open sessions of the owner receive the new links over the change feed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "identity receiving the links (required)")
	cmd.Flags().StringVar(&opts.Kind, "kind", string(homepage.KindBookmarks), "file kind (bookmarks|services)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func runImport(cmd *cobra.Command, opts *ImportOptions, path string) error {
	kind, ok := homepage.ParseKind(opts.Kind)
	if !ok {
		return fmt.Errorf("invalid kind %q: must be bookmarks or services", opts.Kind)
	}

	cfg := config.LoadStorage()
	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = loggerClient.Sync() }()

	backend, err := app.OpenBackend(cmd.Context(), cfg, loggerClient)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	res, err := importer.New(backend, loggerClient).ImportFile(cmd.Context(), opts.Owner, path, kind)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	return printResult(cmd, opts.JSON, res)
}

func printResult(cmd *cobra.Command, asJSON bool, res importer.Result) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err := fmt.Fprintf(out, "created %d, skipped %d, invalid %d\n", res.Created, res.Skipped, res.Invalid)
	return err
}
