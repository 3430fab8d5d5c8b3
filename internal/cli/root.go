// Package cli implements the equipstat command line tool, which runs the
// dataset pipeline on local files without a server or database.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/JonMunkholm/equipstat/internal/core"
	"github.com/JonMunkholm/equipstat/internal/logging"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the equipstat command tree.
func NewRootCmd() *cobra.Command {
	var (
		aliasFile string
		logLevel  string
	)

	root := &cobra.Command{
		Use:           "equipstat",
		Short:         "Analyze equipment CSV files",
		Long:          "Resolve equipment CSV headers, compute summaries and export canonical CSV without running the server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logging.Setup(logLevel, "tint")
		},
	}

	root.PersistentFlags().StringVar(&aliasFile, "aliases", "", "YAML file extending the built-in header aliases")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	loadAliases := func() (*core.AliasTable, error) {
		if aliasFile == "" {
			return core.DefaultAliases(), nil
		}
		return core.LoadAliasTable(aliasFile)
	}

	root.AddCommand(
		newAnalyzeCmd(loadAliases),
		newExportCmd(loadAliases),
		newRowsCmd(loadAliases),
	)
	return root
}

type aliasLoader func() (*core.AliasTable, error)

// ingestFile runs the pipeline over a local file, or stdin when path is "-".
func ingestFile(cmd *cobra.Command, path string, load aliasLoader) (*core.IngestResult, error) {
	aliases, err := load()
	if err != nil {
		return nil, err
	}

	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	return core.IngestCSV(r, aliases)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
