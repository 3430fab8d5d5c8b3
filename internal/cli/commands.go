package cli

import (
	"fmt"
	"os"

	"github.com/JonMunkholm/equipstat/internal/core"
	"github.com/spf13/cobra"
)

func newAnalyzeCmd(load aliasLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze FILE",
		Short: "Print the dataset summary as JSON",
		Long:  "Validates the file's headers and prints total count, averages and type distribution. Use - to read stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ingestFile(cmd, args[0], load)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res.Summary)
		},
	}
}

func newExportCmd(load aliasLoader) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Rewrite a file as canonical CSV",
		Long:  "Writes the normalized rows with the standard header and column order.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ingestFile(cmd, args[0], load)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return core.WriteCSV(cmd.OutOrStdout(), res.Rows)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err := core.WriteCSV(f, res.Rows); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d rows to %s\n", res.RowCount(), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newRowsCmd(load aliasLoader) *cobra.Command {
	var offset, limit int

	cmd := &cobra.Command{
		Use:   "rows FILE",
		Short: "Print a window of normalized rows as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ingestFile(cmd, args[0], load)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), core.Window(res.Rows, offset, limit))
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	cmd.Flags().IntVar(&limit, "limit", core.DefaultPageLimit, fmt.Sprintf("Rows to return (1-%d)", core.MaxPageLimit))
	return cmd
}
