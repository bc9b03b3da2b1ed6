package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kilupskalvis/qcat/internal/core"
	"github.com/kilupskalvis/qcat/internal/export"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <catalog-id>",
	Short: "Download every pair of a catalog",
	Long: `Download every pair of a catalog version as JSON, YAML or CSV.

Examples:
  qcat export 3f2a... --output pairs.csv
  qcat export 3f2a... --format yaml > pairs.yaml`,
	Args: cobra.ExactArgs(1),
	Run:  runExport,
}

var (
	exportFormat   string
	exportOutput   string
	exportPageSize int
)

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "Output format: json, yaml or csv (default: from --output, else json)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to this file instead of stdout")
	exportCmd.Flags().IntVar(&exportPageSize, "page-size", 200, "Pairs fetched per request")
}

func runExport(cmd *cobra.Command, args []string) {
	c := initContext()

	format := export.FormatJSON
	var err error
	switch {
	case exportFormat != "":
		format, err = export.ParseFormat(exportFormat)
	case exportOutput != "":
		format, err = export.FormatFromPath(exportOutput)
	}
	if err != nil {
		exitError("%v", err)
	}

	progress := func(done, total int) {
		fmt.Fprintf(os.Stderr, "\rFetching pages: %d/%d", done, total)
	}
	pairs, err := core.FetchAllPairs(context.Background(), c.Client, args[0], exportPageSize, progress)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		exitError("failed to download pairs: %v", err)
	}

	var w io.Writer = os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			exitError("%v", err)
		}
		defer f.Close()
		w = f
	}

	if err := export.Encode(w, format, pairs); err != nil {
		exitError("failed to write pairs: %v", err)
	}
	if exportOutput != "" {
		addedColor.Fprintf(os.Stderr, "Wrote %d pairs to %s\n", len(pairs), exportOutput)
	}
}
