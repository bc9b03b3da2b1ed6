package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/kilupskalvis/qcat/internal/export"
	"github.com/kilupskalvis/qcat/internal/models"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a catalog",
	Long: `Create a catalog, optionally uploading pairs from a JSON, YAML or CSV file.

CSV files need the columns question, expected_output and contexts (a JSON
array). Any other column is stored in the pair's meta_data.

Examples:
  qcat create --name support
  qcat create --name support --file pairs.csv`,
	Run: runCreate,
}

var (
	createName   string
	createFile   string
	createFormat string
)

func init() {
	createCmd.Flags().StringVar(&createName, "name", "", "Catalog name")
	createCmd.Flags().StringVarP(&createFile, "file", "f", "", "Pairs to upload")
	createCmd.Flags().StringVar(&createFormat, "format", "", "File format (default: from the file extension)")
	createCmd.MarkFlagRequired("name")
}

// readPairsFile decodes an upload file, taking the format from the flag or
// the file extension.
func readPairsFile(path, format string) ([]models.QAPair, error) {
	var (
		f   export.Format
		err error
	)
	if format != "" {
		f, err = export.ParseFormat(format)
	} else {
		f, err = export.FormatFromPath(path)
	}
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return export.Decode(file, f)
}

func runCreate(cmd *cobra.Command, args []string) {
	c := initContext()

	var pairs []models.QAPair
	if createFile != "" {
		var err error
		pairs, err = readPairsFile(createFile, createFormat)
		if err != nil {
			exitError("failed to read %s: %v", createFile, err)
		}
	}

	catalog, err := c.Client.CreateCatalog(context.Background(), createName, pairs)
	if err != nil {
		exitError("failed to create catalog: %v", err)
	}

	addedColor.Printf("Created catalog '%s'\n", catalog.Name)
	fmt.Printf("  ID:    %s\n", catalog.ID)
	fmt.Printf("  Pairs: %d\n", len(pairs))
}
