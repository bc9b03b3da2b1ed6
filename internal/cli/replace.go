package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var replaceCmd = &cobra.Command{
	Use:   "replace <catalog-id>",
	Short: "Replace all pairs of a catalog from a file",
	Long: `Upload a file as the complete new content of a catalog. The result is
stored as a new version; the previous version stays in the history.`,
	Args: cobra.ExactArgs(1),
	Run:  runReplace,
}

var (
	replaceFile   string
	replaceFormat string
)

func init() {
	replaceCmd.Flags().StringVarP(&replaceFile, "file", "f", "", "Pairs to upload")
	replaceCmd.Flags().StringVar(&replaceFormat, "format", "", "File format (default: from the file extension)")
	replaceCmd.MarkFlagRequired("file")
}

func runReplace(cmd *cobra.Command, args []string) {
	c := initContext()

	pairs, err := readPairsFile(replaceFile, replaceFormat)
	if err != nil {
		exitError("failed to read %s: %v", replaceFile, err)
	}

	catalog, err := c.Client.ReplacePairs(context.Background(), args[0], pairs)
	if err != nil {
		exitError("failed to replace pairs: %v", err)
	}

	addedColor.Printf("Uploaded %d pairs as revision %d\n", len(pairs), catalog.Revision)
	if catalog.ID != args[0] {
		hintColor.Printf("New version id: %s\n", catalog.ID)
	}
}

var deleteCmd = &cobra.Command{
	Use:   "delete <catalog-id>",
	Short: "Delete one catalog version",
	Args:  cobra.ExactArgs(1),
	Run:   runDelete,
}

func runDelete(cmd *cobra.Command, args []string) {
	c := initContext()

	result, err := c.Client.DeleteCatalog(context.Background(), args[0])
	if err != nil {
		exitError("failed to delete catalog: %v", err)
	}

	fmt.Printf("Deleted '%s'\n", args[0])
	if result.PreviousRevisionID != nil {
		hintColor.Printf("Newest remaining version: %s\n", *result.PreviousRevisionID)
	} else {
		fmt.Println("No versions of this catalog remain")
	}
}
