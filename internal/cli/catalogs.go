package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var catalogsCmd = &cobra.Command{
	Use:   "catalogs",
	Short: "List catalogs",
	Long:  `List the newest version of every catalog, ordered by name.`,
	Run:   runCatalogs,
}

var (
	catalogsName   string
	catalogsOffset int
	catalogsLimit  int
)

func init() {
	catalogsCmd.Flags().StringVar(&catalogsName, "name", "", "Only catalogs whose name contains this text")
	catalogsCmd.Flags().IntVar(&catalogsOffset, "offset", 0, "Skip this many catalogs")
	catalogsCmd.Flags().IntVarP(&catalogsLimit, "limit", "n", 50, "Maximum number of catalogs to show")
}

func runCatalogs(cmd *cobra.Command, args []string) {
	c := initContext()

	previews, err := c.Client.ListCatalogs(context.Background(), catalogsOffset, catalogsLimit, catalogsName)
	if err != nil {
		exitError("failed to list catalogs: %v", err)
	}

	if len(previews) == 0 {
		fmt.Println("No catalogs")
		return
	}

	fmt.Printf("  %-36s  %-30s  %5s  %6s  %s\n", "ID", "Name", "Rev", "Pairs", "Updated")
	for _, p := range previews {
		fmt.Printf("  %-36s  %-30s  %5d  %6d  %s\n",
			p.ID,
			truncate(p.Name, 30),
			p.Revision,
			p.Length,
			p.UpdatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
}
