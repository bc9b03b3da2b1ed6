package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/kilupskalvis/qcat/internal/core"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <catalog-id> [pair-id]",
	Short: "Show a page of a catalog, or one pair",
	Long: `Show one page of a catalog. With a pair id (or a unique prefix of one
on the page), print every field of that pair instead.`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runShow,
}

var showPage int

func init() {
	showCmd.Flags().IntVarP(&showPage, "page", "p", 1, "Page to show")
}

func runShow(cmd *cobra.Command, args []string) {
	c := initContext()
	ctx := context.Background()

	s := core.NewSession(c.Client, c.Config.PageSize, nil)
	if err := s.Open(ctx, args[0]); err != nil {
		exitError("%v", err)
	}
	if showPage > 1 {
		if err := s.SetPage(ctx, showPage-1); err != nil {
			exitError("%v", err)
		}
	}

	if len(args) == 2 {
		id, err := resolveRowID(s, args[1])
		if err != nil {
			exitError("%v", err)
		}
		pair, _ := s.Effective(id)
		printPair(os.Stdout, pair)
		return
	}

	printBanner(os.Stdout, s)
	fmt.Println()
	printRows(os.Stdout, s.Rows())
}
