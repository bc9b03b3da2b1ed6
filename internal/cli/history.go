package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <catalog-id>",
	Short: "List the versions of a catalog",
	Long:  `List every stored version of a catalog, newest first. The given version is marked with *.`,
	Args:  cobra.ExactArgs(1),
	Run:   runHistory,
}

func runHistory(cmd *cobra.Command, args []string) {
	c := initContext()

	h, err := c.Client.GetHistory(context.Background(), args[0])
	if err != nil {
		exitError("failed to load history: %v", err)
	}
	printHistory(os.Stdout, h, args[0])
}
