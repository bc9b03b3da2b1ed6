// Package cli implements the qcat command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/kilupskalvis/qcat/internal/config"
	"github.com/kilupskalvis/qcat/internal/remote"
	"github.com/spf13/cobra"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Client remote.CatalogClient
}

// initContext loads the workspace config and builds a retrying client.
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}
	client := remote.NewRetryClient(remote.NewHTTPClient(cfg.ServerURL, cfg.Token), nil)
	return &cmdContext{Config: cfg, Client: client}
}

var rootCmd = &cobra.Command{
	Use:   "qcat",
	Short: "Q&A catalog console",
	Long: `qcat browses and edits Q&A catalogs held by a qcat-server.

Edits are staged locally and submitted as one batch on save. A save may
produce a new catalog version with a new id; qcat follows it.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(catalogsCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(replaceCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(adminCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// shortID returns first 8 characters of an ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
