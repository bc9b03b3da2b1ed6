package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kilupskalvis/qcat/internal/config"
	"github.com/kilupskalvis/qcat/internal/remote"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a qcat workspace",
	Long: `Initialize a qcat workspace in the current directory.
This creates a .qcat directory holding the server URL and API token.`,
	Run: runInit,
}

var (
	initURL     string
	initToken   string
	initNoCheck bool
)

func init() {
	initCmd.Flags().StringVar(&initURL, "url", "http://localhost:8730", "qcat-server URL")
	initCmd.Flags().StringVar(&initToken, "token", "", "API token (or set "+config.EnvToken+")")
	initCmd.Flags().BoolVar(&initNoCheck, "no-check", false, "Skip the connection check")
}

func runInit(cmd *cobra.Command, args []string) {
	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	if !initNoCheck {
		token := initToken
		if env := os.Getenv(config.EnvToken); env != "" && token == "" {
			token = env
		}
		fmt.Printf("Connecting to %s...\n", initURL)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := remote.NewHTTPClient(initURL, token).ListCatalogs(ctx, 0, 1, ""); err != nil {
			exitError("failed to reach qcat-server: %v", err)
		}
	}

	cfg, err := config.Initialize(cwd, initURL, initToken)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	fmt.Printf("\nInitialized qcat workspace in %s/\n", config.QCatDir)
	fmt.Printf("Server: %s\n", cfg.ServerURL)
	if cfg.Token == "" {
		hintColor.Printf("No token stored; set %s before running other commands.\n", config.EnvToken)
	}
}
