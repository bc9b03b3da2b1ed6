package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/kilupskalvis/qcat/internal/config"
	"github.com/kilupskalvis/qcat/internal/remote"
	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Server administration",
	Long: `Manage API tokens and prune catalog history on a qcat-server.

Admin commands authenticate with the server's admin token, read from
--admin-token or QCAT_ADMIN_TOKEN. The server URL defaults to the one in
the workspace config.`,
}

var adminTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var adminTokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API token",
	Args:  cobra.NoArgs,
	Run:   runAdminTokenCreate,
}

var adminTokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API tokens",
	Args:  cobra.NoArgs,
	Run:   runAdminTokenList,
}

var adminTokenDeleteCmd = &cobra.Command{
	Use:   "delete <token-id>",
	Short: "Delete an API token",
	Args:  cobra.ExactArgs(1),
	Run:   runAdminTokenDelete,
}

var adminPruneCmd = &cobra.Command{
	Use:   "prune <catalog-id>",
	Short: "Delete old versions of a catalog",
	Long: `Delete every version of a catalog except the newest --keep ones.

Example:
  qcat admin prune 3f2a... --keep 5`,
	Args: cobra.ExactArgs(1),
	Run:  runAdminPrune,
}

var (
	adminURL             string
	adminToken           string
	adminTokenDesc       string
	adminTokenPermission string
	adminPruneKeep       int
)

func init() {
	adminCmd.PersistentFlags().StringVar(&adminURL, "url",
		os.Getenv("QCAT_SERVER_URL"),
		"Server base URL (env: QCAT_SERVER_URL, default: workspace config)")
	adminCmd.PersistentFlags().StringVar(&adminToken, "admin-token",
		os.Getenv("QCAT_ADMIN_TOKEN"),
		"Admin token (env: QCAT_ADMIN_TOKEN)")

	adminCmd.AddCommand(adminTokenCmd, adminPruneCmd)
	adminTokenCmd.AddCommand(adminTokenCreateCmd, adminTokenListCmd, adminTokenDeleteCmd)

	tf := adminTokenCreateCmd.Flags()
	tf.StringVar(&adminTokenDesc, "desc", "", "Token description")
	tf.StringVar(&adminTokenPermission, "permission", "rw", "Permission level: ro or rw")

	adminPruneCmd.Flags().IntVar(&adminPruneKeep, "keep", 10, "Number of newest versions to keep")
}

func resolveAdminClient() *remote.AdminClient {
	url := adminURL
	if url == "" {
		if cfg, err := config.Load(); err == nil {
			url = cfg.ServerURL
		}
	}
	if url == "" {
		exitError("--url or QCAT_SERVER_URL is required outside a workspace")
	}
	if adminToken == "" {
		exitError("--admin-token or QCAT_ADMIN_TOKEN is required")
	}
	return remote.NewAdminClient(url, adminToken)
}

func runAdminTokenCreate(_ *cobra.Command, _ []string) {
	c := resolveAdminClient()

	resp, err := c.CreateToken(context.Background(), adminTokenDesc, adminTokenPermission)
	if err != nil {
		exitError("%v", err)
	}

	fmt.Println("Token created.")
	fmt.Printf("  ID:          %s\n", resp.ID)
	fmt.Printf("  Description: %s\n", resp.Description)
	fmt.Printf("  Permission:  %s\n", resp.Permission)
	fmt.Println()
	addedColor.Printf("Token: %s\n", resp.Token)
	updatedColor.Println("Save this token, it will not be shown again.")
}

func runAdminTokenList(_ *cobra.Command, _ []string) {
	c := resolveAdminClient()

	tokens, err := c.ListTokens(context.Background())
	if err != nil {
		exitError("%v", err)
	}
	if len(tokens) == 0 {
		return
	}

	fmt.Printf("  %-32s  %-24s  %s\n", "ID", "Description", "Permission")
	for _, t := range tokens {
		fmt.Printf("  %-32s  %-24s  %s\n", t.ID, truncate(t.Description, 24), t.Permission)
	}
}

func runAdminTokenDelete(_ *cobra.Command, args []string) {
	c := resolveAdminClient()

	if err := c.DeleteToken(context.Background(), args[0]); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Deleted token '%s'\n", args[0])
}

func runAdminPrune(_ *cobra.Command, args []string) {
	c := resolveAdminClient()

	result, err := c.PruneHistory(context.Background(), args[0], adminPruneKeep)
	if err != nil {
		exitError("%v", err)
	}

	fmt.Printf("Scanned %d versions, deleted %d\n", result.VersionsScanned, result.VersionsDeleted)
	for _, id := range result.Deleted {
		deletedColor.Printf("  %s\n", id)
	}
}
