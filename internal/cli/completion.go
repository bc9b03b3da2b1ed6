package cli

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/kilupskalvis/qcat/internal/config"
	"github.com/kilupskalvis/qcat/internal/remote"
	"github.com/spf13/cobra"
)

func init() {
	for _, cmd := range []*cobra.Command{showCmd, historyCmd, editCmd, exportCmd, replaceCmd, deleteCmd, adminPruneCmd} {
		cmd.ValidArgsFunction = completeCatalogIDs
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "completion [bash|zsh|fish]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for qcat.

To load completions:

Bash:
  $ source <(qcat completion bash)
  # Or add to ~/.bashrc:
  $ echo 'source <(qcat completion bash)' >> ~/.bashrc

Zsh:
  $ source <(qcat completion zsh)
  # Or add to ~/.zshrc:
  $ echo 'source <(qcat completion zsh)' >> ~/.zshrc

Fish:
  $ qcat completion fish | source
  # Or add to config:
  $ qcat completion fish > ~/.config/fish/completions/qcat.fish
`,
		ValidArgs:             []string{"bash", "zsh", "fish"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		DisableFlagsInUseLine: true,
		Run: func(cmd *cobra.Command, args []string) {
			switch args[0] {
			case "bash":
				rootCmd.GenBashCompletion(os.Stdout)
			case "zsh":
				rootCmd.GenZshCompletion(os.Stdout)
			case "fish":
				rootCmd.GenFishCompletion(os.Stdout, true)
			}
		},
	})
}

// completeCatalogIDs offers catalog ids, described by name, for the first
// argument. It stays silent outside a workspace or when the server is down.
func completeCatalogIDs(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	previews, err := remote.NewHTTPClient(cfg.ServerURL, cfg.Token).ListCatalogs(ctx, 0, 200, "")
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var out []string
	for _, p := range previews {
		if strings.HasPrefix(p.ID, toComplete) {
			out = append(out, p.ID+"\t"+p.Name)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
