package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/kilupskalvis/qcat/internal/core"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var editCmd = &cobra.Command{
	Use:   "edit <catalog-id>",
	Short: "Stage and save edits to a catalog",
	Long: `Open an editing console on a catalog.

Changes are staged locally and shown in place: added rows in green,
updated rows in yellow, deleted rows struck through. Nothing reaches the
server until save. A save may store the result as a new version with a
new id; the console follows it.

Commands are read from stdin, or from a file with --script. A script
stops at the first failing command. Type help for the command list.

Examples:
  qcat edit 3f2a...
  qcat edit 3f2a... --script fixes.txt`,
	Args: cobra.ExactArgs(1),
	Run:  runEdit,
}

var (
	editScript  string
	editVerbose bool
)

func init() {
	editCmd.Flags().StringVarP(&editScript, "script", "s", "", "Read commands from this file")
	editCmd.Flags().BoolVarP(&editVerbose, "verbose", "v", false, "Log session activity to stderr")
}

func runEdit(cmd *cobra.Command, args []string) {
	c := initContext()
	ctx := context.Background()

	var logger *slog.Logger
	if editVerbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	s := core.NewSession(c.Client, c.Config.PageSize, logger)
	if err := s.Open(ctx, args[0]); err != nil {
		exitError("%v", err)
	}

	var in io.Reader = os.Stdin
	interactive := editScript == "" && isatty.IsTerminal(os.Stdin.Fd())
	if editScript != "" {
		f, err := os.Open(editScript)
		if err != nil {
			exitError("%v", err)
		}
		defer f.Close()
		in = f
	}

	e := newEditor(s, os.Stdout)
	if interactive {
		e.show()
		hintColor.Println("Type help for commands.")
	}
	if err := e.run(ctx, in, interactive); err != nil {
		exitError("%v", err)
	}
}
