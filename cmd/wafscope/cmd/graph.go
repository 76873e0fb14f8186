package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solatis/wafscope/internal/rules"
	"github.com/solatis/wafscope/internal/ruleset"
)

var graphCmd = &cobra.Command{
	Use:   "graph <rules-file>",
	Short: "Print the label dependency graph of a rule set as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraph,
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("watch", false, "rebuild and print the graph whenever the file changes")
	graphCmd.Flags().Duration("debounce", ruleset.DefaultDebounce, "quiet period before rebuilding in --watch mode")
}

func runGraph(cmd *cobra.Command, args []string) error {
	path := args[0]
	out := cmd.OutOrStdout()

	decoded, err := ruleset.LoadFile(path)
	if err := printGraph(out, decoded, err); err != nil {
		return err
	}

	watch, _ := cmd.Flags().GetBool("watch")
	if !watch {
		return nil
	}

	debounce, _ := cmd.Flags().GetDuration("debounce")
	watcher, err := ruleset.NewWatcher(path, debounce, func(decoded *ruleset.Decoded, err error) {
		if err := printGraph(out, decoded, err); err != nil {
			slog.Warn("rule set rejected", slog.String("file", path), slog.Any("error", err))
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	slog.Info("watching rule set", slog.String("file", path))
	return watcher.Run(ctx)
}

// printGraph builds and prints the graph of a loaded rule set.
func printGraph(w io.Writer, decoded *ruleset.Decoded, err error) error {
	if err != nil {
		return err
	}
	graph, err := rules.BuildGraph(decoded.Rules)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}
	graph.InputWarnings = decoded.Skipped
	return printJSON(w, graph)
}
