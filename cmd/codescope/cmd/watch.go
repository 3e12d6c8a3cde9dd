package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codescope/codescope/internal/index"
	"github.com/codescope/codescope/internal/output"
	"github.com/codescope/codescope/internal/store"
	"github.com/codescope/codescope/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch the project and re-index on changes",
		Long: `Watch runs an initial indexing pass, then re-indexes whenever
source files change. Change bursts are debounced into a single run.

Stop with Ctrl-C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := workingDir(args)
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, err := openWorkspace(root)
	if err != nil {
		return err
	}

	lock, err := store.AcquireLock(ws.st.Dir())
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := ws.load(); err != nil {
		return err
	}

	runner := ws.runner()
	res, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	out.Successf("Indexed %d files (%d chunks)", res.FilesIndexed, res.Chunks)
	out.Printf("Watching %s for changes...\n", root)

	w := watcher.New(root, ws.cfg, runner, nil)
	w.OnRun = func(res *index.Result, err error) {
		if err != nil {
			out.Errorf("Re-index failed: %v", err)
			return
		}
		out.Successf("Re-indexed %d files (%d chunks) in %s",
			res.FilesIndexed, res.Chunks, res.Duration.Round(time.Millisecond))
	}

	err = w.Watch(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
