package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/codescope/codescope/internal/output"
	"github.com/codescope/codescope/internal/store"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index [path]",
		Short: "Index a source tree",
		Long: `Index scans the project, builds hierarchical chunks for every
source file, embeds them in the code and concept spaces, and persists
the result under .codescope/ in the project root.

Re-running index is incremental at the file level: files that vanished
are removed, the rest are rebuilt.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runIndex,
	}
}

func runIndex(cmd *cobra.Command, args []string) error {
	root, err := workingDir(args)
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())

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

	out.Printf("Indexing %s ...\n", root)
	res, err := ws.runner().Run(cmd.Context())
	if err != nil {
		return err
	}

	out.Successf("Indexed %d files (%d chunks, %d embedded) in %s",
		res.FilesIndexed, res.Chunks, res.Embedded, res.Duration.Round(time.Millisecond))
	if res.FilesSkipped > 0 {
		out.Warningf("Skipped %d unreadable files, see logs", res.FilesSkipped)
	}
	if res.FilesRemoved > 0 {
		out.Dimf("Removed %d stale files from the index", res.FilesRemoved)
	}
	slog.Info("index command finished",
		"root", root,
		"files", res.FilesIndexed,
		"chunks", res.Chunks)
	return nil
}
