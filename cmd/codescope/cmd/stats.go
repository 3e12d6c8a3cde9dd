package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/codescope/codescope/internal/chunk"
	"github.com/codescope/codescope/internal/output"
)

type statsOptions struct {
	format string
}

func newStatsCmd() *cobra.Command {
	opts := &statsOptions{}

	cmd := &cobra.Command{
		Use:   "stats [path]",
		Short: "Show index statistics",
		Long:  "Stats summarizes the persisted index: files, chunks per level, and embedded pairs.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text",
		"Output format: text or json")

	return cmd
}

type indexStats struct {
	Root           string `json:"root"`
	Files          int    `json:"files"`
	Chunks         int    `json:"chunks"`
	Embedded       int    `json:"embedded"`
	Functions      int    `json:"functions"`
	Classes        int    `json:"classes"`
	Blocks         int    `json:"blocks"`
	MetadataBytes  int64  `json:"metadataBytes"`
	EmbeddingBytes int64  `json:"embeddingBytes"`
}

func runStats(cmd *cobra.Command, args []string, opts *statsOptions) error {
	root, err := workingDir(args)
	if err != nil {
		return err
	}

	ws, err := openWorkspace(root)
	if err != nil {
		return err
	}
	if err := ws.load(); err != nil {
		return err
	}

	levels := ws.idx.CountByLevel()
	metaBytes, embBytes := ws.st.DocumentSizes()
	stats := indexStats{
		Root:           root,
		Files:          len(ws.idx.Files()),
		Chunks:         ws.idx.Len(),
		Embedded:       ws.orch.Len(),
		Functions:      levels[chunk.LevelFunction],
		Classes:        levels[chunk.LevelClass],
		Blocks:         levels[chunk.LevelBlock],
		MetadataBytes:  metaBytes,
		EmbeddingBytes: embBytes,
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	out := output.New(cmd.OutOrStdout())
	out.Header("Index statistics")
	out.Printf("  Root:      %s\n", stats.Root)
	out.Printf("  Files:     %d\n", stats.Files)
	out.Printf("  Chunks:    %d (%d classes, %d functions, %d blocks)\n",
		stats.Chunks, stats.Classes, stats.Functions, stats.Blocks)
	out.Printf("  Embedded:  %d pairs\n", stats.Embedded)
	out.Printf("  On disk:   %d B metadata, %d B embeddings\n",
		stats.MetadataBytes, stats.EmbeddingBytes)
	if stats.Chunks == 0 {
		out.Dimf("Empty index. Run 'codescope index' first.")
	}
	return nil
}
