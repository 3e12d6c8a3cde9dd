package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codescope/codescope/internal/chunk"
	"github.com/codescope/codescope/internal/output"
	"github.com/codescope/codescope/internal/search"
)

type searchOptions struct {
	limit    int
	language string
	format   string
	root     string
}

func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search embeds the query in both vector spaces, fuses the two
ranked lists, and prints the top chunks by relevance.

The index must exist; run 'codescope index' first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0,
		"Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "",
		"Only return chunks in this language")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text",
		"Output format: text or json")
	cmd.Flags().StringVar(&opts.root, "root", "",
		"Project root (default current directory)")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts *searchOptions) error {
	root := opts.root
	if root == "" {
		var err error
		root, err = workingDir(nil)
		if err != nil {
			return err
		}
	}

	ws, err := openWorkspace(root)
	if err != nil {
		return err
	}
	if err := ws.load(); err != nil {
		return err
	}

	limit := opts.limit
	if limit <= 0 {
		limit = ws.cfg.Search.DefaultLimit
	}
	if limit > ws.cfg.Search.MaxLimit {
		limit = ws.cfg.Search.MaxLimit
	}

	engine, err := ws.engine()
	if err != nil {
		return err
	}

	var results []search.Result
	if opts.language != "" {
		lang := strings.ToLower(opts.language)
		results, err = engine.SearchWithFilter(cmd.Context(), query, limit,
			func(c *chunk.Chunk) bool {
				return strings.ToLower(c.Metadata.Language) == lang
			})
	} else {
		results, err = engine.Search(cmd.Context(), query, limit)
	}
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		return printResultsJSON(cmd, query, results)
	}
	printResultsText(out, query, results)
	return nil
}

func printResultsJSON(cmd *cobra.Command, query string, results []search.Result) error {
	payload := struct {
		Query   string          `json:"query"`
		Count   int             `json:"count"`
		Results []search.Result `json:"results"`
	}{Query: query, Count: len(results), Results: results}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func printResultsText(out *output.Writer, query string, results []search.Result) {
	if len(results) == 0 {
		out.Warningf("No results for %q", query)
		out.Dimf("Is the index built and the embedding service reachable?")
		return
	}

	out.Header(fmt.Sprintf("%d results for %q", len(results), query))
	for i, r := range results {
		c := r.Chunk
		out.Printf("\n%d. %s %s\n", i+1, c.Name,
			out.Scoref("(relevance %.3f, score %.3f)", r.Relevance, r.Score))
		out.Dimf("   %s:%d-%d  [%s %s]",
			c.Metadata.FilePath, c.Metadata.StartLine, c.Metadata.EndLine,
			c.Metadata.Language, c.Level)
		if c.Content != "" {
			out.Code(snippet(c.Content, 3))
		}
	}
}

// snippet returns the first n lines of content, trimmed.
func snippet(content string, n int) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > n {
		lines = append(lines[:n], "...")
	}
	return strings.Join(lines, "\n")
}
