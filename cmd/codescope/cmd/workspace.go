package cmd

import (
	"fmt"
	"log/slog"

	"github.com/codescope/codescope/internal/config"
	"github.com/codescope/codescope/internal/embed"
	"github.com/codescope/codescope/internal/index"
	"github.com/codescope/codescope/internal/search"
	"github.com/codescope/codescope/internal/store"
)

// workspace wires the shared components for one project root.
type workspace struct {
	root string
	cfg  *config.Config
	idx  *store.Index
	orch *embed.Orchestrator
	st   *store.Store
}

// openWorkspace loads configuration and constructs the index, the
// embedding orchestrator, and the store for root.
func openWorkspace(root string) (*workspace, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	st, err := store.NewStore(config.DataDir(root), slog.Default())
	if err != nil {
		return nil, err
	}

	codeEmb, err := buildEmbedder(cfg, cfg.Embeddings.CodeModel, embed.SpaceCode)
	if err != nil {
		return nil, err
	}
	conceptEmb, err := buildEmbedder(cfg, cfg.Embeddings.ConceptModel, embed.SpaceConcept)
	if err != nil {
		return nil, err
	}

	orch := embed.NewOrchestrator(codeEmb, conceptEmb,
		embed.WithBatchSize(cfg.Embeddings.BatchSize),
		embed.WithLogger(slog.Default()))

	return &workspace{
		root: root,
		cfg:  cfg,
		idx:  store.NewIndex(),
		orch: orch,
		st:   st,
	}, nil
}

// buildEmbedder assembles the embedder stack for one space: transport,
// retries, then a query-side LRU.
func buildEmbedder(cfg *config.Config, model string, space embed.Space) (embed.Embedder, error) {
	var base embed.Embedder
	switch cfg.Embeddings.Provider {
	case "static":
		// The space name seeds the static embedder so the two spaces
		// produce distinct vectors for the same text.
		base = embed.NewStaticEmbedder(string(space))
	case "http", "":
		base = embed.NewRetryEmbedder(
			embed.NewHTTPEmbedder(cfg.Embeddings.BaseURL, model,
				embed.WithTimeout(cfg.Embeddings.Timeout)),
			cfg.Embeddings.MaxRetries, slog.Default())
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Embeddings.Provider)
	}
	return embed.NewCachedEmbedder(base, 1024)
}

// load restores the persisted index, if any.
func (w *workspace) load() error {
	return w.st.Load(w.idx, w.orch)
}

// runner creates an indexing runner over the workspace.
func (w *workspace) runner() *index.Runner {
	return index.NewRunner(w.root, w.cfg, w.idx, w.orch, w.st, slog.Default())
}

// engine creates a search engine over the workspace.
func (w *workspace) engine() (*search.Engine, error) {
	return search.NewEngine(w.orch, w.idx,
		search.WithWeights(w.cfg.Search.CodeWeight, w.cfg.Search.ConceptWeight),
		search.WithTimeout(w.cfg.Search.Timeout),
		search.WithEngineLogger(slog.Default()))
}
