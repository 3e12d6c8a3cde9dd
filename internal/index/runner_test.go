package index

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescope/codescope/internal/config"
	"github.com/codescope/codescope/internal/embed"
	"github.com/codescope/codescope/internal/store"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestRunner(t *testing.T, root string) (*Runner, *store.Index, *embed.Orchestrator) {
	t.Helper()
	cfg := config.Default()
	cfg.Index.Workers = 2

	idx := store.NewIndex()
	orch := embed.NewOrchestrator(embed.NewStaticEmbedder("code"), embed.NewStaticEmbedder("concept"))
	st, err := store.NewStore(filepath.Join(root, ".codescope"), nil)
	require.NoError(t, err)

	return NewRunner(root, cfg, idx, orch, st, nil), idx, orch
}

const goSource = `package demo

type Greeter struct {
	name string
}

func NewGreeter(name string) *Greeter {
	return &Greeter{name: name}
}
`

func TestRun_IndexesProjectTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "demo/greeter.go", goSource)
	writeFile(t, root, "demo/util.py", "def helper():\n    return 1\n")
	writeFile(t, root, "README.md", "# skipped")

	runner, idx, orch := newTestRunner(t, root)
	result, err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesScanned)
	assert.Equal(t, 2, result.FilesIndexed)
	assert.Greater(t, result.Chunks, 2)
	assert.Equal(t, result.Chunks, result.Embedded)
	assert.Equal(t, result.Chunks, idx.Len())
	assert.Equal(t, result.Chunks, orch.Len())
}

func TestRun_PersistsIndex(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", goSource)

	runner, _, _ := newTestRunner(t, root)
	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	// A fresh store over the same directory sees the persisted state
	st, err := store.NewStore(filepath.Join(root, ".codescope"), nil)
	require.NoError(t, err)
	idx := store.NewIndex()
	orch := embed.NewOrchestrator(embed.NewStaticEmbedder("code"), embed.NewStaticEmbedder("concept"))
	require.NoError(t, st.Load(idx, orch))

	assert.Greater(t, idx.Len(), 0)
	assert.Equal(t, idx.Len(), orch.Len())
}

func TestRun_ReindexingUnchangedTreeIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", goSource)

	runner, idx, _ := newTestRunner(t, root)
	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	firstIDs := chunkIDs(idx)

	_, err = runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, firstIDs, chunkIDs(idx))
}

func TestRun_UnchangedFilesSkipReembedding(t *testing.T) {
	// Given an indexed tree
	root := t.TempDir()
	writeFile(t, root, "main.go", goSource)

	runner, idx, orch := newTestRunner(t, root)
	first, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, first.Chunks, first.Embedded)

	// When re-running with no file changes
	second, err := runner.Run(context.Background())

	// Then cached chunks are reused and nothing is re-embedded
	require.NoError(t, err)
	assert.Equal(t, first.Chunks, second.Chunks)
	assert.Equal(t, 0, second.Embedded)
	assert.Equal(t, idx.Len(), orch.Len())
}

func TestRun_RemovesVanishedFilesInLockstep(t *testing.T) {
	// Given an indexed tree with two files
	root := t.TempDir()
	writeFile(t, root, "keep.go", goSource)
	writeFile(t, root, "gone.go", "package gone\n\nfunc Bye() {}\n")

	runner, idx, orch := newTestRunner(t, root)
	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	// When one file disappears and the tree is re-indexed
	require.NoError(t, os.Remove(filepath.Join(root, "gone.go")))
	result, err := runner.Run(context.Background())

	// Then its chunks and embeddings are both gone
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesRemoved)
	assert.Equal(t, []string{"keep.go"}, idx.Files())
	assert.Equal(t, idx.Len(), orch.Len())
}

func TestRun_CancelledContextPropagates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", goSource)

	runner, _, _ := newTestRunner(t, root)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx)

	assert.Error(t, err)
}

func chunkIDs(idx *store.Index) []string {
	var ids []string
	for _, c := range idx.All() {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}
