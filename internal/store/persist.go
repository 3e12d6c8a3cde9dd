package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/codescope/codescope/internal/chunk"
	"github.com/codescope/codescope/internal/embed"
	cserrors "github.com/codescope/codescope/internal/errors"
)

const (
	metadataFileName   = "chunks.json"
	embeddingsFileName = "embeddings.json"
	formatVersion      = 1
)

// Store persists the index as two JSON documents in one directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates the persistence directory if needed. Failure here
// is fatal: without a writable directory there is no fallback path.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cserrors.StorageError(
			fmt.Sprintf("cannot create persistence directory %s", dir), err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the persistence directory.
func (s *Store) Dir() string { return s.dir }

// DocumentSizes returns the on-disk byte sizes of the metadata and
// embeddings documents. Missing documents report zero.
func (s *Store) DocumentSizes() (metaBytes, embBytes int64) {
	if info, err := os.Stat(filepath.Join(s.dir, metadataFileName)); err == nil {
		metaBytes = info.Size()
	}
	if info, err := os.Stat(filepath.Join(s.dir, embeddingsFileName)); err == nil {
		embBytes = info.Size()
	}
	return metaBytes, embBytes
}

// metadataDoc is the on-disk metadata document.
type metadataDoc struct {
	Version int            `json:"version"`
	Chunks  []*chunk.Chunk `json:"chunks"`
}

// embeddingRow is one chunk's vectors in the embeddings document.
type embeddingRow struct {
	ChunkID string      `json:"chunkId"`
	Code    vectorField `json:"code"`
	Concept vectorField `json:"concept"`
}

// embeddingsDoc is the on-disk embeddings document.
type embeddingsDoc struct {
	Version int            `json:"version"`
	Rows    []embeddingRow `json:"embeddings"`
}

// vectorField is an embedding vector that tolerates both on-disk
// shapes: a plain numeric array, or a map keyed by numeric index.
// It always normalizes to an array in memory and marshals as one.
type vectorField embed.Vector

func (v vectorField) MarshalJSON() ([]byte, error) {
	return json.Marshal(embed.Vector(v))
}

func (v *vectorField) UnmarshalJSON(data []byte) error {
	var arr []float32
	if err := json.Unmarshal(data, &arr); err == nil {
		*v = vectorField(arr)
		return nil
	}

	var keyed map[string]float32
	if err := json.Unmarshal(data, &keyed); err != nil {
		return fmt.Errorf("embedding is neither array nor index map: %w", err)
	}

	maxIdx := -1
	for k := range keyed {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 {
			return fmt.Errorf("embedding map key %q is not a vector index", k)
		}
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	out := make([]float32, maxIdx+1)
	for k, f := range keyed {
		idx, _ := strconv.Atoi(k)
		out[idx] = f
	}
	*v = vectorField(out)
	return nil
}

// Save writes both documents atomically. The embeddings document only
// carries rows for chunks present in the metadata document, keeping
// the two id sets in lockstep even after partial embedding runs.
func (s *Store) Save(index *Index, orch *embed.Orchestrator) error {
	chunks := index.All()
	meta := metadataDoc{Version: formatVersion, Chunks: chunks}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return cserrors.Wrap(cserrors.ErrCodeInternal, err)
	}

	pairs := orch.Export()
	doc := embeddingsDoc{Version: formatVersion, Rows: make([]embeddingRow, 0, len(pairs))}
	for _, c := range chunks {
		p, ok := pairs[c.ID]
		if !ok {
			continue
		}
		doc.Rows = append(doc.Rows, embeddingRow{
			ChunkID: c.ID,
			Code:    vectorField(p.Code),
			Concept: vectorField(p.Concept),
		})
	}
	embData, err := json.Marshal(doc)
	if err != nil {
		return cserrors.Wrap(cserrors.ErrCodeInternal, err)
	}

	if err := writeAtomic(filepath.Join(s.dir, metadataFileName), metaData); err != nil {
		return cserrors.StorageError("cannot write metadata document", err)
	}
	if err := writeAtomic(filepath.Join(s.dir, embeddingsFileName), embData); err != nil {
		return cserrors.StorageError("cannot write embeddings document", err)
	}

	s.logger.Debug("index persisted",
		"chunks", len(chunks), "embeddings", len(doc.Rows), "dir", s.dir)
	return nil
}

// Load restores both documents into the index and orchestrator. A
// missing index is not an error: the caller starts empty. Embedding
// rows without a metadata chunk are dropped to restore lockstep.
func (s *Store) Load(index *Index, orch *embed.Orchestrator) error {
	metaData, err := os.ReadFile(filepath.Join(s.dir, metadataFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return cserrors.StorageError("cannot read metadata document", err)
	}

	var meta metadataDoc
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return cserrors.New(cserrors.ErrCodeCorruptIndex,
			"metadata document is corrupt", err)
	}
	index.Add(meta.Chunks...)

	embData, err := os.ReadFile(filepath.Join(s.dir, embeddingsFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return cserrors.StorageError("cannot read embeddings document", err)
	}

	var doc embeddingsDoc
	if err := json.Unmarshal(embData, &doc); err != nil {
		return cserrors.New(cserrors.ErrCodeCorruptIndex,
			"embeddings document is corrupt", err)
	}

	pairs := make(map[string]embed.Pair, len(doc.Rows))
	dropped := 0
	for _, row := range doc.Rows {
		if _, ok := index.Get(row.ChunkID); !ok {
			dropped++
			continue
		}
		pairs[row.ChunkID] = embed.Pair{
			Code:    embed.Vector(row.Code),
			Concept: embed.Vector(row.Concept),
		}
	}
	orch.Import(pairs)

	if dropped > 0 {
		s.logger.Warn("dropped orphaned embedding rows", "count", dropped)
	}
	s.logger.Debug("index loaded",
		"chunks", index.Len(), "embeddings", len(pairs), "dir", s.dir)
	return nil
}

// Clear removes both documents.
func (s *Store) Clear() error {
	for _, name := range []string{metadataFileName, embeddingsFileName} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return cserrors.StorageError("cannot clear index documents", err)
		}
	}
	return nil
}

// writeAtomic writes data to path via a temp file and rename, so a
// crash never leaves a half-written document.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
