package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// BuilderOptions tunes the chunking thresholds.
type BuilderOptions struct {
	FilePreviewChars   int
	FunctionSplitChars int
	BlockWindowLines   int
	MinBlockChars      int
}

// DefaultBuilderOptions returns the built-in thresholds.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		FilePreviewChars:   DefaultFilePreviewChars,
		FunctionSplitChars: DefaultFunctionSplitChars,
		BlockWindowLines:   DefaultBlockWindowLines,
		MinBlockChars:      DefaultMinBlockChars,
	}
}

// Builder turns a source file into a hierarchical chunk forest:
// one file chunk, class and function chunks linked beneath it, and
// block chunks beneath oversized functions.
type Builder struct {
	detector *Detector
	enhancer *Enhancer
	opts     BuilderOptions
}

// NewBuilder creates a builder with default thresholds.
func NewBuilder() *Builder {
	return NewBuilderWithOptions(DefaultBuilderOptions())
}

// NewBuilderWithOptions creates a builder with custom thresholds.
func NewBuilderWithOptions(opts BuilderOptions) *Builder {
	if opts.FilePreviewChars <= 0 {
		opts.FilePreviewChars = DefaultFilePreviewChars
	}
	if opts.FunctionSplitChars <= 0 {
		opts.FunctionSplitChars = DefaultFunctionSplitChars
	}
	if opts.BlockWindowLines <= 0 {
		opts.BlockWindowLines = DefaultBlockWindowLines
	}
	if opts.MinBlockChars < 0 {
		opts.MinBlockChars = DefaultMinBlockChars
	}
	return &Builder{
		detector: NewDetector(),
		enhancer: NewEnhancer(),
		opts:     opts,
	}
}

// ID derives the deterministic chunk identifier from its identity
// triple. Re-indexing unchanged content reproduces identical IDs.
func ID(filePath, name string, startLine int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%s:%d", filePath, name, startLine))
	return hex.EncodeToString(sum[:])[:16]
}

// Build chunks one file. The file chunk always exists, even for empty
// or unrecognized content. Children appear after their parent in the
// returned slice; block chunks follow their function immediately.
func (b *Builder) Build(filePath, content, language string) []*Chunk {
	lines := strings.Count(content, "\n") + 1

	fileChunk := &Chunk{
		ID:      ID(filePath, "file", 1),
		Content: truncatePreview(content, b.opts.FilePreviewChars),
		Level:   LevelFile,
		Name:    filepath.Base(filePath),
	}
	fileChunk.Metadata = b.enhancer.Enhance(content, language)
	fileChunk.Metadata.FilePath = filePath
	fileChunk.Metadata.StartLine = 1
	fileChunk.Metadata.EndLine = lines

	chunks := []*Chunk{fileChunk}
	byID := map[string]*Chunk{fileChunk.ID: fileChunk}
	classIDs := make(map[string]string)

	for _, s := range b.detector.Detect(content, language) {
		id := ID(filePath, s.Name, s.StartLine)
		level := LevelFunction
		if s.Type == StructureClass {
			level = LevelClass
		}

		parentID := fileChunk.ID
		if s.Type == StructureMethod {
			if classID, ok := classIDs[s.ParentName]; ok {
				parentID = classID
			}
		}

		c := &Chunk{
			ID:       id,
			Content:  s.Content,
			Level:    level,
			Name:     s.Name,
			ParentID: parentID,
		}
		c.Metadata = b.enhancer.Enhance(s.Content, language)
		c.Metadata.FilePath = filePath
		c.Metadata.StartLine = s.StartLine
		c.Metadata.EndLine = s.EndLine

		if parent, ok := byID[parentID]; ok {
			parent.ChildIDs = append(parent.ChildIDs, id)
		}
		chunks = append(chunks, c)
		byID[id] = c

		if s.Type == StructureClass {
			classIDs[s.Name] = id
		}

		if level == LevelFunction && len(s.Content) > b.opts.FunctionSplitChars {
			chunks = append(chunks, b.splitBlocks(filePath, language, c, s)...)
		}
	}

	return chunks
}

// splitBlocks re-segments an oversized function into fixed line
// windows. Windows whose trimmed content falls under the minimum are
// dropped without shifting later window boundaries.
func (b *Builder) splitBlocks(filePath, language string, fn *Chunk, s Structure) []*Chunk {
	bodyLines := strings.Split(s.Content, "\n")
	var blocks []*Chunk

	for start := 0; start < len(bodyLines); start += b.opts.BlockWindowLines {
		end := start + b.opts.BlockWindowLines
		if end > len(bodyLines) {
			end = len(bodyLines)
		}
		text := strings.Join(bodyLines[start:end], "\n")
		if len(strings.TrimSpace(text)) < b.opts.MinBlockChars {
			continue
		}

		absStart := s.StartLine + start
		absEnd := s.StartLine + end - 1
		id := ID(filePath, s.Name+"#block", absStart)

		blk := &Chunk{
			ID:       id,
			Content:  text,
			Level:    LevelBlock,
			Name:     fmt.Sprintf("%s#%d", s.Name, start/b.opts.BlockWindowLines),
			ParentID: fn.ID,
		}
		blk.Metadata = b.enhancer.Enhance(text, language)
		blk.Metadata.FilePath = filePath
		blk.Metadata.StartLine = absStart
		blk.Metadata.EndLine = absEnd

		fn.ChildIDs = append(fn.ChildIDs, id)
		blocks = append(blocks, blk)
	}
	return blocks
}

// truncatePreview bounds file-level content, marking the cut. The cut
// backs off to a rune boundary so the preview stays valid UTF-8.
func truncatePreview(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	for limit > 0 && !utf8.RuneStart(content[limit]) {
		limit--
	}
	return content[:limit] + PreviewEllipsis
}
