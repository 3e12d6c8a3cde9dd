// Package chunk builds a hierarchical chunk forest from source files.
//
// Structure detection is heuristic and line-oriented: it tolerates false
// positives and negatives and never fails on arbitrary text. The builder
// turns detected structures into file → class → function → block chunks
// with deterministic identifiers.
package chunk

// Default chunking thresholds.
const (
	// DefaultFilePreviewChars truncates file-level chunk content.
	DefaultFilePreviewChars = 500

	// DefaultFunctionSplitChars is the content length above which a
	// function chunk is re-segmented into block windows.
	DefaultFunctionSplitChars = 1000

	// DefaultBlockWindowLines is the line count per block window.
	DefaultBlockWindowLines = 20

	// DefaultMinBlockChars drops block windows whose trimmed content
	// is shorter than this.
	DefaultMinBlockChars = 50

	// PreviewEllipsis marks truncated file-level content.
	PreviewEllipsis = "..."
)

// Level is the hierarchy level of a chunk.
type Level string

const (
	LevelFile     Level = "file"
	LevelClass    Level = "class"
	LevelFunction Level = "function"
	LevelBlock    Level = "block"
)

// StructureType tags a detected structure. Methods are detected as their
// own type but normalize to LevelFunction with a class parent.
type StructureType string

const (
	StructureClass    StructureType = "class"
	StructureFunction StructureType = "function"
	StructureMethod   StructureType = "method"
)

// Structure is one detected class/function/method region of a file.
type Structure struct {
	Type       StructureType
	Name       string
	ParentName string // enclosing class name for methods; empty otherwise
	StartLine  int    // 1-indexed
	EndLine    int    // inclusive
	Content    string
}

// ExportKind classifies an exported symbol.
type ExportKind string

const (
	ExportDefault   ExportKind = "default"
	ExportNamed     ExportKind = "named"
	ExportFunction  ExportKind = "function"
	ExportClass     ExportKind = "class"
	ExportInterface ExportKind = "interface"
	ExportType      ExportKind = "type"
	ExportVariable  ExportKind = "variable"
)

// Export is one exported symbol with its classification.
type Export struct {
	Name string     `json:"name"`
	Kind ExportKind `json:"kind"`
}

// Metadata carries the heuristic annotations attached to a chunk.
type Metadata struct {
	FilePath     string   `json:"filePath"`
	StartLine    int      `json:"startLine"` // 1-indexed
	EndLine      int      `json:"endLine"`   // inclusive
	Language     string   `json:"language"`
	Symbols      []string `json:"symbols"`
	Concepts     []string `json:"concepts"`
	Complexity   float64  `json:"complexity"`
	Importance   float64  `json:"importance"`
	Dependencies []string `json:"dependencies"`
	Exports      []Export `json:"exports"`
}

// Chunk is one indexed unit of content with hierarchy links.
type Chunk struct {
	// ID is a deterministic function of (filePath, name, startLine):
	// re-indexing unchanged content reproduces identical IDs.
	ID string `json:"id"`

	// Content is the chunk text. File-level content is truncated to a
	// bounded preview with an ellipsis marker.
	Content string `json:"content"`

	// Level is the hierarchy level tag.
	Level Level `json:"level"`

	// Name is the detected structure name ("" for file chunks the path
	// base is used).
	Name string `json:"name"`

	// ParentID links to the owning chunk; empty for file chunks.
	ParentID string `json:"parentId,omitempty"`

	// ChildIDs is the ordered, append-only list of owned children.
	ChildIDs []string `json:"childIds,omitempty"`

	Metadata Metadata `json:"metadata"`
}
