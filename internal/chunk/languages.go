package chunk

import (
	"path/filepath"
	"regexp"
	"strings"
)

// ExportRule pairs an export-statement pattern with its classification.
type ExportRule struct {
	Pattern *regexp.Regexp
	Kind    ExportKind
}

// LanguageRules holds the heuristic patterns for one language.
// All name-capturing patterns use capture group 1.
type LanguageRules struct {
	Name       string
	Extensions []string

	// ClassPatterns match class/struct/interface declarations.
	ClassPatterns []*regexp.Regexp

	// FunctionPatterns match function declarations anywhere.
	FunctionPatterns []*regexp.Regexp

	// MethodPatterns match declarations only valid inside an open class
	// body (e.g. bare "name() {" in TypeScript/Java).
	MethodPatterns []*regexp.Regexp

	// ImportPatterns capture a non-empty dependency source path.
	ImportPatterns []*regexp.Regexp

	// ExportRules capture exported symbol names.
	ExportRules []ExportRule

	// Keywords are names that never count as a detected structure.
	Keywords map[string]bool

	// IndentBlocks marks indentation-delimited languages (Python):
	// block ends are found by indent scanning instead of brace depth.
	IndentBlocks bool
}

// Registry maps language names and file extensions to rules.
type Registry struct {
	byName map[string]*LanguageRules
	byExt  map[string]*LanguageRules
}

// NewRegistry builds a registry from the given rules.
func NewRegistry(rules ...*LanguageRules) *Registry {
	r := &Registry{
		byName: make(map[string]*LanguageRules),
		byExt:  make(map[string]*LanguageRules),
	}
	for _, lr := range rules {
		r.byName[lr.Name] = lr
		for _, ext := range lr.Extensions {
			r.byExt[ext] = lr
		}
	}
	return r
}

// ByName returns the rules for a language name.
func (r *Registry) ByName(name string) (*LanguageRules, bool) {
	lr, ok := r.byName[name]
	return lr, ok
}

// LanguageForPath detects the language from a file extension.
// Returns "" when the extension is not registered.
func (r *Registry) LanguageForPath(path string) string {
	if lr, ok := r.byExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lr.Name
	}
	return ""
}

// SupportedExtensions returns all registered file extensions.
func (r *Registry) SupportedExtensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	return exts
}

func keywordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// DefaultRegistry returns rules for the built-in languages.
func DefaultRegistry() *Registry {
	return NewRegistry(goRules(), typescriptRules(), javascriptRules(), pythonRules(), javaRules())
}

func goRules() *LanguageRules {
	return &LanguageRules{
		Name:       "go",
		Extensions: []string{".go"},
		ClassPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*type\s+([A-Za-z_]\w*)\s+struct\b`),
			regexp.MustCompile(`^\s*type\s+([A-Za-z_]\w*)\s+interface\b`),
		},
		FunctionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*func\s+(?:\([^)]*\)\s+)?([A-Za-z_]\w*)\s*\(`),
		},
		ImportPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*import\s+(?:[A-Za-z_.]\w*\s+)?"([^"]+)"`),
			regexp.MustCompile(`^\s*(?:[A-Za-z_.]\w*\s+)?"([^"]+)"\s*$`),
		},
		ExportRules: []ExportRule{
			{regexp.MustCompile(`^\s*func\s+(?:\([^)]*\)\s+)?([A-Z]\w*)\s*\(`), ExportFunction},
			{regexp.MustCompile(`^\s*type\s+([A-Z]\w*)\s+interface\b`), ExportInterface},
			{regexp.MustCompile(`^\s*type\s+([A-Z]\w*)\s+struct\b`), ExportClass},
			{regexp.MustCompile(`^\s*type\s+([A-Z]\w*)\s+\w`), ExportType},
			{regexp.MustCompile(`^\s*(?:var|const)\s+([A-Z]\w*)\b`), ExportVariable},
		},
		Keywords: keywordSet("func", "type", "struct", "interface", "map", "chan", "range", "select"),
	}
}

func typescriptRules() *LanguageRules {
	lr := javascriptRules()
	lr.Name = "typescript"
	lr.Extensions = []string{".ts", ".tsx"}
	lr.ClassPatterns = append(lr.ClassPatterns,
		regexp.MustCompile(`^\s*(?:export\s+)?(?:declare\s+)?interface\s+([A-Za-z_$][\w$]*)`),
	)
	lr.ExportRules = append(lr.ExportRules,
		ExportRule{regexp.MustCompile(`^\s*export\s+interface\s+([A-Za-z_$][\w$]*)`), ExportInterface},
		ExportRule{regexp.MustCompile(`^\s*export\s+type\s+([A-Za-z_$][\w$]*)`), ExportType},
	)
	return lr
}

func javascriptRules() *LanguageRules {
	return &LanguageRules{
		Name:       "javascript",
		Extensions: []string{".js", ".jsx", ".mjs"},
		ClassPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`),
		},
		FunctionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*\(`),
			regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*=>`),
			regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?function\b`),
		},
		MethodPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s+(?:public\s+|private\s+|protected\s+|static\s+|readonly\s+)*(?:async\s+)?(?:get\s+|set\s+)?([A-Za-z_$][\w$]*)\s*\([^)]*\)\s*(?::\s*[\w<>\[\],. |&]+\s*)?\{`),
		},
		ImportPatterns: []*regexp.Regexp{
			regexp.MustCompile(`import\s+[^'"]*?from\s+['"]([^'"]+)['"]`),
			regexp.MustCompile(`^\s*import\s+['"]([^'"]+)['"]`),
			regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`),
		},
		ExportRules: []ExportRule{
			{regexp.MustCompile(`^\s*export\s+default\s+(?:class\s+|function\s+)?([A-Za-z_$][\w$]*)?`), ExportDefault},
			{regexp.MustCompile(`^\s*export\s+(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`), ExportFunction},
			{regexp.MustCompile(`^\s*export\s+(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`), ExportClass},
			{regexp.MustCompile(`^\s*export\s+(?:const|let|var)\s+([A-Za-z_$][\w$]*)`), ExportVariable},
			{regexp.MustCompile(`^\s*export\s*\{([^}]+)\}`), ExportNamed},
		},
		Keywords: keywordSet(
			"if", "else", "for", "while", "switch", "catch", "return",
			"function", "class", "constructor", "new", "typeof", "do", "try"),
	}
}

func pythonRules() *LanguageRules {
	return &LanguageRules{
		Name:       "python",
		Extensions: []string{".py"},
		ClassPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*class\s+([A-Za-z_]\w*)`),
		},
		FunctionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`),
		},
		ImportPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*import\s+([\w.]+)`),
			regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\b`),
		},
		Keywords:     keywordSet("if", "elif", "else", "for", "while", "try", "except", "with", "return", "lambda"),
		IndentBlocks: true,
	}
}

func javaRules() *LanguageRules {
	return &LanguageRules{
		Name:       "java",
		Extensions: []string{".java"},
		ClassPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*(?:public\s+|private\s+|protected\s+)?(?:abstract\s+|final\s+|static\s+)*class\s+([A-Za-z_]\w*)`),
			regexp.MustCompile(`^\s*(?:public\s+)?interface\s+([A-Za-z_]\w*)`),
		},
		MethodPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s+(?:public|private|protected|static|final|synchronized|abstract|\s)+[\w<>\[\],. ]+\s+([A-Za-z_]\w*)\s*\([^)]*\)\s*(?:throws\s+[\w, ]+)?\s*\{`),
		},
		ImportPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*import\s+(?:static\s+)?([\w.]+?)\s*;`),
		},
		ExportRules: []ExportRule{
			{regexp.MustCompile(`^\s*public\s+(?:abstract\s+|final\s+|static\s+)*class\s+([A-Za-z_]\w*)`), ExportClass},
			{regexp.MustCompile(`^\s*public\s+interface\s+([A-Za-z_]\w*)`), ExportInterface},
		},
		Keywords: keywordSet("if", "else", "for", "while", "switch", "catch", "return", "new", "class", "try"),
	}
}
