package chunk

import (
	"regexp"
	"sort"
	"strings"
)

// maxSymbols caps the symbol list per chunk.
const maxSymbols = 64

var identPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]{2,}`)

// conceptTerms maps lowercase source terms to the concept they signal.
// Scanning is substring-free: terms match whole identifier words only.
var conceptTerms = map[string]string{
	"auth":       "authentication",
	"login":      "authentication",
	"token":      "authentication",
	"password":   "authentication",
	"session":    "authentication",
	"cache":      "caching",
	"lru":        "caching",
	"ttl":        "caching",
	"evict":      "caching",
	"db":         "database",
	"sql":        "database",
	"query":      "database",
	"database":   "database",
	"transaction": "database",
	"http":       "networking",
	"request":    "networking",
	"response":   "networking",
	"socket":     "networking",
	"client":     "networking",
	"server":     "networking",
	"test":       "testing",
	"assert":     "testing",
	"mock":       "testing",
	"config":     "configuration",
	"settings":   "configuration",
	"env":        "configuration",
	"log":        "logging",
	"logger":     "logging",
	"debug":      "logging",
	"error":      "error-handling",
	"err":        "error-handling",
	"exception":  "error-handling",
	"panic":      "error-handling",
	"recover":    "error-handling",
	"search":     "search",
	"index":      "search",
	"rank":       "search",
	"embed":      "search",
	"parse":      "parsing",
	"lexer":      "parsing",
	"ast":        "parsing",
	"encode":     "serialization",
	"decode":     "serialization",
	"json":       "serialization",
	"yaml":       "serialization",
	"marshal":    "serialization",
	"encrypt":    "security",
	"decrypt":    "security",
	"hash":       "security",
	"hmac":       "security",
	"queue":      "concurrency",
	"worker":     "concurrency",
	"mutex":      "concurrency",
	"goroutine":  "concurrency",
	"channel":    "concurrency",
	"async":      "concurrency",
	"file":       "filesystem",
	"path":       "filesystem",
	"dir":        "filesystem",
	"read":       "io",
	"write":      "io",
	"stream":     "io",
	"buffer":     "io",
	"valid":      "validation",
	"validate":   "validation",
	"sanitize":   "validation",
	"metric":     "observability",
	"trace":      "observability",
	"monitor":    "observability",
}

// symbolStopwords are common identifiers too generic to be useful.
var symbolStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "var": true, "int": true,
	"nil": true, "len": true, "new": true, "not": true, "get": true,
	"set": true, "this": true, "self": true, "true": true, "false": true,
	"none": true, "null": true, "string": true, "return": true,
	"import": true, "from": true, "def": true, "class": true,
	"func": true, "type": true, "const": true, "let": true,
	"public": true, "private": true, "static": true, "void": true,
	"package": true, "export": true, "default": true, "function": true,
}

var branchTokens = []string{
	"if ", "if(", "for ", "for(", "while ", "while(",
	"case ", "catch ", "catch(", "elif ", "except ", "switch ", "switch(",
	"&&", "||", "? ",
}

// Enhancer annotates chunk content with heuristic metadata.
type Enhancer struct {
	registry *Registry
}

// NewEnhancer creates an enhancer over the default language registry.
func NewEnhancer() *Enhancer {
	return &Enhancer{registry: DefaultRegistry()}
}

// Enhance computes symbols, concepts, complexity, importance,
// dependencies, and exports for the given content. It never fails;
// unrecognized languages produce symbol and concept annotations only.
func (e *Enhancer) Enhance(content, language string) Metadata {
	symbols := e.extractSymbols(content)
	concepts := e.extractConcepts(content)
	complexity := e.scoreComplexity(content)

	md := Metadata{
		Language:   language,
		Symbols:    symbols,
		Concepts:   concepts,
		Complexity: complexity,
		Importance: float64(len(symbols))*0.5 + float64(len(concepts))*1.0 + complexity*0.3,
	}

	if rules, ok := e.registry.ByName(language); ok {
		md.Dependencies = e.extractDependencies(content, rules)
		md.Exports = e.extractExports(content, rules)
	}
	return md
}

// extractSymbols collects identifier-like tokens in first-seen order.
func (e *Enhancer) extractSymbols(content string) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, tok := range identPattern.FindAllString(content, -1) {
		lower := strings.ToLower(tok)
		if symbolStopwords[lower] || seen[tok] {
			continue
		}
		seen[tok] = true
		symbols = append(symbols, tok)
		if len(symbols) >= maxSymbols {
			break
		}
	}
	return symbols
}

// extractConcepts maps identifier words to domain concepts. Compound
// identifiers are split on case and underscore boundaries first.
func (e *Enhancer) extractConcepts(content string) []string {
	found := make(map[string]bool)
	for _, tok := range identPattern.FindAllString(content, -1) {
		for _, word := range splitIdentifier(tok) {
			if concept, ok := conceptTerms[word]; ok {
				found[concept] = true
			}
		}
	}
	concepts := make([]string, 0, len(found))
	for c := range found {
		concepts = append(concepts, c)
	}
	sort.Strings(concepts)
	return concepts
}

// scoreComplexity counts branching constructs plus peak nesting depth.
// The score is non-negative and grows with added branches or nesting.
func (e *Enhancer) scoreComplexity(content string) float64 {
	branches := 0
	for _, tok := range branchTokens {
		branches += strings.Count(content, tok)
	}

	depth, peak := 0, 0
	for _, c := range content {
		switch c {
		case '{':
			depth++
			if depth > peak {
				peak = depth
			}
		case '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return float64(branches) + float64(peak)*0.5
}

func (e *Enhancer) extractDependencies(content string, rules *LanguageRules) []string {
	seen := make(map[string]bool)
	var deps []string
	for _, line := range strings.Split(content, "\n") {
		for _, p := range rules.ImportPatterns {
			m := p.FindStringSubmatch(line)
			if m == nil || len(m) < 2 || m[1] == "" || seen[m[1]] {
				continue
			}
			seen[m[1]] = true
			deps = append(deps, m[1])
			break
		}
	}
	return deps
}

func (e *Enhancer) extractExports(content string, rules *LanguageRules) []Export {
	seen := make(map[string]bool)
	var exports []Export
	for _, line := range strings.Split(content, "\n") {
		for _, rule := range rules.ExportRules {
			m := rule.Pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			name := ""
			if len(m) > 1 {
				name = strings.TrimSpace(m[1])
			}
			switch rule.Kind {
			case ExportDefault:
				if name == "" {
					name = "default"
				}
				addExport(&exports, seen, name, ExportDefault)
			case ExportNamed:
				// "export {a, b as c}" lists several names.
				for _, part := range strings.Split(name, ",") {
					n := strings.TrimSpace(part)
					if idx := strings.Index(n, " as "); idx >= 0 {
						n = strings.TrimSpace(n[idx+4:])
					}
					if n != "" {
						addExport(&exports, seen, n, ExportNamed)
					}
				}
			default:
				if name != "" {
					addExport(&exports, seen, name, rule.Kind)
				}
			}
			break
		}
	}
	return exports
}

func addExport(exports *[]Export, seen map[string]bool, name string, kind ExportKind) {
	key := name + "/" + string(kind)
	if seen[key] {
		return
	}
	seen[key] = true
	*exports = append(*exports, Export{Name: name, Kind: kind})
}

// splitIdentifier breaks camelCase and snake_case identifiers into
// lowercase words.
func splitIdentifier(ident string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	for i, c := range ident {
		switch {
		case c == '_':
			flush()
		case c >= 'A' && c <= 'Z' && i > 0:
			prev := ident[i-1]
			if prev >= 'a' && prev <= 'z' {
				flush()
			}
			cur.WriteRune(c)
		default:
			cur.WriteRune(c)
		}
	}
	flush()
	return words
}
