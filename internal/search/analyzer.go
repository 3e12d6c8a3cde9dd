// Package search implements the dual-space vector search engine and
// the query analyzer that feeds it.
package search

import (
	"regexp"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Intent classifies what a query is asking for.
type Intent string

const (
	IntentFindDefinition Intent = "find-definition"
	IntentFindUsage      Intent = "find-usage"
	IntentDebug          Intent = "debug"
	IntentConceptual     Intent = "conceptual"
	IntentGeneral        Intent = "general"
)

// generalConfidence is the fixed confidence of the fallback intent.
const generalConfidence = 0.1

// maxExpansions bounds how many expansion terms feed the embedding
// input.
const maxExpansions = 3

// Analysis is the analyzer's view of one query.
type Analysis struct {
	Query           string
	Intent          Intent
	Confidence      float64
	Keywords        []string
	Entities        []string
	ExpandedQueries []string
}

// EmbeddingInput concatenates the original query, expansions, entities,
// and keywords into the single string handed to the embedders.
func (a *Analysis) EmbeddingInput() string {
	parts := []string{a.Query}
	parts = append(parts, a.ExpandedQueries...)
	parts = append(parts, a.Entities...)
	parts = append(parts, a.Keywords...)
	return strings.Join(parts, " ")
}

// Terms returns all lowercase match terms for boosting: keywords,
// entities, and expansions.
func (a *Analysis) Terms() []string {
	seen := make(map[string]bool)
	var terms []string
	add := func(s string) {
		s = strings.ToLower(s)
		if s != "" && !seen[s] {
			seen[s] = true
			terms = append(terms, s)
		}
	}
	for _, k := range a.Keywords {
		add(k)
	}
	for _, e := range a.Entities {
		add(e)
	}
	for _, x := range a.ExpandedQueries {
		add(x)
	}
	return terms
}

// intentCategory pairs an intent with its pattern family. Declaration
// order is the tie-break: the first category reaching the highest
// confidence wins.
type intentCategory struct {
	intent   Intent
	patterns []*regexp.Regexp
}

var intentCategories = []intentCategory{
	{IntentFindDefinition, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(where is|definition of|defined?|declaration|declare[sd]?)\b`),
		regexp.MustCompile(`(?i)\b(implementation of|implements?|source of)\b`),
		regexp.MustCompile(`(?i)\b(class|struct|interface|type|function|method)\s+\w+`),
	}},
	{IntentFindUsage, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(usages? of|used by|callers? of|calls?|invoke[sd]?|references? to)\b`),
		regexp.MustCompile(`(?i)\b(who uses|where.*(used|called))\b`),
	}},
	{IntentDebug, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(bug|error|crash|panic|exception|fail(s|ure|ing)?|broken)\b`),
		regexp.MustCompile(`(?i)\b(fix|debug|traceback|stack trace)\b`),
	}},
	{IntentConceptual, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(how (does|do|is)|what (is|does)|why|explain|overview)\b`),
		regexp.MustCompile(`(?i)\b(flow|architecture|design|lifecycle|pipeline)\b`),
	}},
}

// entityPattern matches code-like tokens: camelCase, snake_case,
// dotted or slashed paths.
var entityPattern = regexp.MustCompile(
	`[a-z]+[A-Z]\w*|[A-Z][a-z]\w*[A-Z]\w*|\w+_\w+|[\w.]+/[\w./]+|\w+\.\w{1,4}\b`)

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9]+`)

var queryStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"of": true, "in": true, "to": true, "for": true, "and": true,
	"or": true, "how": true, "what": true, "where": true, "why": true,
	"does": true, "do": true, "with": true, "that": true, "this": true,
	"find": true, "show": true, "me": true, "all": true,
}

// expansionDict maps query keywords to related search terms.
var expansionDict = map[string][]string{
	"authentication": {"auth", "login", "credentials"},
	"auth":           {"authentication", "login", "token"},
	"login":          {"auth", "signin", "session"},
	"cache":          {"caching", "lru", "ttl"},
	"caching":        {"cache", "evict", "ttl"},
	"database":       {"db", "sql", "query"},
	"db":             {"database", "sql", "storage"},
	"http":           {"request", "response", "handler"},
	"server":         {"listen", "handler", "http"},
	"config":         {"configuration", "settings", "options"},
	"configuration":  {"config", "settings", "yaml"},
	"log":            {"logging", "logger", "slog"},
	"logging":        {"log", "logger", "level"},
	"error":          {"err", "failure", "handling"},
	"search":         {"query", "rank", "index"},
	"index":          {"indexing", "chunk", "embed"},
	"embedding":      {"embed", "vector", "similarity"},
	"vector":         {"embedding", "cosine", "similarity"},
	"test":           {"testing", "assert", "mock"},
	"parse":          {"parser", "parsing", "lexer"},
	"encrypt":        {"encryption", "cipher", "key"},
	"queue":          {"worker", "job", "channel"},
	"file":           {"path", "read", "write"},
}

// Analyzer classifies query intent and extracts search terms. Analyses
// are memoized in an LRU keyed by the raw query.
type Analyzer struct {
	cache *lru.Cache[string, *Analysis]
}

// NewAnalyzer creates an analyzer with the given memo capacity.
func NewAnalyzer(cacheSize int) (*Analyzer, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, *Analysis](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Analyzer{cache: cache}, nil
}

// Analyze produces the analysis for a raw query.
func (a *Analyzer) Analyze(query string) *Analysis {
	if cached, ok := a.cache.Get(query); ok {
		return cached
	}

	analysis := &Analysis{
		Query:      strings.TrimSpace(query),
		Intent:     IntentGeneral,
		Confidence: generalConfidence,
	}
	analysis.Intent, analysis.Confidence = classify(query)
	analysis.Entities = extractEntities(query)
	analysis.Keywords = extractKeywords(query, analysis.Entities)
	analysis.ExpandedQueries = expand(analysis.Keywords)

	a.cache.Add(query, analysis)
	return analysis
}

// classify scores each category by matched-pattern fraction. The first
// category reaching the highest confidence wins; general applies when
// nothing beats its fixed floor.
func classify(query string) (Intent, float64) {
	best := IntentGeneral
	bestConfidence := generalConfidence

	for _, cat := range intentCategories {
		matched := 0
		for _, p := range cat.patterns {
			if p.MatchString(query) {
				matched++
			}
		}
		confidence := float64(matched) / float64(len(cat.patterns))
		if confidence > bestConfidence {
			best = cat.intent
			bestConfidence = confidence
		}
	}
	return best, bestConfidence
}

func extractEntities(query string) []string {
	seen := make(map[string]bool)
	var entities []string
	for _, m := range entityPattern.FindAllString(query, -1) {
		if !seen[m] {
			seen[m] = true
			entities = append(entities, m)
		}
	}
	return entities
}

func extractKeywords(query string, entities []string) []string {
	entitySet := make(map[string]bool, len(entities))
	for _, e := range entities {
		entitySet[e] = true
	}

	seen := make(map[string]bool)
	var keywords []string
	for _, w := range wordPattern.FindAllString(query, -1) {
		lower := strings.ToLower(w)
		if queryStopwords[lower] || entitySet[w] || seen[lower] {
			continue
		}
		seen[lower] = true
		keywords = append(keywords, lower)
	}
	return keywords
}

// expand returns up to maxExpansions related terms for the keywords,
// deterministic across runs.
func expand(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		seen[k] = true
	}

	var expansions []string
	for _, k := range keywords {
		for _, term := range expansionDict[k] {
			if seen[term] {
				continue
			}
			seen[term] = true
			expansions = append(expansions, term)
		}
	}
	sort.Strings(expansions)
	if len(expansions) > maxExpansions {
		expansions = expansions[:maxExpansions]
	}
	return expansions
}
