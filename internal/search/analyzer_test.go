package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(16)
	require.NoError(t, err)
	return a
}

func TestAnalyze_IntentClassification(t *testing.T) {
	a := newTestAnalyzer(t)

	tests := []struct {
		query string
		want  Intent
	}{
		{"where is the definition of parseConfig", IntentFindDefinition},
		{"callers of NewEngine", IntentFindUsage},
		{"panic when index is empty", IntentDebug},
		{"how does the cache eviction flow work", IntentConceptual},
		{"banana", IntentGeneral},
	}
	for _, tt := range tests {
		got := a.Analyze(tt.query)
		assert.Equal(t, tt.want, got.Intent, "query: %s", tt.query)
	}
}

func TestAnalyze_GeneralIntentHasFixedLowConfidence(t *testing.T) {
	a := newTestAnalyzer(t)

	got := a.Analyze("banana")

	assert.Equal(t, IntentGeneral, got.Intent)
	assert.Equal(t, generalConfidence, got.Confidence)
}

func TestAnalyze_ConfidenceIsMatchedFraction(t *testing.T) {
	a := newTestAnalyzer(t)

	// Matches one of the two debug pattern families
	got := a.Analyze("this thing is broken")

	assert.Equal(t, IntentDebug, got.Intent)
	assert.InDelta(t, 0.5, got.Confidence, 1e-9)
}

func TestAnalyze_KeywordsDropStopwords(t *testing.T) {
	a := newTestAnalyzer(t)

	got := a.Analyze("how does the cache work")

	assert.Contains(t, got.Keywords, "cache")
	assert.NotContains(t, got.Keywords, "the")
	assert.NotContains(t, got.Keywords, "how")
}

func TestAnalyze_ExtractsCodeEntities(t *testing.T) {
	a := newTestAnalyzer(t)

	got := a.Analyze("find parseConfig in internal/config/config.go")

	assert.Contains(t, got.Entities, "parseConfig")
	assert.Contains(t, got.Entities, "internal/config/config.go")
}

func TestAnalyze_ExpansionsAreBoundedAndDeterministic(t *testing.T) {
	a := newTestAnalyzer(t)

	first := a.Analyze("authentication flow")
	b := newTestAnalyzer(t)
	second := b.Analyze("authentication flow")

	assert.LessOrEqual(t, len(first.ExpandedQueries), maxExpansions)
	assert.Equal(t, first.ExpandedQueries, second.ExpandedQueries)
	assert.Contains(t, first.ExpandedQueries, "login")
}

func TestAnalyze_MemoizesByRawQuery(t *testing.T) {
	a := newTestAnalyzer(t)

	first := a.Analyze("cache eviction")
	second := a.Analyze("cache eviction")

	assert.Same(t, first, second)
}

func TestEmbeddingInput_Order(t *testing.T) {
	analysis := &Analysis{
		Query:           "original query",
		Keywords:        []string{"kw"},
		Entities:        []string{"Entity"},
		ExpandedQueries: []string{"expansion"},
	}

	input := analysis.EmbeddingInput()

	// Order: original, expansions, entities, keywords
	assert.Equal(t, "original query expansion Entity kw", input)
	assert.True(t, strings.HasPrefix(input, "original query"))
}

func TestTerms_LowercasedAndDeduplicated(t *testing.T) {
	analysis := &Analysis{
		Keywords:        []string{"cache"},
		Entities:        []string{"Cache", "loginUser"},
		ExpandedQueries: []string{"lru"},
	}

	terms := analysis.Terms()

	assert.Equal(t, []string{"cache", "loginuser", "lru"}, terms)
}
