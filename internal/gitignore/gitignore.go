// Package gitignore matches paths against gitignore-style patterns.
//
// The matcher covers the common subset of the gitignore syntax used in
// real projects: wildcards, anchoring, directory-only patterns, and
// negation with last-match-wins ordering. Nested .gitignore files are
// not read; only the project root's.
package gitignore

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// rule is one compiled pattern. selfRe matches the path itself, underRe
// matches paths beneath it.
type rule struct {
	selfRe  *regexp.Regexp
	underRe *regexp.Regexp
	negate  bool
	dirOnly bool
}

// Matcher holds an ordered list of compiled patterns.
type Matcher struct {
	rules []rule
}

// New compiles the given patterns in order. Invalid or empty patterns
// are dropped.
func New(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		m.add(p)
	}
	return m
}

// Load reads root/.gitignore. A missing file yields an empty matcher.
func Load(root string) *Matcher {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return New()
	}
	defer func() { _ = f.Close() }()

	m := &Matcher{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.add(sc.Text())
	}
	return m
}

// Match reports whether rel (slash-separated, relative to the root) is
// ignored. The last matching rule wins, so negations can re-include.
func (m *Matcher) Match(rel string, isDir bool) bool {
	ignored := false
	for _, r := range m.rules {
		if r.underRe.MatchString(rel) ||
			(r.selfRe.MatchString(rel) && (isDir || !r.dirOnly)) {
			ignored = !r.negate
		}
	}
	return ignored
}

// Empty reports whether the matcher has no rules.
func (m *Matcher) Empty() bool { return len(m.rules) == 0 }

func (m *Matcher) add(pattern string) {
	pattern = strings.TrimRight(pattern, " \t")
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}

	r := rule{}
	if strings.HasPrefix(pattern, "!") {
		r.negate = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	// A slash anywhere but the end anchors the pattern to the root.
	anchored := strings.Contains(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")
	if pattern == "" {
		return
	}

	body := translate(pattern)
	prefix := `(^|.*/)`
	if anchored {
		prefix = `^`
	}

	selfRe, err := regexp.Compile(prefix + body + `$`)
	if err != nil {
		return
	}
	underRe, err := regexp.Compile(prefix + body + `/`)
	if err != nil {
		return
	}
	r.selfRe = selfRe
	r.underRe = underRe
	m.rules = append(m.rules, r)
}

// translate converts one gitignore glob to a regexp body. A single *
// never crosses a slash; ** does.
func translate(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				i++
				// "**/" spans zero or more directories.
				if i+1 < len(pattern) && pattern[i+1] == '/' {
					b.WriteString(`(.*/)?`)
					i++
				} else {
					b.WriteString(`.*`)
				}
			} else {
				b.WriteString(`[^/]*`)
			}
		case '?':
			b.WriteString(`[^/]`)
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
