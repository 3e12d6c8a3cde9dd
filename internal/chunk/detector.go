package chunk

import (
	"regexp"
	"strings"
)

// Detector finds class/function/method regions in source text with a
// single forward pass over lines. Unknown languages yield no structures.
type Detector struct {
	registry *Registry
}

// NewDetector creates a detector over the default language registry.
func NewDetector() *Detector {
	return &Detector{registry: DefaultRegistry()}
}

// NewDetectorWithRegistry creates a detector over a custom registry.
func NewDetectorWithRegistry(r *Registry) *Detector {
	return &Detector{registry: r}
}

// openClass tracks an enclosing class while scanning its body.
type openClass struct {
	name    string
	endLine int // 1-indexed, inclusive
}

// Detect returns the structures found in content, in source order.
func (d *Detector) Detect(content, language string) []Structure {
	rules, ok := d.registry.ByName(language)
	if !ok {
		return nil
	}

	lines := strings.Split(content, "\n")
	var structures []Structure
	var stack []openClass

	for i := 0; i < len(lines); i++ {
		lineNo := i + 1

		// Pop classes whose body ended before this line.
		for len(stack) > 0 && stack[len(stack)-1].endLine < lineNo {
			stack = stack[:len(stack)-1]
		}

		line := lines[i]

		if name := matchName(rules.ClassPatterns, line, rules.Keywords); name != "" {
			end := d.blockEnd(lines, i, rules)
			structures = append(structures, Structure{
				Type:      StructureClass,
				Name:      name,
				StartLine: lineNo,
				EndLine:   end,
				Content:   strings.Join(lines[i:end], "\n"),
			})
			stack = append(stack, openClass{name: name, endLine: end})
			continue
		}

		inClass := len(stack) > 0

		name := ""
		if inClass {
			name = matchName(rules.MethodPatterns, line, rules.Keywords)
		}
		if name == "" {
			name = matchName(rules.FunctionPatterns, line, rules.Keywords)
		}
		if name == "" {
			continue
		}

		end := d.blockEnd(lines, i, rules)
		s := Structure{
			Type:      StructureFunction,
			Name:      name,
			StartLine: lineNo,
			EndLine:   end,
		}
		if inClass {
			top := stack[len(stack)-1]
			s.Type = StructureMethod
			s.ParentName = top.name
			// A method body never extends past its class body.
			if end > top.endLine {
				end = top.endLine
				s.EndLine = end
			}
		}
		s.Content = strings.Join(lines[i:end], "\n")
		structures = append(structures, s)
	}

	return structures
}

// matchName returns the first capture of the first matching pattern,
// skipping names that are language keywords.
func matchName(patterns []*regexp.Regexp, line string, keywords map[string]bool) string {
	for _, p := range patterns {
		m := p.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := ""
		if len(m) > 1 {
			name = m[1]
		}
		if name == "" || keywords[name] {
			continue
		}
		return name
	}
	return ""
}

// blockEnd returns the 1-indexed inclusive last line of the block
// starting at line index start. When the block never closes the file
// end is used.
func (d *Detector) blockEnd(lines []string, start int, rules *LanguageRules) int {
	if rules.IndentBlocks {
		return indentBlockEnd(lines, start)
	}
	return braceBlockEnd(lines, start)
}

// braceBlockEnd scans forward tracking brace depth until it returns to
// zero after the opening brace. Signatures without a brace within two
// lines are treated as single-line declarations.
func braceBlockEnd(lines []string, start int) int {
	depth := 0
	opened := false

	for j := start; j < len(lines); j++ {
		for _, c := range lines[j] {
			switch c {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		if opened && depth <= 0 {
			return j + 1
		}
		if !opened && j-start >= 2 {
			return start + 1
		}
	}
	return len(lines)
}

// indentBlockEnd finds the last line of an indentation-delimited block:
// the block ends before the next non-blank line at or below the header
// indentation.
func indentBlockEnd(lines []string, start int) int {
	headerIndent := indentWidth(lines[start])
	end := start + 1

	for j := start + 1; j < len(lines); j++ {
		trimmed := strings.TrimSpace(lines[j])
		if trimmed == "" {
			continue
		}
		if indentWidth(lines[j]) <= headerIndent {
			return end
		}
		end = j + 1
	}
	return end
}

func indentWidth(line string) int {
	n := 0
	for _, c := range line {
		if c == ' ' || c == '\t' {
			n++
			continue
		}
		break
	}
	return n
}
