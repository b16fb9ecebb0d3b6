// Package library loads the annotation rule file and matches hex payloads
// against it. The rule file is line oriented: `HEXPATTERN # comment`, with
// `*` standing for exactly one wildcard byte (any two hex digits). Blank
// lines and lines starting with `#` are ignored.
package library

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Rule is a single annotation rule, immutable after load.
type Rule struct {
	Pattern  string
	Comment  string
	Wildcard bool
	re       *regexp.Regexp // compiled matcher, wildcard rules only
}

// Library holds all loaded rules in file order. Matching is a linear scan
// over the rules per call, O(entries x rules); rule files are small so this
// is acceptable.
type Library struct {
	rules []Rule
}

// Load reads the rule file at path. A missing or unreadable file yields an
// empty library rather than an error so startup never fails on rules.
func Load(path string) *Library {
	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("[Library] Failed to load rule file %s: %v\n", path, err)
		return &Library{}
	}
	defer f.Close()

	lib := Parse(f)
	fmt.Printf("[Library] Loaded %d rules from %s\n", lib.Len(), path)
	return lib
}

// Parse reads rules from r. Unparsable lines are logged and skipped; they
// never abort the rest of the file.
func Parse(r io.Reader) *Library {
	lib := &Library{}
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.Index(line, "#")
		if idx < 0 {
			fmt.Printf("[Library] Skipping line %d: no comment separator\n", lineNum)
			continue
		}

		pattern := strings.TrimSpace(line[:idx])
		comment := strings.TrimSpace(line[idx+1:])
		if pattern == "" {
			fmt.Printf("[Library] Skipping line %d: empty pattern\n", lineNum)
			continue
		}

		rule := Rule{Pattern: pattern, Comment: comment}
		if strings.Contains(pattern, "*") {
			re, err := compileWildcard(pattern)
			if err != nil {
				fmt.Printf("[Library] Skipping line %d: bad wildcard pattern %q: %v\n", lineNum, pattern, err)
				continue
			}
			rule.Wildcard = true
			rule.re = re
		}
		lib.rules = append(lib.rules, rule)
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("[Library] Error reading rule file: %v\n", err)
	}
	return lib
}

// compileWildcard turns a pattern containing `*` markers into a regexp
// where each marker accepts any single byte (two hex digits). Byte
// boundaries tolerate the optional space of the canonical form, so
// "AA*CC" matches both "AA12CC" and "AA 12 CC". The pattern must decompose
// into whole bytes; anything else is rejected at load time.
func compileWildcard(pattern string) (*regexp.Regexp, error) {
	compact := strings.ToUpper(strings.Join(strings.Fields(pattern), ""))
	var parts []string
	for i := 0; i < len(compact); {
		if compact[i] == '*' {
			parts = append(parts, "[0-9A-F]{2}")
			i++
			continue
		}
		if i+2 > len(compact) || !isHexPair(compact[i:i+2]) {
			return nil, fmt.Errorf("pattern does not decompose into hex bytes at offset %d", i)
		}
		parts = append(parts, compact[i:i+2])
		i += 2
	}
	return regexp.Compile(strings.Join(parts, " ?"))
}

func isHexPair(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// Len returns the number of loaded rules.
func (l *Library) Len() int {
	return len(l.rules)
}

// Rules returns a copy of the loaded rules in file order.
func (l *Library) Rules() []Rule {
	out := make([]Rule, len(l.rules))
	copy(out, l.rules)
	return out
}

// Annotate scans hexText against every rule in load order and appends the
// comments of all matching rules in parentheses, comma separated. Wildcard
// matches are tagged with the pattern that matched. The caller must pass
// the hex data portion only; timestamps are never matched against rules.
// With no match the text is returned unchanged.
func (l *Library) Annotate(hexText string) string {
	var annotations []string
	for _, rule := range l.rules {
		if rule.Wildcard {
			if rule.re.MatchString(hexText) {
				annotations = append(annotations, fmt.Sprintf("%s (matched pattern: %s)", rule.Comment, rule.Pattern))
			}
		} else if strings.Contains(hexText, rule.Pattern) {
			annotations = append(annotations, rule.Comment)
		}
	}
	if len(annotations) == 0 {
		return hexText
	}
	return hexText + " (" + strings.Join(annotations, ", ") + ")"
}
