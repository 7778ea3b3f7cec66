package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const defaultIterationLimit = 30

var collapseSpaces = regexp.MustCompile(`[ \t]{2,}`)

// speechRules strip markup a speech engine would otherwise read aloud.
// They run once, in order, before any pronunciation rules.
func speechRules() []Rule {
	return []Rule{
		Pattern(`\*\*`, ""),
		Pattern(`\*`, ""),
		Pattern(`\[[^\]\n]*\]`, ""),
		Pattern(`\([^)\n]*\)`, ""),
		Pattern(`\r?\n`, ". "),
	}
}

// Sanitizer prepares assistant text for speech synthesis.
type Sanitizer struct {
	builtin        []Rule
	pronunciations []Rule
	iterationLimit int
}

// NewSanitizer loads optional pronunciation rules from path. A missing file
// leaves only the built-in markup rules.
func NewSanitizer(path string, iterationLimit int) (*Sanitizer, error) {
	return NewSanitizerWithParsers(path, iterationLimit, DefaultParsers())
}

// NewSanitizerWithParsers is NewSanitizer with custom rule syntaxes.
func NewSanitizerWithParsers(path string, iterationLimit int, parsers []RuleParser) (*Sanitizer, error) {
	if iterationLimit <= 0 {
		iterationLimit = defaultIterationLimit
	}
	s := &Sanitizer{builtin: speechRules(), iterationLimit: iterationLimit}

	if strings.TrimSpace(path) == "" {
		return s, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read speech rules %q: %w", path, err)
	}

	s.pronunciations, err = ParseRules(string(contents), parsers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse speech rules %q: %w", path, err)
	}
	return s, nil
}

// Apply strips markup and applies pronunciation rules until the text stops
// changing or the iteration limit is reached.
func (s *Sanitizer) Apply(text string) (string, error) {
	result := text
	for _, rule := range s.builtin {
		result, _ = rule.Apply(result)
	}

	for i := 0; i < s.iterationLimit && len(s.pronunciations) > 0; i++ {
		changed := false
		for _, rule := range s.pronunciations {
			next, ruleChanged := rule.Apply(result)
			if ruleChanged {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	result = collapseSpaces.ReplaceAllString(result, " ")
	return strings.TrimSpace(result), nil
}
