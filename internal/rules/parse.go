package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Rule rewrites text and reports whether anything changed.
type Rule interface {
	Apply(input string) (output string, changed bool)
}

// RuleParser turns one line of a pronunciation file into a Rule.
type RuleParser interface {
	CanParse(line string) bool
	Parse(line string) (Rule, error)
}

// ParseRules compiles a pronunciation file body. Blank lines and lines
// starting with # are skipped.
func ParseRules(contents string, parsers []RuleParser) ([]Rule, error) {
	if len(parsers) == 0 {
		parsers = DefaultParsers()
	}

	lines := strings.Split(contents, "\n")
	compiled := make([]Rule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rule, err := parseLine(line, parsers)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		compiled = append(compiled, rule)
	}

	return compiled, nil
}

func parseLine(line string, parsers []RuleParser) (Rule, error) {
	for _, parser := range parsers {
		if parser.CanParse(line) {
			return parser.Parse(line)
		}
	}
	return nil, errors.New("unsupported rule format")
}

// DefaultParsers returns the pattern parser followed by the literal parser.
func DefaultParsers() []RuleParser {
	return []RuleParser{patternParser{}, literalParser{}}
}

type literalParser struct{}

func (literalParser) CanParse(line string) bool {
	return strings.Contains(line, "=>")
}

func (literalParser) Parse(line string) (Rule, error) {
	return parseLiteral(line)
}

type patternParser struct{}

func (patternParser) CanParse(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordOrSpace(line[1])
}

func (patternParser) Parse(line string) (Rule, error) {
	return parsePattern(line)
}

// literalRule replaces a phrase case-insensitively, e.g. "SQL => sequel".
type literalRule struct {
	re          *regexp.Regexp
	replacement string
}

func parseLiteral(line string) (Rule, error) {
	from, to, ok := strings.Cut(line, "=>")
	if !ok {
		return nil, errors.New("invalid literal rule")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}

	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return literalRule{re: re, replacement: strings.TrimSpace(to)}, nil
}

func (r literalRule) Apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

// patternRule is a sed-style s/pattern/replacement/flags substitution.
type patternRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

// Pattern builds a global regexp substitution.
func Pattern(expr string, replacement string) Rule {
	return patternRule{re: regexp.MustCompile(expr), replacement: replacement, global: true}
}

func parsePattern(line string) (Rule, error) {
	delim := line[1]

	expr, pos, err := readDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, pos, err := readDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	// Case-insensitive unless the file says otherwise; there is no flag to
	// turn it off, matching how people write pronunciation fixes.
	inline := "i"
	global := false
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'i', ' ':
		case 'g':
			global = true
		case 'm', 's':
			if !strings.ContainsRune(inline, flag) {
				inline += string(flag)
			}
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + inline + ")" + expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return patternRule{re: re, replacement: replacement, global: global}, nil
}

func (r patternRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

func readDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		switch {
		case escaped:
			escaped = false
		case char == '\\':
			escaped = true
		case char == delim:
			return builder.String(), index + 1, nil
		}
		builder.WriteByte(char)
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordOrSpace(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == ' ' || char == '\t'
}
