package routing

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

type PatternKind uint8

const (
	// PatternAny is the zero pattern: it matches every event, with or
	// without text.
	PatternAny PatternKind = iota
	// PatternLiteral matches the whole text, or the text followed by
	// whitespace and arguments ("/start" matches "/start abc").
	PatternLiteral
	// PatternPrefix matches any text beginning with the expression.
	PatternPrefix
	// PatternRegex must match the whole text. Named groups become
	// path variables.
	PatternRegex
	// PatternTemplate is a literal with {name} placeholders, each matching
	// one whitespace-free token: "/echo {word}".
	PatternTemplate
)

func (k PatternKind) String() string {
	switch k {
	case PatternAny:
		return "any"
	case PatternLiteral:
		return "literal"
	case PatternPrefix:
		return "prefix"
	case PatternRegex:
		return "regex"
	case PatternTemplate:
		return "template"
	}
	return "unknown"
}

// Pattern is a text matching criterion. The zero value matches anything.
type Pattern struct {
	Kind PatternKind
	Expr string

	re *regexp.Regexp
}

// PathVars holds the variables captured by a regex or template pattern.
type PathVars map[string]string

// TextMatch describes how a pattern matched a text.
type TextMatch struct {
	// Length is the number of literal characters the pattern pinned down.
	Length int
	Vars   PathVars
}

func Literal(expr string) Pattern {
	return Pattern{Kind: PatternLiteral, Expr: expr}
}

func Prefix(expr string) Pattern {
	return Pattern{Kind: PatternPrefix, Expr: expr}
}

func Regex(expr string) (Pattern, error) {
	re, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return Pattern{}, fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	return Pattern{Kind: PatternRegex, Expr: expr, re: re}, nil
}

func MustRegex(expr string) Pattern {
	p, err := Regex(expr)
	if err != nil {
		panic(err)
	}
	return p
}

var rePlaceholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func Template(expr string) (Pattern, error) {
	var b strings.Builder
	last := 0
	for _, loc := range rePlaceholder.FindAllStringSubmatchIndex(expr, -1) {
		b.WriteString(regexp.QuoteMeta(expr[last:loc[0]]))
		b.WriteString(`(?P<` + expr[loc[2]:loc[3]] + `>\S+)`)
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(expr[last:]))

	re, err := regexp.Compile(`^` + b.String() + `$`)
	if err != nil {
		return Pattern{}, fmt.Errorf("compile template %q: %w", expr, err)
	}
	return Pattern{Kind: PatternTemplate, Expr: expr, re: re}, nil
}

func MustTemplate(expr string) Pattern {
	p, err := Template(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Pattern) IsAny() bool {
	return p.Kind == PatternAny
}

// Match tests text against the pattern. hasText is false for events that
// carry no text; only PatternAny matches those.
func (p Pattern) Match(text string, hasText bool) (TextMatch, bool) {
	if p.Kind == PatternAny {
		return TextMatch{}, true
	}
	if !hasText {
		return TextMatch{}, false
	}

	switch p.Kind {
	case PatternLiteral:
		if text == p.Expr {
			return TextMatch{Length: len(p.Expr)}, true
		}
		if strings.HasPrefix(text, p.Expr) {
			rest := text[len(p.Expr):]
			if r := []rune(rest); len(r) > 0 && unicode.IsSpace(r[0]) {
				return TextMatch{Length: len(p.Expr)}, true
			}
		}
		return TextMatch{}, false
	case PatternPrefix:
		if strings.HasPrefix(text, p.Expr) {
			return TextMatch{Length: len(p.Expr)}, true
		}
		return TextMatch{}, false
	case PatternRegex, PatternTemplate:
		if p.re == nil {
			return TextMatch{}, false
		}
		sub := p.re.FindStringSubmatch(text)
		if sub == nil {
			return TextMatch{}, false
		}
		var vars PathVars
		for i, name := range p.re.SubexpNames() {
			if name == "" || i >= len(sub) {
				continue
			}
			if vars == nil {
				vars = PathVars{}
			}
			vars[name] = sub[i]
		}
		return TextMatch{Length: p.literalLength(), Vars: vars}, true
	}
	return TextMatch{}, false
}

func (p Pattern) literalLength() int {
	if p.Kind != PatternTemplate {
		return 0
	}
	return len(rePlaceholder.ReplaceAllString(p.Expr, ""))
}

func (p Pattern) String() string {
	if p.Kind == PatternAny {
		return "*"
	}
	return p.Kind.String() + ":" + p.Expr
}

func (p Pattern) key() string {
	return p.String()
}
