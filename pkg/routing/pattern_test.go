package routing

import (
	"testing"
)

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
		text    string
		hasText bool
		want    bool
		wantLen int
	}{
		{"any matches text", Pattern{}, "hello", true, true, 0},
		{"any matches no text", Pattern{}, "", false, true, 0},
		{"literal exact", Literal("/start"), "/start", true, true, 6},
		{"literal with args", Literal("/start"), "/start abc", true, true, 6},
		{"literal needs token boundary", Literal("/st"), "/start", true, false, 0},
		{"literal on textless event", Literal("/start"), "", false, false, 0},
		{"prefix", Prefix("/st"), "/start abc", true, true, 3},
		{"prefix miss", Prefix("/stop"), "/start", true, false, 0},
		{"regex anchored", MustRegex(`\d+`), "123", true, true, 0},
		{"regex is whole text", MustRegex(`\d+`), "a123", true, false, 0},
		{"template", MustTemplate("/echo {word}"), "/echo hi", true, true, 6},
		{"template one token", MustTemplate("/echo {word}"), "/echo hi there", true, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := tt.pattern.Match(tt.text, tt.hasText)
			if ok != tt.want {
				t.Fatalf("Match(%q) = %v, want %v", tt.text, ok, tt.want)
			}
			if ok && m.Length != tt.wantLen {
				t.Errorf("Length = %d, want %d", m.Length, tt.wantLen)
			}
		})
	}
}

func TestPatternCapturesVars(t *testing.T) {
	m, ok := MustTemplate("/pay {amount} {currency}").Match("/pay 10 EUR", true)
	if !ok {
		t.Fatal("expected template to match")
	}
	if m.Vars["amount"] != "10" || m.Vars["currency"] != "EUR" {
		t.Errorf("Vars = %v", m.Vars)
	}

	m, ok = MustRegex(`/user (?P<id>\d+)`).Match("/user 42", true)
	if !ok {
		t.Fatal("expected regex to match")
	}
	if m.Vars["id"] != "42" {
		t.Errorf("Vars = %v", m.Vars)
	}
}

func TestTemplateEscapesLiteralParts(t *testing.T) {
	p := MustTemplate("/a.b {x}")
	if _, ok := p.Match("/aXb 1", true); ok {
		t.Error("dot in template must be literal")
	}
	if _, ok := p.Match("/a.b 1", true); !ok {
		t.Error("expected literal dot to match")
	}
}

func TestRegexRejectsInvalid(t *testing.T) {
	if _, err := Regex("("); err == nil {
		t.Error("expected compile error")
	}
}
