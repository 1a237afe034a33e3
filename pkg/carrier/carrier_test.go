package carrier

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func TestClassify_KnownCarriers(t *testing.T) {
	c := Default()

	tests := []struct {
		code string
		want string
	}{
		{"SF1234567890123", "顺丰"},
		{"78123456789012", "中通"},
		{"YT1234567890123", "圆通"},
		{"771234567890123", "申通"},
		{"312345678901234", "韵达"},
		{"412345678901234", "韵达"},
		{"JD0123456789A", "京东"},
		{"JDABCDEFGHIJKLM", "京东"},
		{"9123456789012", "邮政"},
		{"JT1234567890123", "极兔"},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			if got := c.Classify(tc.code); got != tc.want {
				t.Errorf("Classify(%q) = %q, want %q", tc.code, got, tc.want)
			}
		})
	}
}

func TestClassify_Misses(t *testing.T) {
	c := Default()

	for _, code := range []string{
		"SF123456789012",   // one digit short
		"sf1234567890123",  // lower case prefix
		"91234567890123",   // 邮政 is exactly 13 digits
		"ABCDEFGHIJKL",     // no carrier shape
		"",                 // empty
		"SF1234567890123 ", // trailing space breaks full match
	} {
		if got := c.Classify(code); got != Other {
			t.Errorf("Classify(%q) = %q, want %q", code, got, Other)
		}
	}
}

// Scenario A and B end to end: plausibility then classification.
func TestScenarios(t *testing.T) {
	c := Default()

	for _, tc := range []struct {
		code string
		want string
	}{
		{"SF1234567890123", "顺丰"},
		{"9123456789012", "邮政"},
	} {
		if !c.Plausible(tc.code) {
			t.Fatalf("%q should be plausible", tc.code)
		}
		if got := c.Classify(tc.code); got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestClassify_GeneratedMatches(t *testing.T) {
	c := Default()
	rng := rand.New(rand.NewSource(42))

	digits := func(n int) string {
		var b strings.Builder
		for i := 0; i < n; i++ {
			b.WriteByte(byte('0' + rng.Intn(10)))
		}
		return b.String()
	}

	gen := map[string]func() string{
		"顺丰": func() string { return "SF" + digits(13) },
		"中通": func() string { return "78" + digits(12) },
		"圆通": func() string { return "YT" + digits(13) },
		"申通": func() string { return "77" + digits(13) },
		"韵达": func() string { return string("34"[rng.Intn(2)]) + digits(14) },
		"邮政": func() string { return "9" + digits(12) },
		"极兔": func() string { return "JT" + digits(13) },
	}

	for want, g := range gen {
		for i := 0; i < 200; i++ {
			code := g()
			if got := c.Classify(code); got != want {
				t.Fatalf("Classify(%q) = %q, want %q", code, got, want)
			}
		}
	}
}

// Random alphanumeric strings made only of letters that no carrier prefix
// uses can never match a specific rule.
func TestClassify_GeneratedNonMatches(t *testing.T) {
	c := Default()
	rng := rand.New(rand.NewSource(7))
	const alphabet = "abcdeghikmnopqruvwxyz"

	for i := 0; i < 500; i++ {
		n := MinCodeLength + rng.Intn(MaxCodeLength-MinCodeLength+1)
		b := make([]byte, n)
		for j := range b {
			b[j] = alphabet[rng.Intn(len(alphabet))]
		}
		code := string(b)
		if !c.Plausible(code) {
			t.Fatalf("%q should be plausible", code)
		}
		if got := c.Classify(code); got != Other {
			t.Fatalf("Classify(%q) = %q, want catch-all", code, got)
		}
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	rules, err := Compile([]Spec{
		{Name: "first", Pattern: `AB\d+`},
		{Name: "second", Pattern: `A.*`},
		{Name: "rest", Pattern: `.*`},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	c, err := New(rules)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if got := c.Classify("AB123"); got != "first" {
		t.Errorf("AB123 matched %q, want first", got)
	}
	if got := c.Classify("AX123"); got != "second" {
		t.Errorf("AX123 matched %q, want second", got)
	}

	// Swap the order and the broader rule takes over.
	swapped, _ := New([]Rule{rules[1], rules[0], rules[2]})
	if got := swapped.Classify("AB123"); got != "second" {
		t.Errorf("swapped table: AB123 matched %q, want second", got)
	}
}

func TestCompile_AnchorsPatterns(t *testing.T) {
	rules, err := Compile([]Spec{{Name: "x", Pattern: `SF\d{2}`}, {Name: "rest", Pattern: `.*`}})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	c, _ := New(rules)
	if got := c.Classify("xxSF12xx"); got != "rest" {
		t.Errorf("unanchored pattern matched a substring: %q", got)
	}
	if got := c.Classify("SF12"); got != "x" {
		t.Errorf("Classify(SF12) = %q", got)
	}
}

func TestNew_RequiresCatchAllLast(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoRules) {
		t.Errorf("expected ErrNoRules, got %v", err)
	}

	rules, _ := Compile([]Spec{{Name: "rest", Pattern: `.*`}, {Name: "sf", Pattern: `SF\d+`}})
	if _, err := New(rules); !errors.Is(err, ErrNoCatchAll) {
		t.Errorf("expected ErrNoCatchAll, got %v", err)
	}
}

func TestCompile_Invalid(t *testing.T) {
	if _, err := Compile([]Spec{{Name: "bad", Pattern: `(`}}); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("expected ErrInvalidRule for bad pattern, got %v", err)
	}
	if _, err := Compile([]Spec{{Pattern: `.*`}}); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("expected ErrInvalidRule for empty name, got %v", err)
	}
}

func TestPlausible(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"random123", false},             // 9 chars, scenario C
		{"ABCDEFGHIJ", true},             // 10 chars
		{"A1234567890123456789", true},   // 20 chars
		{"A12345678901234567890", false}, // 21 chars
		{"SF12345-67890", false},         // punctuation
		{"SF1234567890 23", false},       // space
		{"顺丰1234567890", false},          // non-ASCII
		{"", false},
	}
	for _, tc := range tests {
		if got := Plausible(tc.code); got != tc.want {
			t.Errorf("Plausible(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

// Plausibility rejects on shape alone: even text that matches a carrier
// pattern is rejected when it is too long or contains separators.
func TestPlausible_IndependentOfCarrier(t *testing.T) {
	c := Default()
	long := "JD" + strings.Repeat("A", 19)
	if c.Plausible(long) {
		t.Errorf("%q (len %d) should be rejected", long, len(long))
	}
	if c.Plausible("SF-1234567890123") {
		t.Error("code with separator should be rejected")
	}
}

func TestNames_TableOrder(t *testing.T) {
	names := Default().Names()
	if names[0] != "顺丰" || names[len(names)-1] != Other {
		t.Errorf("unexpected order: %v", names)
	}
	if !Default().IsFallback(Other) {
		t.Error("expected catch-all to be the fallback")
	}
}
