// Package carrier identifies the shipping company behind a decoded barcode.
//
// Identification is a best-effort heuristic over an ordered table of
// regular expressions. The first rule whose pattern matches the whole text
// wins, and the table always ends with a catch-all rule.
package carrier

import (
	"fmt"
	"regexp"
)

// Other is the label of the default catch-all rule.
const Other = "其他"

// Plausibility bounds for a shipment code.
const (
	MinCodeLength = 10
	MaxCodeLength = 20
)

// Rule maps a carrier label to the pattern its codes follow.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Spec is the uncompiled form of a Rule, as read from configuration.
type Spec struct {
	Name    string `yaml:"name" json:"name"`
	Pattern string `yaml:"pattern" json:"pattern"`
}

// DefaultSpecs returns the built-in carrier table in match order.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: "顺丰", Pattern: `^SF\d{13}$`},
		{Name: "中通", Pattern: `^78\d{12}$`},
		{Name: "圆通", Pattern: `^YT\d{13}$`},
		{Name: "申通", Pattern: `^77\d{13}$`},
		{Name: "韵达", Pattern: `^[34]\d{14}$`},
		{Name: "京东", Pattern: `^JD[0-9A-Z]{11,13}$`},
		{Name: "邮政", Pattern: `^9\d{12}$`},
		{Name: "极兔", Pattern: `^JT\d{13}$`},
		{Name: Other, Pattern: `.*`},
	}
}

// Compile turns specs into rules. Patterns are anchored so they always
// match the full text.
func Compile(specs []Spec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrInvalidRule)
		}
		re, err := regexp.Compile(`^(?:` + s.Pattern + `)$`)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, s.Name, err)
		}
		rules = append(rules, Rule{Name: s.Name, Pattern: re})
	}
	return rules, nil
}

// DefaultRules returns the compiled built-in table.
func DefaultRules() []Rule {
	rules, err := Compile(DefaultSpecs())
	if err != nil {
		panic(err)
	}
	return rules
}

// Classifier holds an ordered, immutable rule table.
type Classifier struct {
	rules    []Rule
	fallback string
}

// New creates a classifier over rules. The last rule must match every
// input; its name becomes the catch-all label.
func New(rules []Rule) (*Classifier, error) {
	if len(rules) == 0 {
		return nil, ErrNoRules
	}
	last := rules[len(rules)-1]
	for _, probe := range []string{"", "x", "0123456789"} {
		if !last.Pattern.MatchString(probe) {
			return nil, fmt.Errorf("%w: %q", ErrNoCatchAll, last.Name)
		}
	}
	owned := make([]Rule, len(rules))
	copy(owned, rules)
	return &Classifier{rules: owned, fallback: last.Name}, nil
}

// Default returns a classifier over the built-in table.
func Default() *Classifier {
	c, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the label of the first rule matching text.
func (c *Classifier) Classify(text string) string {
	for _, r := range c.rules {
		if r.Pattern.MatchString(text) {
			return r.Name
		}
	}
	return c.fallback
}

// Fallback returns the catch-all label.
func (c *Classifier) Fallback() string {
	return c.fallback
}

// IsFallback reports whether label is the catch-all.
func (c *Classifier) IsFallback(label string) bool {
	return label == c.fallback
}

// Names returns the carrier labels in table order.
func (c *Classifier) Names() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name
	}
	return names
}

// Plausible is the cheap pre-check run before classification: 10 to 20
// ASCII letters or digits. Anything passing it is treated as a possible
// shipment code even when no specific carrier matches.
func (c *Classifier) Plausible(text string) bool {
	return Plausible(text)
}

// Plausible reports whether text looks like a shipment code.
func Plausible(text string) bool {
	if len(text) < MinCodeLength || len(text) > MaxCodeLength {
		return false
	}
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'a' && ch <= 'z':
		case ch >= 'A' && ch <= 'Z':
		default:
			return false
		}
	}
	return true
}
