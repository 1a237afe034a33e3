package carrier

import "errors"

// Sentinel errors for rule table construction.
var (
	// ErrNoRules is returned when the rule table is empty.
	ErrNoRules = errors.New("carrier: rule table is empty")

	// ErrNoCatchAll is returned when the last rule does not match everything.
	ErrNoCatchAll = errors.New("carrier: last rule must match any text")

	// ErrInvalidRule is returned for a rule with no name or a bad pattern.
	ErrInvalidRule = errors.New("carrier: invalid rule")
)
