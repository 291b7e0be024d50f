// Package budget decides how long a reply may be from the text that asked
// for it.
package budget

import "strings"

const (
	DefaultTrigger        = "レイシオ"
	DefaultChars          = 200
	DefaultTokens         = 200
	DefaultExpandedChars  = 2000
	DefaultExpandedTokens = 1500
)

// Decision is the reply budget for a single request.
type Decision struct {
	Chars    int
	Tokens   int
	Expanded bool
}

// Limits is a (characters, tokens) pair.
type Limits struct {
	Chars  int
	Tokens int
}

// Policy maps input text to a Decision. The zero value is not useful; use
// NewPolicy or DefaultPolicy.
type Policy struct {
	trigger  string
	normal   Limits
	expanded Limits
}

// NewPolicy builds a Policy. Non-positive limits and an empty trigger fall
// back to the package defaults.
func NewPolicy(trigger string, normal, expanded Limits) Policy {
	if strings.TrimSpace(trigger) == "" {
		trigger = DefaultTrigger
	}
	if normal.Chars <= 0 {
		normal.Chars = DefaultChars
	}
	if normal.Tokens <= 0 {
		normal.Tokens = DefaultTokens
	}
	if expanded.Chars <= 0 {
		expanded.Chars = DefaultExpandedChars
	}
	if expanded.Tokens <= 0 {
		expanded.Tokens = DefaultExpandedTokens
	}
	return Policy{trigger: trigger, normal: normal, expanded: expanded}
}

func DefaultPolicy() Policy {
	return NewPolicy("", Limits{}, Limits{})
}

// Trigger returns the keyword that switches to the expanded budget.
func (p Policy) Trigger() string {
	return p.trigger
}

// Triggered reports whether text contains the trigger keyword.
func (p Policy) Triggered(text string) bool {
	return p.trigger != "" && strings.Contains(text, p.trigger)
}

// Decide returns the expanded budget iff text contains the trigger keyword.
func (p Policy) Decide(text string) Decision {
	if p.Triggered(text) {
		return Decision{Chars: p.expanded.Chars, Tokens: p.expanded.Tokens, Expanded: true}
	}
	return Decision{Chars: p.normal.Chars, Tokens: p.normal.Tokens}
}
