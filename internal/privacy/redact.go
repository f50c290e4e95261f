// Package privacy masks personal data in extracted text before it is sent
// to third-party summarization services.
package privacy

import (
	"fmt"
	"regexp"
)

const redactedPlaceholder = "[REDACTED]"

// Built-in patterns enabled by privacy.redact_builtin.
const (
	EmailPattern = `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`
	PhonePattern = `\+\d[\d \-]{7,}\d`
)

// Redactor replaces every match of its patterns with [REDACTED].
// A nil Redactor leaves text unchanged.
type Redactor struct {
	patterns []*regexp.Regexp
}

// New compiles patterns into a Redactor. Invalid patterns are a config error.
func New(patterns []string) (*Redactor, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &Redactor{patterns: compiled}, nil
}

// Redact returns text with matches replaced and the number of replacements.
func (r *Redactor) Redact(text string) (string, int) {
	if r == nil {
		return text, 0
	}
	n := 0
	for _, re := range r.patterns {
		text = re.ReplaceAllStringFunc(text, func(string) string {
			n++
			return redactedPlaceholder
		})
	}
	return text, n
}

// Len reports how many patterns are active.
func (r *Redactor) Len() int {
	if r == nil {
		return 0
	}
	return len(r.patterns)
}
