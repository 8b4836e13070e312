package guardrails

import (
	"errors"
	"strings"
)

var (
	ErrSessionKeyRequired = errors.New("sessionKey is required")
	ErrSessionKeyFormat   = errors.New("Invalid sessionKey format")
)

// Guardrails performs input validation for inbound requests.
type Guardrails struct {
	prefixes map[string]string
}

// New returns guardrails that know the session key prefix of each provider.
// Providers without a prefix accept any non-empty key.
func New(prefixes map[string]string) *Guardrails {
	g := &Guardrails{prefixes: make(map[string]string, len(prefixes))}
	for p, prefix := range prefixes {
		g.prefixes[p] = prefix
	}
	return g
}

// CheckSessionKey returns an error if key is empty or does not carry the
// prefix expected for provider.
func (g *Guardrails) CheckSessionKey(provider, key string) error {
	if key == "" {
		return ErrSessionKeyRequired
	}
	if !strings.HasPrefix(key, g.prefixes[provider]) {
		return ErrSessionKeyFormat
	}
	return nil
}

// Required returns the name of the first field whose value is empty.
func Required(fields ...Field) (string, bool) {
	for _, f := range fields {
		if f.Value == "" {
			return f.Name, false
		}
	}
	return "", true
}

// Field is a named request input.
type Field struct {
	Name  string
	Value string
}
