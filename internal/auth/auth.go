// Package auth resolves bearer credentials to owner ids.
package auth

import "strings"

// Tokens maps bearer tokens to owner ids.
//
// With no tokens configured every non-empty token is accepted and used as
// the owner id itself, which suits local development.
type Tokens struct {
	owners map[string]string
}

// NewTokens creates a resolver over token -> owner pairs.
func NewTokens(owners map[string]string) *Tokens {
	copied := make(map[string]string, len(owners))
	for k, v := range owners {
		copied[k] = v
	}
	return &Tokens{owners: copied}
}

// Open reports whether any token is accepted.
func (t *Tokens) Open() bool {
	return len(t.owners) == 0
}

// Owner resolves a token.
func (t *Tokens) Owner(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	if t.Open() {
		return token, true
	}
	owner, ok := t.owners[token]
	return owner, ok
}
