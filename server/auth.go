package server

import (
	"crypto/subtle"

	"wsiorpc/internal/config"
	"wsiorpc/internal/wsierr"
)

// ClientInfo holds metadata about an authenticated connection, threaded
// through to the optional authorization hook on every inbound Request.
type ClientInfo struct {
	Name  string
	Roles []string
}

// HasRole reports whether info carries role.
func (info *ClientInfo) HasRole(role string) bool {
	if info == nil {
		return false
	}
	for _, r := range info.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authenticator validates a connecting client's credential and returns
// the ClientInfo to attach to the resulting Conn.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

// openAuth admits every connection with an empty ClientInfo, the default
// when no Authenticator is configured.
type openAuth struct{}

func (openAuth) Authenticate(string) (*ClientInfo, error) {
	return &ClientInfo{}, nil
}

type tokenEntry struct {
	token []byte
	info  *ClientInfo
}

// StaticTokenAuth authenticates against a fixed token list using
// constant-time comparison, closing the timing side channel a naive
// string comparison would leave open.
type StaticTokenAuth struct {
	entries []tokenEntry
}

// NewStaticTokenAuth builds a StaticTokenAuth from configuration entries.
func NewStaticTokenAuth(tokens []config.TokenConfig) *StaticTokenAuth {
	a := &StaticTokenAuth{entries: make([]tokenEntry, len(tokens))}
	for i, tok := range tokens {
		a.entries[i] = tokenEntry{
			token: []byte(tok.Token),
			info:  &ClientInfo{Name: tok.Name, Roles: tok.Roles},
		}
	}
	return a
}

// Authenticate returns the ClientInfo for a matching token.
func (a *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	candidate := []byte(token)
	for _, e := range a.entries {
		if subtle.ConstantTimeCompare(candidate, e.token) == 1 {
			return e.info, nil
		}
	}
	return nil, wsierr.Wrap("server.Authenticate", wsierr.ErrAuthFailed, "invalid token")
}

// Authorizer decides whether a ClientInfo may invoke a named event,
// the RBAC hook supplementing the base protocol (§9 supplement).
type Authorizer func(info *ClientInfo, event string) bool

// allowAll is the default Authorizer when none is configured.
func allowAll(*ClientInfo, string) bool { return true }
