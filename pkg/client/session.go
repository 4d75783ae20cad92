package client

import (
	"github.com/google/uuid"
)

// NewSession returns a fresh opaque session token. Supplying a new session to
// the cache discards every previously cached decision, so callers mint one
// whenever their security context changes (login, logout, privilege drop).
func NewSession() string {
	return uuid.NewString()
}
