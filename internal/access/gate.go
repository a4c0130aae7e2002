// internal/access/gate.go
package access

import (
	"errors"
	"fmt"
)

// Level classifies who may fetch an asset. The level applies uniformly
// to the original and every variant; thumbnails get no weaker policy.
type Level string

const (
	Public        Level = "public"
	Authenticated Level = "authenticated"
	Private       Level = "private"
)

var (
	// ErrAuthRequired means the requester must present a valid identity.
	ErrAuthRequired = errors.New("authentication required")
	// ErrForbidden means the identity is valid but not privileged enough.
	ErrForbidden = errors.New("access denied")
)

// ParseLevel validates an access level stored or submitted as a string.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case Public, Authenticated, Private:
		return Level(s), nil
	}
	return "", fmt.Errorf("unknown access level %q", s)
}

// Identity is a validated requester. A nil *Identity is anonymous.
type Identity struct {
	Subject string
	Admin   bool
}

// Authorize decides whether the requester may fetch an asset at the
// given level. It returns nil on permit.
func Authorize(level Level, id *Identity) error {
	switch level {
	case Public:
		return nil
	case Authenticated:
		if id == nil {
			return ErrAuthRequired
		}
		return nil
	case Private:
		if id == nil {
			return ErrAuthRequired
		}
		if !id.Admin {
			return ErrForbidden
		}
		return nil
	default:
		// Unknown levels fail closed.
		return ErrForbidden
	}
}
