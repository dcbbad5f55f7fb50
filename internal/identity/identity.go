// Package identity classifies user identifiers as durable or ephemeral.
package identity

import (
	"github.com/google/uuid"
)

// Kind tells the entity store which backend is authoritative for a user.
type Kind string

const (
	// Durable identities have a stable, globally unique UUID and live remotely.
	Durable Kind = "durable"
	// Ephemeral identities (local test accounts, anonymous users) stay on the device.
	Ephemeral Kind = "ephemeral"
)

// Identity is a classified user identifier.
type Identity struct {
	ID   string
	Kind Kind
}

// Parse classifies id without I/O. Only the canonical hyphenated form is
// durable; uuid.Parse alone also accepts braces, URNs and bare hex.
func Parse(id string) Identity {
	return Identity{ID: id, Kind: KindOf(id)}
}

// KindOf returns the identity kind implied by the identifier's syntax.
func KindOf(id string) Kind {
	if len(id) != 36 {
		return Ephemeral
	}
	if _, err := uuid.Parse(id); err != nil {
		return Ephemeral
	}
	return Durable
}

// IsDurable reports whether the identity is backed by the remote store.
func (i Identity) IsDurable() bool {
	return i.Kind == Durable
}

func (i Identity) String() string {
	return string(i.Kind) + ":" + i.ID
}
