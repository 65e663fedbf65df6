package core

import (
	"context"
)

// PresenceStatus is the status a user advertises to the rooms they are in.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusBusy    PresenceStatus = "busy"
	StatusOffline PresenceStatus = "offline"
)

type Profile struct {
	PublicKey string         `json:"publicKey"`
	Name      string         `json:"name"`
	Status    PresenceStatus `json:"status,omitempty"`
}

type ProfileStore interface {
	// SaveProfile inserts or replaces a profile. local marks the profile of this client's identity.
	SaveProfile(ctx context.Context, profile Profile, local bool) error

	// GetProfile returns nil if the key is unknown.
	GetProfile(ctx context.Context, publicKey string) (*Profile, error)

	// LocalProfile returns the profile of the local identity, or nil before the first identity frame.
	LocalProfile(ctx context.Context) (*Profile, error)
}
