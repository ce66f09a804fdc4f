package identity

import (
	"context"
	"errors"
	"time"
)

// User is the authenticated principal bound to a connection. The gateway
// only ever reads these fields; the record itself is owned by the user
// store.
type User struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusAway    Status = "away"
)

var ErrNotFound = errors.New("identity: user not found")

// Directory is the external user-identity collaborator: it resolves a
// verified principal to a full user record and holds the durable status
// field that survives process restarts.
type Directory interface {
	FindByID(ctx context.Context, id string) (User, error)
	// SetStatus updates the durable status field and last-seen timestamp.
	// Callers treat failures as non-fatal; real-time presence is defined
	// by the in-memory registry, not this field.
	SetStatus(ctx context.Context, id string, status Status, lastSeen time.Time) error
}
