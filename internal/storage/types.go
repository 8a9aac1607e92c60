// Package storage persists the notification host's scheduled entries so they
// survive a restart.
//
// Drivers:
//   - "file": JSON snapshot + append-only journal, no dependencies
//   - "sqlite": single-file SQLite database (modernc.org/sqlite, cgo-free)
//
// An empty driver or "none" disables persistence; the host then keeps
// entries in memory only.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 keeps the driver default
}

// Record is one scheduled local notification as the host stores it.
type Record struct {
	ID    string            `json:"id"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Sound string            `json:"sound,omitempty"`
	At    time.Time         `json:"at"`
	Data  map[string]string `json:"data,omitempty"`
}

// Store is the persistence API used by the notification host.
type Store interface {
	PutNotification(ctx context.Context, r Record) error
	DeleteNotification(ctx context.Context, id string) error
	DeleteAllNotifications(ctx context.Context) error
	// ListNotifications returns records ordered by At, then ID.
	ListNotifications(ctx context.Context) ([]Record, error)
	Close() error
}
