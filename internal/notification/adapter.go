// Package notification schedules local notifications through a platform
// adapter.
//
// Two adapters exist: Local, backed by the in-process notification host
// (Center), and Stub, a fail-soft no-op used where no host is available.
// Select picks one at process start.
package notification

import (
	"context"
	"errors"
	"time"
)

// DataReminderID is the data key that correlates a scheduled notification with its reminder.
const DataReminderID = "reminderId"

var (
	ErrInvalid  = errors.New("invalid notification")
	ErrNotFound = errors.New("notification not found")
	ErrClosed   = errors.New("notification host closed")
)

// Request is one local notification to deliver at At.
type Request struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Sound string            `json:"sound,omitempty"`
	At    time.Time         `json:"at"`
	Data  map[string]string `json:"data,omitempty"`
}

// ReminderID returns the correlation tag, if any.
func (r Request) ReminderID() string {
	if r.Data == nil {
		return ""
	}
	return r.Data[DataReminderID]
}

// Scheduled is a request the host has accepted, keyed by a host-assigned ID.
type Scheduled struct {
	ID string `json:"id"`
	Request
}

// Policy controls how a notification is presented when it fires while the app is in the foreground.
type Policy struct {
	ShowAlert bool `json:"showAlert"`
	PlaySound bool `json:"playSound"`
	SetBadge  bool `json:"setBadge"`
}

// DefaultPolicy shows the alert with sound and leaves the badge alone.
func DefaultPolicy() Policy {
	return Policy{ShowAlert: true, PlaySound: true}
}

// Adapter is the capability set the synchronizer drives.
//
// Host failures are logged by the adapter and never returned; a denied
// permission is reported as false. Schedule reports whether the host
// accepted the request.
type Adapter interface {
	RequestPermission(ctx context.Context) bool
	Schedule(ctx context.Context, req Request) bool
	CancelOne(ctx context.Context, reminderID string)
	CancelAll(ctx context.Context)
	ListScheduled(ctx context.Context) []Scheduled
	SetForegroundPolicy(p Policy)
}
