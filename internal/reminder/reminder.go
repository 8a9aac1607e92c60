// Package reminder defines the reminder record handed to the synchronizer and
// the file sources it can be loaded from.
package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LeadThreshold is the minimum distance into the future a reminder must be to get scheduled.
const LeadThreshold = time.Second

var ErrInvalid = errors.New("invalid reminder")

// Reminder is one user-defined future event.
//
// The Raw* and Scheduled* fields are denormalized display values forwarded
// unchanged to the webhook payload.
type Reminder struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	TriggerDate time.Time `json:"triggerDate"`
	PhoneNumber *string   `json:"phoneNumber"`

	RawTitle       string `json:"rawTitle,omitempty"`
	RawDescription string `json:"rawDescription,omitempty"`
	ScheduledTime  string `json:"scheduledTime,omitempty"`
	ScheduledDate  string `json:"scheduledDate,omitempty"`
}

// Eligible returns the distance to the trigger and whether it is far enough out to schedule.
func Eligible(r Reminder, now time.Time) (time.Duration, bool) {
	diff := r.TriggerDate.Sub(now)
	return diff, diff > LeadThreshold
}

// Validate rejects batches the synchronizer cannot key reliably. It trims
// IDs in place and turns blank phone numbers into nil, so the stored ID is
// the one duplicates are checked against.
func Validate(rs []Reminder) error {
	seen := make(map[string]int, len(rs))
	for i := range rs {
		r := &rs[i]
		r.ID = strings.TrimSpace(r.ID)
		if r.PhoneNumber != nil {
			r.PhoneNumber = Phone(*r.PhoneNumber)
		}
		id := r.ID
		if id == "" {
			return fmt.Errorf("%w: reminders[%d]: id is required", ErrInvalid, i)
		}
		if r.TriggerDate.IsZero() {
			return fmt.Errorf("%w: reminders[%d] (%s): triggerDate is required", ErrInvalid, i, id)
		}
		if j, dup := seen[id]; dup {
			return fmt.Errorf("%w: reminders[%d]: duplicate id %q (first at %d)", ErrInvalid, i, id, j)
		}
		seen[id] = i
	}
	return nil
}

// Phone returns a pointer to s, or nil when s is blank.
func Phone(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
