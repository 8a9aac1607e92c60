package webhook

import (
	"time"

	"remindsync/internal/reminder"
)

const triggerLayout = "2006-01-02T15:04:05.000Z"

// Payload is the JSON body POSTed when a reminder's webhook fires.
type Payload struct {
	ReminderID    string  `json:"reminderId"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Message       string  `json:"message"`
	ScheduledDate string  `json:"scheduledDate"`
	ScheduledTime string  `json:"scheduledTime"`
	TriggerAt     string  `json:"triggerAt"`
	PhoneNumber   *string `json:"phoneNumber"`
}

func NewPayload(r reminder.Reminder) Payload {
	title := r.RawTitle
	if title == "" {
		title = r.Title
	}
	return Payload{
		ReminderID:    r.ID,
		Title:         title,
		Description:   r.RawDescription,
		Message:       r.Body,
		ScheduledDate: r.ScheduledDate,
		ScheduledTime: r.ScheduledTime,
		TriggerAt:     FormatTrigger(r.TriggerDate),
		PhoneNumber:   r.PhoneNumber,
	}
}

// FormatTrigger renders t as ISO-8601 UTC with millisecond precision.
func FormatTrigger(t time.Time) string {
	return t.UTC().Format(triggerLayout)
}
