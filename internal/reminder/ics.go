package reminder

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// ParseICS turns every VEVENT in r into a reminder. Cancelled events and
// events without a start are skipped.
func ParseICS(r io.Reader, loc *time.Location) ([]Reminder, error) {
	if loc == nil {
		loc = time.Local
	}
	dec := ical.NewDecoder(r)

	var out []Reminder
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ics decode: %w", err)
		}
		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			rem, ok, err := fromEvent(comp, loc)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, rem)
			}
		}
	}
	return out, nil
}

func fromEvent(comp *ical.Component, loc *time.Location) (Reminder, bool, error) {
	if p := comp.Props.Get(ical.PropStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return Reminder{}, false, nil
	}
	start := comp.Props.Get(ical.PropDateTimeStart)
	if start == nil {
		return Reminder{}, false, nil
	}
	at, err := start.DateTime(loc)
	if err != nil {
		return Reminder{}, false, fmt.Errorf("ics DTSTART: %w", err)
	}

	var rem Reminder
	if p := comp.Props.Get(ical.PropUID); p != nil {
		rem.ID = strings.TrimSpace(p.Value)
	}
	if p := comp.Props.Get(ical.PropSummary); p != nil {
		rem.RawTitle = p.Value
	}
	if p := comp.Props.Get(ical.PropDescription); p != nil {
		rem.RawDescription = p.Value
	}
	rem.Title = rem.RawTitle
	rem.Body = rem.RawDescription
	if rem.Body == "" {
		rem.Body = rem.RawTitle
	}
	rem.TriggerDate = at
	local := at.In(loc)
	rem.ScheduledDate = local.Format(dateLayout)
	rem.ScheduledTime = local.Format(clockLayout)
	return rem, true, nil
}
