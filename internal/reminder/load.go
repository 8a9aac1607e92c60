package reminder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"remindsync/internal/config"
)

// fileDoc accepts either a bare array or {"reminders": [...]}.
type fileDoc struct {
	Reminders []Reminder `json:"reminders"`
}

// Load reads a reminder file. The format follows the extension:
// .json, .yaml/.yml or .ics. loc is used for the display date and time of
// calendar events; nil means time.Local.
func Load(path string, loc *time.Location) ([]Reminder, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}

	var rs []Reminder
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ics", ".ical":
		rs, err = ParseICS(bytes.NewReader(b), loc)
	case ".yaml", ".yml":
		var j []byte
		j, err = config.YAMLToJSON(b)
		if err == nil {
			rs, err = decodeJSON(j)
		}
	default:
		rs, err = decodeJSON(b)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := Validate(rs); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return rs, nil
}

func decodeJSON(b []byte) ([]Reminder, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	if b[0] == '[' {
		var rs []Reminder
		if err := strictDecode(b, &rs); err != nil {
			return nil, err
		}
		return rs, nil
	}
	var doc fileDoc
	if err := strictDecode(b, &doc); err != nil {
		return nil, err
	}
	return doc.Reminders, nil
}

func strictDecode(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}
