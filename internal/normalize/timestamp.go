package normalize

import (
	"strings"
	"time"
	_ "time/tzdata" // display zone must not depend on the host zoneinfo

	"github.com/rotisserie/eris"

	"github.com/sells-group/incident-etl/internal/model"
)

const (
	// DefaultTimezone is the display zone for incident timestamps.
	DefaultTimezone = "America/Denver"

	// DisplayLayout renders timestamps as "YYYY-MM-DD HH:mm <zone>".
	DisplayLayout = "2006-01-02 15:04 MST"
)

// Offset-less layouts are read as UTC.
var sourceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// LoadLocation resolves an IANA zone name using the embedded tz database.
func LoadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, eris.Wrapf(err, "normalize: load timezone %q", name)
	}
	return loc, nil
}

// ParseTimestamp parses an API timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range sourceLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// FormatTimestamp renders t in loc using DisplayLayout.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DisplayLayout)
}

// formatTime converts a source timestamp for display. A missing timestamp
// renders the current time.
func (n *Normalizer) formatTime(id, field, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return FormatTimestamp(n.now(), n.loc), nil
	}
	t, err := ParseTimestamp(raw)
	if err != nil {
		return "", &model.ProtocolError{Op: "parse " + field, Reason: "incident " + id, Err: err}
	}
	return FormatTimestamp(t, n.loc), nil
}
