package cotrip

import (
	"bytes"
	"encoding/json"
)

// Incident is one feature of the incidents endpoint.
type Incident struct {
	ID         Text            `json:"id"`
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties Properties      `json:"properties"`
}

// Properties holds the incident attributes carried through normalization.
// Direction is the raw JSON value; the API sends a number or a string.
type Properties struct {
	ID                         Text            `json:"id"`
	Type                       string          `json:"type"`
	Status                     string          `json:"status"`
	Direction                  json.RawMessage `json:"direction,omitempty"`
	RouteName                  string          `json:"routeName"`
	Severity                   string          `json:"severity"`
	ResponseLevel              string          `json:"responseLevel"`
	Category                   string          `json:"category"`
	StartMarker                *float64        `json:"startMarker"`
	EndMarker                  *float64        `json:"endMarker"`
	StartTime                  string          `json:"startTime"`
	LastUpdated                string          `json:"lastUpdated"`
	TravelerInformationMessage string          `json:"travelerInformationMessage"`
}

// Identifier returns the incident id, preferring properties.id over the
// feature id.
func (i *Incident) Identifier() string {
	if i.Properties.ID != "" {
		return string(i.Properties.ID)
	}
	return string(i.ID)
}

// Text is a string that also accepts JSON numbers, for fields the API emits
// as either.
type Text string

// UnmarshalJSON accepts a JSON string, number, or null.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = Text(n.String())
	return nil
}
