package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// CoTType is the Cursor-on-Target type attached to every emitted incident.
const CoTType = "a-f-G"

// Profile selects which incident attributes are copied into feature metadata.
type Profile string

const (
	// ProfileFull exposes every carried incident attribute.
	ProfileFull Profile = "full"
	// ProfileMinimal exposes only type, status, times and the traveler message.
	ProfileMinimal Profile = "minimal"
)

// ParseProfile converts a string into a Profile.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case ProfileFull, "":
		return ProfileFull, nil
	case ProfileMinimal:
		return ProfileMinimal, nil
	default:
		return "", eris.Errorf("unknown profile: %q (valid: full, minimal)", s)
	}
}

// Metadata mirrors the incident attributes carried on an output feature.
// Details is nil under the minimal profile.
type Metadata struct {
	IncidentType               string
	Status                     string
	StartTime                  string
	LastUpdated                string
	TravelerInformationMessage string
	Details                    *Details
}

// Details holds the attributes only the full profile carries. Direction is
// the source's raw JSON value so numbers stay numbers.
type Details struct {
	Direction     json.RawMessage
	RouteName     string
	Severity      string
	ResponseLevel string
	Category      string
	StartMarker   *float64
	EndMarker     *float64
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	if m.Details == nil {
		return m
	}
	d := *m.Details
	if d.Direction != nil {
		d.Direction = append(json.RawMessage(nil), d.Direction...)
	}
	d.StartMarker = cloneFloat(d.StartMarker)
	d.EndMarker = cloneFloat(d.EndMarker)
	m.Details = &d
	return m
}

// Detail returns the full-profile attributes, or the zero value under the
// minimal profile.
func (m Metadata) Detail() Details {
	if m.Details == nil {
		return Details{}
	}
	return *m.Details
}

// DirectionText renders the direction for tabular outputs: strings unquoted,
// numbers as written, null or absent as "".
func (d Details) DirectionText() string {
	raw := bytes.TrimSpace(d.Direction)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// Map returns the metadata as a GeoJSON property map. Every full-profile key
// is present when Details is set; markers are omitted when the source has none.
func (m Metadata) Map() map[string]any {
	out := map[string]any{
		"incident_type":              m.IncidentType,
		"status":                     m.Status,
		"startTime":                  m.StartTime,
		"lastUpdated":                m.LastUpdated,
		"travelerInformationMessage": m.TravelerInformationMessage,
	}
	d := m.Details
	if d == nil {
		return out
	}
	if len(d.Direction) == 0 {
		out["direction"] = nil
	} else {
		out["direction"] = d.Direction
	}
	out["routeName"] = d.RouteName
	out["severity"] = d.Severity
	out["responseLevel"] = d.ResponseLevel
	out["category"] = d.Category
	if d.StartMarker != nil {
		out["startMarker"] = *d.StartMarker
	}
	if d.EndMarker != nil {
		out["endMarker"] = *d.EndMarker
	}
	return out
}

// MarshalJSON encodes the metadata with the same keys as Map.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Map())
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Feature is one normalized incident record carrying exactly one geometry.
type Feature struct {
	ID       string
	Label    string
	Remarks  string
	Metadata Metadata
	Geometry geom.T
}

// Kind returns the canonical kind of the feature geometry.
func (f *Feature) Kind() (Kind, bool) {
	return KindOf(f.Geometry)
}

// GeoJSON converts the feature into its GeoJSON representation.
func (f *Feature) GeoJSON() *geojson.Feature {
	return &geojson.Feature{
		ID:       f.ID,
		Geometry: f.Geometry,
		Properties: map[string]any{
			"callsign": f.Label,
			"remarks":  f.Remarks,
			"type":     CoTType,
			"metadata": f.Metadata.Map(),
		},
	}
}

// Collection is the normalized, filtered output of one run. Order carries no meaning.
type Collection struct {
	Features []Feature
}

// Len returns the number of features.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Features)
}

// CountByKind tallies features per canonical kind.
func (c *Collection) CountByKind() map[Kind]int {
	counts := make(map[Kind]int, len(Kinds))
	for i := range c.Features {
		if k, ok := c.Features[i].Kind(); ok {
			counts[k]++
		}
	}
	return counts
}

// FeatureCollection converts the collection into a GeoJSON FeatureCollection.
func (c *Collection) FeatureCollection() *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(c.Features))}
	for i := range c.Features {
		fc.Features = append(fc.Features, c.Features[i].GeoJSON())
	}
	return fc
}

// MarshalJSON encodes the collection as a GeoJSON FeatureCollection.
func (c *Collection) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(c.FeatureCollection())
	if err != nil {
		return nil, eris.Wrap(err, "model: marshal feature collection")
	}
	return data, nil
}
