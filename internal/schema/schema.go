// Package schema describes the run settings and per-feature metadata as
// JSON Schema documents.
package schema

import (
	"bytes"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Type selects which schema to describe.
type Type string

const (
	TypeInput  Type = "input"
	TypeOutput Type = "output"
)

// Property is one JSON Schema property.
type Property struct {
	Type        string   `yaml:"type" json:"type"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Default     any      `yaml:"default,omitempty" json:"default,omitempty"`
	Env         []string `yaml:"env,omitempty" json:"env,omitempty"`
}

// Schema is a flat JSON Schema object.
type Schema struct {
	Type       string              `yaml:"type" json:"type"`
	Properties map[string]Property `yaml:"properties" json:"properties"`
	Required   []string            `yaml:"required,omitempty" json:"required,omitempty"`
}

// Input describes the settings a run reads, keyed by config file key. Env
// lists the environment variables that set the same value.
func Input() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]Property{
			"cotrip.token": {
				Type: "string", Description: "API token for CoTrip",
				Env: []string{"INCIDENT_COTRIP_TOKEN", "COTRIP_TOKEN"},
			},
			"cotrip.base_url": {
				Type: "string", Description: "CoTrip API base URL", Default: "https://data.cotrip.org/",
				Env: []string{"INCIDENT_COTRIP_BASE_URL"},
			},
			"cotrip.allow_point": {
				Type: "boolean", Description: "Allow Point geometries (--point)", Default: true,
				Env: []string{"INCIDENT_COTRIP_ALLOW_POINT"},
			},
			"cotrip.allow_linestring": {
				Type: "boolean", Description: "Allow LineString geometries (--linestring)", Default: true,
				Env: []string{"INCIDENT_COTRIP_ALLOW_LINESTRING"},
			},
			"cotrip.allow_polygon": {
				Type: "boolean", Description: "Allow Polygon geometries (--polygon)", Default: true,
				Env: []string{"INCIDENT_COTRIP_ALLOW_POLYGON"},
			},
			"cotrip.verbose": {
				Type: "boolean", Description: "Log every emitted GeoJSON feature", Default: false,
				Env: []string{"INCIDENT_COTRIP_VERBOSE"},
			},
			"cotrip.profile": {
				Type: "string", Description: "Metadata profile: full or minimal (--profile)", Default: "full",
				Env: []string{"INCIDENT_COTRIP_PROFILE"},
			},
			"cotrip.timezone": {
				Type: "string", Description: "Zone used to format startTime and lastUpdated", Default: "America/Denver",
				Env: []string{"INCIDENT_COTRIP_TIMEZONE"},
			},
		},
		Required: []string{"cotrip.token"},
	}
}

// Output describes the metadata attached to every emitted feature.
func Output() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]Property{
			"incident_type":              {Type: "string"},
			"status":                     {Type: "string"},
			"direction":                  {Type: "number", Description: "Passed through as sent; some incidents carry a string"},
			"routeName":                  {Type: "string"},
			"severity":                   {Type: "string"},
			"responseLevel":              {Type: "string"},
			"category":                   {Type: "string"},
			"startTime":                  {Type: "string", Description: "YYYY-MM-DD HH:mm zone, America/Denver"},
			"startMarker":                {Type: "number"},
			"endMarker":                  {Type: "number"},
			"lastUpdated":                {Type: "string", Description: "YYYY-MM-DD HH:mm zone, America/Denver"},
			"travelerInformationMessage": {Type: "string"},
		},
		Required: []string{"incident_type", "status", "startTime", "lastUpdated", "travelerInformationMessage"},
	}
}

// For returns the schema of the given type.
func For(t Type) (*Schema, error) {
	switch t {
	case TypeInput, "":
		return Input(), nil
	case TypeOutput:
		return Output(), nil
	default:
		return nil, eris.Errorf("schema: unknown type %q (valid: input, output)", t)
	}
}

// YAML renders s as a YAML document.
func (s *Schema) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, eris.Wrap(err, "schema: encode yaml")
	}
	if err := enc.Close(); err != nil {
		return nil, eris.Wrap(err, "schema: close encoder")
	}
	return buf.Bytes(), nil
}
