package normalize

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/incident-etl/internal/model"
	"github.com/sells-group/incident-etl/pkg/cotrip"
)

// Map converts one incident into a feature. The geometry is decoded but may
// still be a multi-part kind.
func (n *Normalizer) Map(inc *cotrip.Incident) (model.Feature, error) {
	id := inc.Identifier()
	if id == "" {
		return model.Feature{}, model.NewProtocolError("map incident", "incident has no id")
	}

	g, err := decodeGeometry(id, inc.Geometry)
	if err != nil {
		return model.Feature{}, err
	}

	p := &inc.Properties
	start, err := n.formatTime(id, "startTime", p.StartTime)
	if err != nil {
		return model.Feature{}, err
	}
	updated, err := n.formatTime(id, "lastUpdated", p.LastUpdated)
	if err != nil {
		return model.Feature{}, err
	}

	md := model.Metadata{
		IncidentType:               p.Type,
		Status:                     p.Status,
		StartTime:                  start,
		LastUpdated:                updated,
		TravelerInformationMessage: p.TravelerInformationMessage,
	}
	if n.profile == model.ProfileFull {
		md.Details = &model.Details{
			RouteName:     p.RouteName,
			Severity:      p.Severity,
			ResponseLevel: p.ResponseLevel,
			Category:      p.Category,
			StartMarker:   copyFloat(p.StartMarker),
			EndMarker:     copyFloat(p.EndMarker),
		}
		if len(p.Direction) > 0 {
			md.Details.Direction = append(json.RawMessage(nil), p.Direction...)
		}
	}

	return model.Feature{
		ID:       id,
		Label:    p.Type,
		Remarks:  p.TravelerInformationMessage,
		Metadata: md,
		Geometry: g,
	}, nil
}

type geometryDoc struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func decodeGeometry(id string, raw []byte) (geom.T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, model.NewProtocolError("decode geometry", "incident %q has no geometry", id)
	}

	var doc geometryDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &model.ProtocolError{Op: "decode geometry", Reason: "incident " + id, Err: err}
	}
	if doc.Type == "GeometryCollection" {
		return nil, model.NewProtocolError("decode geometry", "incident %q has unsupported geometry kind GeometryCollection", id)
	}

	var g geom.T
	err := geojson.Unmarshal(raw, &g)
	if err != nil {
		single, isMulti := strings.CutPrefix(doc.Type, "Multi")
		if !isMulti {
			return nil, &model.ProtocolError{Op: "decode geometry", Reason: "incident " + id, Err: err}
		}
		// A Multi* whose parts differ in dimension cannot be held by one
		// go-geom value; keep the parts side by side for Split.
		parts, perr := decodeParts(single, doc.Coordinates)
		if perr != nil {
			return nil, &model.ProtocolError{Op: "decode geometry", Reason: "incident " + id, Err: err}
		}
		return parts, nil
	}
	if g == nil {
		return nil, model.NewProtocolError("decode geometry", "incident %q has an empty geometry", id)
	}
	return g, nil
}

// decodeParts decodes every member of a Multi* coordinates array as its own
// singular geometry of kind.
func decodeParts(kind string, coords json.RawMessage) (*geom.GeometryCollection, error) {
	var members []json.RawMessage
	if err := json.Unmarshal(coords, &members); err != nil {
		return nil, err
	}
	gc := geom.NewGeometryCollection()
	for _, m := range members {
		doc, err := json.Marshal(geometryDoc{Type: kind, Coordinates: m})
		if err != nil {
			return nil, err
		}
		var g geom.T
		if err := geojson.Unmarshal(doc, &g); err != nil {
			return nil, err
		}
		if err := gc.Push(g); err != nil {
			return nil, err
		}
	}
	return gc, nil
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
