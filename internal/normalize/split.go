package normalize

import (
	"fmt"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/incident-etl/internal/model"
)

// Split breaks a multi-part feature into one feature per part, in source
// order, with "-<index>" appended to the id. Each part gets its own copy of
// the coordinates and metadata. Singular kinds are returned unchanged.
func Split(f model.Feature) ([]model.Feature, error) {
	var (
		n    int
		part func(i int) geom.T
	)

	switch g := f.Geometry.(type) {
	case *geom.Point, *geom.LineString, *geom.Polygon:
		return []model.Feature{f}, nil
	case *geom.MultiPoint:
		n = g.NumPoints()
		part = func(i int) geom.T { return g.Point(i).Clone() }
	case *geom.MultiLineString:
		n = g.NumLineStrings()
		part = func(i int) geom.T { return g.LineString(i).Clone() }
	case *geom.MultiPolygon:
		n = g.NumPolygons()
		part = func(i int) geom.T { return g.Polygon(i).Clone() }
	case *geom.GeometryCollection:
		// Parts of a Multi* whose members differ in dimension.
		if err := checkParts(f.ID, g); err != nil {
			return nil, err
		}
		n = g.NumGeoms()
		part = func(i int) geom.T { return cloneSingle(g.Geom(i)) }
	default:
		return nil, model.NewProtocolError("split geometry", "incident %q has unsupported geometry kind %s", f.ID, geometryName(f.Geometry))
	}

	if n == 0 {
		return nil, model.NewProtocolError("split geometry", "incident %q has a %s with no parts", f.ID, geometryName(f.Geometry))
	}

	out := make([]model.Feature, 0, n)
	for i := range n {
		p := f
		p.ID = fmt.Sprintf("%s-%d", f.ID, i)
		p.Metadata = f.Metadata.Clone()
		p.Geometry = part(i)
		out = append(out, p)
	}
	return out, nil
}

// checkParts requires every member to be the same singular kind.
func checkParts(id string, gc *geom.GeometryCollection) error {
	var first model.Kind
	for i := range gc.NumGeoms() {
		k, ok := model.KindOf(gc.Geom(i))
		if !ok {
			return model.NewProtocolError("split geometry", "incident %q has a nested %s part", id, geometryName(gc.Geom(i)))
		}
		if i == 0 {
			first = k
		} else if k != first {
			return model.NewProtocolError("split geometry", "incident %q mixes %s and %s parts", id, first, k)
		}
	}
	return nil
}

func cloneSingle(g geom.T) geom.T {
	switch g := g.(type) {
	case *geom.Point:
		return g.Clone()
	case *geom.LineString:
		return g.Clone()
	case *geom.Polygon:
		return g.Clone()
	default:
		return g
	}
}

func geometryName(g geom.T) string {
	switch g.(type) {
	case *geom.MultiPoint:
		return "MultiPoint"
	case *geom.MultiLineString:
		return "MultiLineString"
	case *geom.MultiPolygon:
		return "MultiPolygon"
	case *geom.GeometryCollection:
		return "GeometryCollection"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", g)
	}
}
