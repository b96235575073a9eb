package sink

import (
	"context"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/incident-etl/internal/model"
)

// wgs84PRJ is the ESRI projection for EPSG:4326.
const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// DBF field names are limited to 10 bytes.
var shapeFields = []shp.Field{
	shp.StringField("ID", 80),
	shp.StringField("LABEL", 80),
	shp.StringField("STATUS", 40),
	shp.StringField("SEVERITY", 40),
	shp.StringField("ROUTE", 80),
	shp.StringField("START", 32),
	shp.StringField("UPDATED", 32),
	shp.StringField("REMARKS", 254),
}

var shapeTypes = map[model.Kind]shp.ShapeType{
	model.KindPoint:      shp.POINT,
	model.KindLineString: shp.POLYLINE,
	model.KindPolygon:    shp.POLYGON,
}

// Shapefile writes one shapefile per geometry kind into a directory. Every
// run rewrites all three files, so a kind with no features yields an empty
// layer rather than stale data.
type Shapefile struct {
	dir string
}

// NewShapefile creates a shapefile sink writing into dir.
func NewShapefile(dir string) *Shapefile {
	return &Shapefile{dir: dir}
}

// Name implements Sink.
func (s *Shapefile) Name() string { return "shapefile" }

// LayerPath returns the .shp path written for kind.
func (s *Shapefile) LayerPath(kind model.Kind) string {
	return filepath.Join(s.dir, "incidents_"+string(kind)+".shp")
}

// Submit implements Sink.
func (s *Shapefile) Submit(ctx context.Context, sub *Submission) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "shapefile sink: create dir %s", s.dir)
	}

	byKind := make(map[model.Kind][]*model.Feature, len(model.Kinds))
	if sub.Collection != nil {
		for i := range sub.Collection.Features {
			f := &sub.Collection.Features[i]
			if k, ok := f.Kind(); ok {
				byKind[k] = append(byKind[k], f)
			}
		}
	}

	for _, kind := range model.Kinds {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.writeLayer(kind, byKind[kind]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Shapefile) writeLayer(kind model.Kind, features []*model.Feature) error {
	path := s.LayerPath(kind)
	w, err := shp.Create(path, shapeTypes[kind])
	if err != nil {
		return eris.Wrapf(err, "shapefile sink: create %s", path)
	}
	closed := false
	defer func() {
		if !closed {
			w.Close()
		}
	}()

	if err := w.SetFields(shapeFields); err != nil {
		return eris.Wrapf(err, "shapefile sink: set fields on %s", path)
	}

	for _, f := range features {
		shape, err := toShape(f.Geometry)
		if err != nil {
			return eris.Wrapf(err, "shapefile sink: convert %s", f.ID)
		}
		row := int(w.Write(shape))

		md := f.Metadata
		d := md.Detail()
		values := []string{f.ID, f.Label, md.Status, d.Severity, d.RouteName, md.StartTime, md.LastUpdated, f.Remarks}
		for col, v := range values {
			if err := w.WriteAttribute(row, col, truncate(v, int(shapeFields[col].Size))); err != nil {
				return eris.Wrapf(err, "shapefile sink: write attribute %d of %s", col, f.ID)
			}
		}
	}

	w.Close()
	closed = true

	prj := path[:len(path)-len(filepath.Ext(path))] + ".prj"
	if err := os.WriteFile(prj, []byte(wgs84PRJ), 0o644); err != nil {
		return eris.Wrapf(err, "shapefile sink: write %s", prj)
	}
	return nil
}

func toShape(g geom.T) (shp.Shape, error) {
	switch t := g.(type) {
	case *geom.Point:
		return &shp.Point{X: t.X(), Y: t.Y()}, nil
	case *geom.LineString:
		return shp.NewPolyLine([][]shp.Point{shapePoints(t.Coords(), false, false)}), nil
	case *geom.Polygon:
		parts := make([][]shp.Point, 0, t.NumLinearRings())
		for i := range t.NumLinearRings() {
			// Shapefile outer rings run clockwise, holes counter-clockwise.
			parts = append(parts, shapePoints(t.LinearRing(i).Coords(), true, i == 0))
		}
		pl := shp.NewPolyLine(parts)
		poly := shp.Polygon(*pl)
		return &poly, nil
	default:
		return nil, eris.Errorf("unsupported geometry %T", g)
	}
}

func shapePoints(coords []geom.Coord, ring, clockwise bool) []shp.Point {
	pts := make([]shp.Point, len(coords))
	for i, c := range coords {
		pts[i] = shp.Point{X: c.X(), Y: c.Y()}
	}
	if ring && (signedArea(pts) < 0) != clockwise {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	return pts
}

// signedArea is negative for clockwise rings.
func signedArea(pts []shp.Point) float64 {
	var a float64
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return a / 2
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
