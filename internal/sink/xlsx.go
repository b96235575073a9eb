package sink

import (
	"bytes"
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/incident-etl/internal/model"
)

// XLSXHeader is the column layout of the incidents sheet.
var XLSXHeader = []string{
	"run_id", "id", "kind", "label", "status", "direction", "route", "severity",
	"response_level", "category", "start_marker", "end_marker", "start_time",
	"last_updated", "message", "lon", "lat",
}

// XLSX writes a spreadsheet report: one row per feature plus a per-kind summary.
type XLSX struct {
	path string
}

// NewXLSX creates a spreadsheet sink writing to path.
func NewXLSX(path string) *XLSX {
	return &XLSX{path: path}
}

// Name implements Sink.
func (x *XLSX) Name() string { return "xlsx" }

// Submit implements Sink.
func (x *XLSX) Submit(ctx context.Context, sub *Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Incidents")
	if err != nil {
		return eris.Wrap(err, "xlsx sink: add sheet")
	}
	addStringRow(sheet, XLSXHeader...)

	coll := sub.Collection
	if coll == nil {
		coll = &model.Collection{}
	}
	for i := range coll.Features {
		f := &coll.Features[i]
		kind, _ := f.Kind()
		md := f.Metadata
		d := md.Detail()

		row := sheet.AddRow()
		for _, v := range []string{sub.RunID, f.ID, string(kind), f.Label, md.Status, d.DirectionText(), d.RouteName, d.Severity, d.ResponseLevel, d.Category} {
			row.AddCell().SetString(v)
		}
		addOptionalFloat(row, d.StartMarker)
		addOptionalFloat(row, d.EndMarker)
		for _, v := range []string{md.StartTime, md.LastUpdated, md.TravelerInformationMessage} {
			row.AddCell().SetString(v)
		}
		if c, ok := anchor(f.Geometry); ok {
			row.AddCell().SetFloat(c.X())
			row.AddCell().SetFloat(c.Y())
		}
	}

	summary, err := file.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "xlsx sink: add summary sheet")
	}
	addStringRow(summary, "run_id", sub.RunID)
	addStringRow(summary, "created_at", sub.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
	counts := coll.CountByKind()
	for _, k := range model.Kinds {
		row := summary.AddRow()
		row.AddCell().SetString(string(k))
		row.AddCell().SetInt(counts[k])
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return eris.Wrap(err, "xlsx sink: encode workbook")
	}
	return writeAtomic(x.path, buf.Bytes())
}

func addStringRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addOptionalFloat(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetFloat(*v)
	}
}

// anchor returns the first coordinate of g, used as a representative location.
func anchor(g geom.T) (geom.Coord, bool) {
	if g == nil {
		return nil, false
	}
	flat := g.FlatCoords()
	stride := g.Stride()
	if stride < 2 || len(flat) < stride {
		return nil, false
	}
	return geom.Coord(flat[:stride]), true
}
