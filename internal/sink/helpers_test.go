package sink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/incident-etl/internal/model"
)

func ptr(v float64) *float64 { return &v }

func sampleSubmission() *Submission {
	md := model.Metadata{
		IncidentType:               "Crash",
		Status:                     "Active",
		StartTime:                  "2024-07-04 12:30 MDT",
		LastUpdated:                "2024-07-04 12:45 MDT",
		TravelerInformationMessage: "Left lane closed",
		Details: &model.Details{
			Direction:   json.RawMessage(`2`),
			RouteName:   "I-70",
			Severity:    "major",
			StartMarker: ptr(210.5),
		},
	}
	return &Submission{
		RunID:     "5f0c6c9e-7c43-4a8f-9a3a-3b7c0f0e2d11",
		CreatedAt: time.Date(2024, 7, 4, 18, 50, 0, 0, time.UTC),
		Collection: &model.Collection{Features: []model.Feature{
			{ID: "A1", Label: "Crash", Remarks: "Left lane closed", Metadata: md,
				Geometry: geom.NewPointFlat(geom.XY, []float64{-105.1, 39.7})},
			{ID: "B2-0", Label: "Construction", Remarks: "Shoulder work", Metadata: md,
				Geometry: geom.NewLineStringFlat(geom.XY, []float64{-105, 39, -104.5, 39.5})},
			{ID: "C3", Label: "Closure", Remarks: "Area closed", Metadata: md,
				Geometry: geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, []int{8})},
		}},
	}
}

// fakeSink records submissions and optionally fails.
type fakeSink struct {
	name string
	err  error

	mu    sync.Mutex
	calls []*Submission
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Submit(_ context.Context, sub *Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sub)
	return f.err
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var errBoom = errors.New("boom")
