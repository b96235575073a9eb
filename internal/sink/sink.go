// Package sink delivers a normalized incident collection to downstream
// targets. Each run submits exactly once per configured sink.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/incident-etl/internal/config"
	"github.com/sells-group/incident-etl/internal/model"
)

// Submission is the unit handed to a sink.
type Submission struct {
	RunID      string
	CreatedAt  time.Time
	Collection *model.Collection
}

// GeoJSON encodes the submission's collection as a FeatureCollection document.
func (s *Submission) GeoJSON() ([]byte, error) {
	coll := s.Collection
	if coll == nil {
		coll = &model.Collection{}
	}
	return json.Marshal(coll)
}

// Sink accepts one submission per run.
type Sink interface {
	Name() string
	Submit(ctx context.Context, sub *Submission) error
}

// Multi fans a submission out to several sinks concurrently. A failing sink
// does not roll back the others; all errors are joined.
type Multi struct {
	sinks []Sink
}

// NewMulti wraps sinks in a Multi.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Name implements Sink.
func (m *Multi) Name() string {
	if len(m.sinks) == 1 {
		return m.sinks[0].Name()
	}
	return "multi"
}

// Submit implements Sink.
func (m *Multi) Submit(ctx context.Context, sub *Submission) error {
	errs := make([]error, len(m.sinks))

	var g errgroup.Group
	for i, s := range m.sinks {
		g.Go(func() error {
			start := time.Now()
			if err := s.Submit(ctx, sub); err != nil {
				errs[i] = err
				return nil
			}
			zap.L().Info("submitted",
				zap.String("component", "sink"),
				zap.String("sink", s.Name()),
				zap.String("run_id", sub.RunID),
				zap.Int("features", sub.Collection.Len()),
				zap.Duration("elapsed", time.Since(start)),
			)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// New builds the named sinks from configuration. Unknown names are an error.
func New(cfg *config.Config, names []string) (*Multi, error) {
	if len(names) == 0 {
		return nil, eris.New("sink: no sinks configured")
	}

	sinks := make([]Sink, 0, len(names))
	for _, name := range names {
		var s Sink
		switch name {
		case config.SinkFile:
			s = NewFile(cfg.Sink.File.Path)
		case config.SinkWebhook:
			s = NewWebhook(cfg.Sink.Webhook.URL, time.Duration(cfg.Sink.Webhook.TimeoutSecs)*time.Second)
		case config.SinkSQLite:
			s = NewSQLite(cfg.Sink.SQLite.Path)
		case config.SinkPostgres:
			s = NewPostgres(cfg.Sink.Postgres.DatabaseURL, cfg.Sink.Postgres.Table)
		case config.SinkShapefile:
			s = NewShapefile(cfg.Sink.Shapefile.Dir)
		case config.SinkXLSX:
			s = NewXLSX(cfg.Sink.XLSX.Path)
		case config.SinkFTP:
			f, err := NewFTP(cfg.Sink.FTP.URL, cfg.Sink.FTP.User, cfg.Sink.FTP.Password)
			if err != nil {
				return nil, err
			}
			s = f
		default:
			return nil, eris.Errorf("sink: unknown sink %q", name)
		}
		sinks = append(sinks, s)
	}
	return NewMulti(sinks...), nil
}
