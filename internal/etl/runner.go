// Package etl runs one fetch, normalize and submit cycle.
package etl

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/incident-etl/internal/model"
	"github.com/sells-group/incident-etl/internal/normalize"
	"github.com/sells-group/incident-etl/internal/sink"
	"github.com/sells-group/incident-etl/pkg/cotrip"
)

// Options configures a Runner.
type Options struct {
	Allowed model.KindSet
	Verbose bool
	Now     func() time.Time
}

// Result summarizes one run.
type Result struct {
	RunID      string             `json:"run_id"`
	Incidents  int                `json:"incidents"`
	Features   int                `json:"features"`
	ByKind     map[model.Kind]int `json:"by_kind"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Runner wires the incidents client, the normalizer and a sink. It is
// all-or-nothing: any failure before submission means nothing is submitted.
type Runner struct {
	client     cotrip.Client
	normalizer *normalize.Normalizer
	sink       sink.Sink
	allowed    model.KindSet
	verbose    bool
	now        func() time.Time
}

// NewRunner creates a Runner. sk may be nil when only Collect is used.
func NewRunner(client cotrip.Client, n *normalize.Normalizer, sk sink.Sink, opts Options) *Runner {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		client:     client,
		normalizer: n,
		sink:       sk,
		allowed:    opts.Allowed,
		verbose:    opts.Verbose,
		now:        now,
	}
}

// Collect fetches and normalizes without submitting. allowed overrides the
// runner's allowlist when non-nil. Fetch and normalize errors are returned
// unchanged so callers can classify them with model.IsAuth and friends.
func (r *Runner) Collect(ctx context.Context, allowed model.KindSet) (*model.Collection, int, error) {
	if allowed == nil {
		allowed = r.allowed
	}

	incidents, err := r.client.ListIncidents(ctx)
	if err != nil {
		return nil, 0, err
	}

	coll, err := r.normalizer.Normalize(ctx, incidents, allowed)
	if err != nil {
		return nil, len(incidents), err
	}
	return coll, len(incidents), nil
}

// Run performs one full cycle and submits the collection exactly once.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if r.sink == nil {
		return nil, eris.New("etl: no sink configured")
	}

	res := &Result{
		RunID:     uuid.NewString(),
		StartedAt: r.now().UTC(),
	}
	log := zap.L().With(zap.String("component", "etl"), zap.String("run_id", res.RunID))
	log.Info("run started", zap.Strings("allowed", r.allowed.Names()))

	coll, incidents, err := r.Collect(ctx, r.allowed)
	res.Incidents = incidents
	if err != nil {
		log.Error("run aborted before submission", zap.Int("incidents", incidents), zap.Error(err))
		return nil, err
	}

	if r.verbose {
		for i := range coll.Features {
			logFeature(log, &coll.Features[i])
		}
	}

	sub := &sink.Submission{
		RunID:      res.RunID,
		CreatedAt:  res.StartedAt,
		Collection: coll,
	}
	if err := r.sink.Submit(ctx, sub); err != nil {
		log.Error("submission failed", zap.String("sink", r.sink.Name()), zap.Error(err))
		return nil, err
	}

	res.Features = coll.Len()
	res.ByKind = coll.CountByKind()
	res.FinishedAt = r.now().UTC()
	log.Info("run complete",
		zap.Int("incidents", res.Incidents),
		zap.Int("features", res.Features),
		zap.String("sink", r.sink.Name()),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

func logFeature(log *zap.Logger, f *model.Feature) {
	kind, _ := f.Kind()
	log.Info("feature",
		zap.String("id", f.ID),
		zap.String("kind", string(kind)),
		zap.String("label", f.Label),
		zap.Any("metadata", f.Metadata.Map()),
	)
}
