// Package normalize turns raw CoTrip incidents into single-geometry GeoJSON
// features: Map, then Split multi-part geometries, then Filter by kind.
package normalize

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/incident-etl/internal/model"
	"github.com/sells-group/incident-etl/pkg/cotrip"
)

// Options configures a Normalizer. Zero values select the defaults.
type Options struct {
	Profile  model.Profile
	Location *time.Location
	Now      func() time.Time
	Workers  int
}

// Normalizer maps, splits and filters incidents. It holds no state between
// calls and is safe for concurrent use.
type Normalizer struct {
	profile model.Profile
	loc     *time.Location
	now     func() time.Time
	workers int
}

// New creates a Normalizer. A nil Location means America/Denver.
func New(opts Options) (*Normalizer, error) {
	n := &Normalizer{
		profile: opts.Profile,
		loc:     opts.Location,
		now:     opts.Now,
		workers: opts.Workers,
	}
	if n.profile == "" {
		n.profile = model.ProfileFull
	}
	if n.loc == nil {
		loc, err := LoadLocation(DefaultTimezone)
		if err != nil {
			return nil, err
		}
		n.loc = loc
	}
	if n.now == nil {
		n.now = time.Now
	}
	if n.workers <= 0 {
		n.workers = 4
	}
	return n, nil
}

// Normalize maps every incident to a feature, splits multi-part geometries
// into one feature per part and keeps only features whose kind is allowed.
// Any ProtocolError aborts the whole call.
func (n *Normalizer) Normalize(ctx context.Context, incidents []cotrip.Incident, allowed model.KindSet) (*model.Collection, error) {
	parts := make([][]model.Feature, len(incidents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.workers)
	for i := range incidents {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := n.Map(&incidents[i])
			if err != nil {
				return err
			}
			split, err := Split(f)
			if err != nil {
				return err
			}
			parts[i] = split
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, p := range parts {
		total += len(p)
	}
	features := make([]model.Feature, 0, total)
	for _, p := range parts {
		features = append(features, p...)
	}

	kept := Filter(features, allowed)
	zap.L().Debug("normalized incidents",
		zap.String("component", "normalize"),
		zap.Int("incidents", len(incidents)),
		zap.Int("split_features", total),
		zap.Int("kept", len(kept)),
		zap.Strings("allowed", allowed.Names()),
	)
	return &model.Collection{Features: kept}, nil
}

// Filter returns the features whose geometry kind is in allowed. An empty
// set yields an empty, non-nil slice.
func Filter(features []model.Feature, allowed model.KindSet) []model.Feature {
	out := make([]model.Feature, 0, len(features))
	for _, f := range features {
		if k, ok := f.Kind(); ok && allowed.Has(k) {
			out = append(out, f)
		}
	}
	return out
}
