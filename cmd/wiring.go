package main

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/incident-etl/internal/config"
	"github.com/sells-group/incident-etl/internal/etl"
	"github.com/sells-group/incident-etl/internal/model"
	"github.com/sells-group/incident-etl/internal/normalize"
	"github.com/sells-group/incident-etl/internal/resilience"
	"github.com/sells-group/incident-etl/internal/sink"
	"github.com/sells-group/incident-etl/pkg/cotrip"
)

// Exit codes distinguish the failure classes for schedulers.
const (
	exitFailure   = 1
	exitAuth      = 2
	exitTransport = 3
	exitProtocol  = 4
)

func exitCode(err error) int {
	switch {
	case model.IsAuth(err):
		return exitAuth
	case model.IsTransport(err):
		return exitTransport
	case model.IsProtocol(err):
		return exitProtocol
	default:
		return exitFailure
	}
}

func newClient(c *config.Config) cotrip.Client {
	retry := resilience.FromSettings(c.Fetch.MaxAttempts, c.Fetch.InitialBackoffMs, c.Fetch.MaxBackoffMs)
	retry.OnRetry = resilience.RetryLogger("cotrip", "fetch page")

	limit := rate.Inf
	if c.Fetch.RequestsPerSec > 0 {
		limit = rate.Limit(c.Fetch.RequestsPerSec)
	}

	return cotrip.NewClient(c.CoTrip.Token,
		cotrip.WithBaseURL(c.CoTrip.BaseURL),
		cotrip.WithTimeout(time.Duration(c.Fetch.TimeoutSecs)*time.Second),
		cotrip.WithRetry(retry),
		cotrip.WithRateLimit(limit, 1),
		cotrip.WithMaxPages(c.Fetch.MaxPages),
	)
}

func newNormalizer(c *config.Config) (*normalize.Normalizer, error) {
	profile, err := model.ParseProfile(c.CoTrip.Profile)
	if err != nil {
		return nil, err
	}
	loc, err := normalize.LoadLocation(c.CoTrip.Timezone)
	if err != nil {
		return nil, err
	}
	return normalize.New(normalize.Options{
		Profile:  profile,
		Location: loc,
		Workers:  c.Normalize.Workers,
	})
}

func allowedKinds(c *config.Config) model.KindSet {
	return model.NewKindSet(c.CoTrip.AllowPoint, c.CoTrip.AllowLineString, c.CoTrip.AllowPolygon)
}

// newRunner builds a Runner from config. sk may be nil for collect-only use.
func newRunner(c *config.Config, sk sink.Sink) (*etl.Runner, error) {
	n, err := newNormalizer(c)
	if err != nil {
		return nil, err
	}
	return etl.NewRunner(newClient(c), n, sk, etl.Options{
		Allowed: allowedKinds(c),
		Verbose: c.CoTrip.Verbose,
	}), nil
}
