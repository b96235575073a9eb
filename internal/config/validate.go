package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Sink names accepted in sink.targets.
const (
	SinkFile      = "file"
	SinkWebhook   = "webhook"
	SinkSQLite    = "sqlite"
	SinkPostgres  = "postgres"
	SinkShapefile = "shapefile"
	SinkXLSX      = "xlsx"
	SinkFTP       = "ftp"
)

// KnownSinks lists every sink name in a stable order.
var KnownSinks = []string{SinkFile, SinkWebhook, SinkSQLite, SinkPostgres, SinkShapefile, SinkXLSX, SinkFTP}

// Validate checks that the settings a command needs are present and sane.
// mode is one of "run", "fetch", "serve" or "migrate". The API token is not
// checked here; a missing token surfaces as an auth error when fetching.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
		errs = append(errs, c.validateFetch()...)
		errs = append(errs, c.validateNormalize()...)
		errs = append(errs, c.ValidateSinks(c.Sink.Targets)...)
		if c.Monitoring.MinFeatures < 0 {
			errs = append(errs, "monitoring.min_features must be >= 0")
		}
	case "fetch":
		errs = append(errs, c.validateFetch()...)
	case "serve":
		errs = append(errs, c.validateFetch()...)
		errs = append(errs, c.validateNormalize()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
	case "migrate":
		if c.Sink.Postgres.DatabaseURL == "" {
			errs = append(errs, "sink.postgres.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateFetch() []string {
	var errs []string
	if c.CoTrip.BaseURL == "" {
		errs = append(errs, "cotrip.base_url is required")
	}
	if c.Fetch.TimeoutSecs <= 0 {
		errs = append(errs, "fetch.timeout_secs must be > 0")
	}
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, "fetch.max_attempts must be >= 1")
	}
	if c.Fetch.MaxPages < 0 {
		errs = append(errs, "fetch.max_pages must be >= 0")
	}
	if c.Fetch.RequestsPerSec < 0 {
		errs = append(errs, "fetch.requests_per_sec must be >= 0")
	}
	return errs
}

func (c *Config) validateNormalize() []string {
	var errs []string
	switch c.CoTrip.Profile {
	case "", "full", "minimal":
	default:
		errs = append(errs, fmt.Sprintf("cotrip.profile %q must be full or minimal", c.CoTrip.Profile))
	}
	if c.Normalize.Workers < 1 || c.Normalize.Workers > 64 {
		errs = append(errs, "normalize.workers must be between 1 and 64")
	}
	return errs
}

// ValidateSinks checks that every named sink is known and configured.
func (c *Config) ValidateSinks(names []string) []string {
	var errs []string
	if len(names) == 0 {
		errs = append(errs, "sink.targets must name at least one sink")
	}
	for _, name := range names {
		switch name {
		case SinkFile:
			if c.Sink.File.Path == "" {
				errs = append(errs, "sink.file.path is required")
			}
		case SinkWebhook:
			if c.Sink.Webhook.URL == "" {
				errs = append(errs, "sink.webhook.url is required")
			}
		case SinkSQLite:
			if c.Sink.SQLite.Path == "" {
				errs = append(errs, "sink.sqlite.path is required")
			}
		case SinkPostgres:
			if c.Sink.Postgres.DatabaseURL == "" {
				errs = append(errs, "sink.postgres.database_url is required")
			}
		case SinkShapefile:
			if c.Sink.Shapefile.Dir == "" {
				errs = append(errs, "sink.shapefile.dir is required")
			}
		case SinkXLSX:
			if c.Sink.XLSX.Path == "" {
				errs = append(errs, "sink.xlsx.path is required")
			}
		case SinkFTP:
			if c.Sink.FTP.URL == "" {
				errs = append(errs, "sink.ftp.url is required")
			}
		default:
			errs = append(errs, fmt.Sprintf("unknown sink %q (known: %s)", name, strings.Join(KnownSinks, ", ")))
		}
	}
	return errs
}
