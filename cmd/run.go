package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/incident-etl/internal/config"
	"github.com/sells-group/incident-etl/internal/etl"
	"github.com/sells-group/incident-etl/internal/monitoring"
	"github.com/sells-group/incident-etl/internal/sink"
)

var (
	runSinks      string
	runOutput     string
	runPoint      bool
	runLineString bool
	runPolygon    bool
	runProfile    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, normalize and submit incidents once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		applyRunFlags(cmd, cfg)
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		sk, err := sink.New(cfg, cfg.Sink.Targets)
		if err != nil {
			return err
		}

		runner, err := newRunner(cfg, sk)
		if err != nil {
			return eris.Wrap(err, "build runner")
		}

		start := time.Now()
		result, err := runner.Run(ctx)
		reportRun(ctx, cfg, result, err, time.Since(start))
		if err != nil {
			zap.L().Error("run failed", zap.Int("exit_code", exitCode(err)), zap.Error(err))
			return err
		}

		// Keep stdout clean for the GeoJSON document when the file sink writes there.
		if usesStdout(cfg) {
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// reportRun raises monitoring alerts for a finished run. Alert delivery
// failures are logged and never change the run's outcome.
func reportRun(ctx context.Context, c *config.Config, result *etl.Result, runErr error, elapsed time.Duration) {
	out := monitoring.RunOutcome{Err: runErr, Elapsed: elapsed}
	if result != nil {
		out.RunID = result.RunID
		out.Features = result.Features
	}

	a := monitoring.NewAlerter(c.Monitoring)
	alerts := a.Evaluate(out)
	if len(alerts) == 0 {
		return
	}
	// The run context may already be cancelled.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	a.SendAlerts(sendCtx, alerts)
}

// applyRunFlags overlays explicitly set flags on the loaded config.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("sink") {
		c.Sink.Targets = nil
		for _, s := range strings.Split(runSinks, ",") {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				c.Sink.Targets = append(c.Sink.Targets, s)
			}
		}
	}
	if flags.Changed("output") {
		c.Sink.File.Path = runOutput
	}
	if flags.Changed("point") {
		c.CoTrip.AllowPoint = runPoint
	}
	if flags.Changed("linestring") {
		c.CoTrip.AllowLineString = runLineString
	}
	if flags.Changed("polygon") {
		c.CoTrip.AllowPolygon = runPolygon
	}
	if flags.Changed("profile") {
		c.CoTrip.Profile = runProfile
	}
}

func usesStdout(c *config.Config) bool {
	for _, t := range c.Sink.Targets {
		if t == config.SinkFile && (c.Sink.File.Path == sink.StdoutPath || c.Sink.File.Path == "") {
			return true
		}
	}
	return false
}

func init() {
	runCmd.Flags().StringVar(&runSinks, "sink", "", "comma separated sinks (file, webhook, sqlite, postgres, shapefile, xlsx, ftp)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "file sink path (- for stdout)")
	runCmd.Flags().BoolVar(&runPoint, "point", true, "allow Point geometries")
	runCmd.Flags().BoolVar(&runLineString, "linestring", true, "allow LineString geometries")
	runCmd.Flags().BoolVar(&runPolygon, "polygon", true, "allow Polygon geometries")
	runCmd.Flags().StringVar(&runProfile, "profile", "full", "metadata profile (full, minimal)")
	rootCmd.AddCommand(runCmd)
}
