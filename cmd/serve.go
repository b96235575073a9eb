package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/incident-etl/internal/model"
)

var servePort int

// collector is the part of etl.Runner the server needs.
type collector interface {
	Collect(ctx context.Context, allowed model.KindSet) (*model.Collection, int, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve normalized incidents over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		runner, err := newRunner(cfg, nil)
		if err != nil {
			return eris.Wrap(err, "build runner")
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(runner, allowedKinds(cfg)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(c collector, defaults model.KindSet) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/incidents", func(w http.ResponseWriter, req *http.Request) {
		allowed, err := allowedFromQuery(req, defaults)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		coll, incidents, err := c.Collect(req.Context(), allowed)
		if err != nil {
			zap.L().Error("collect incidents failed",
				zap.String("request_id", middleware.GetReqID(req.Context())),
				zap.Error(err),
			)
			writeJSON(w, statusFor(err), map[string]string{"error": errorClass(err)})
			return
		}

		w.Header().Set("X-Incident-Count", strconv.Itoa(incidents))
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(coll)
	})

	return r
}

// allowedFromQuery overrides defaults with point, linestring and polygon
// boolean query parameters.
func allowedFromQuery(req *http.Request, defaults model.KindSet) (model.KindSet, error) {
	q := req.URL.Query()
	flags := map[model.Kind]bool{
		model.KindPoint:      defaults.Has(model.KindPoint),
		model.KindLineString: defaults.Has(model.KindLineString),
		model.KindPolygon:    defaults.Has(model.KindPolygon),
	}
	params := map[string]model.Kind{
		"point":      model.KindPoint,
		"linestring": model.KindLineString,
		"polygon":    model.KindPolygon,
	}
	for name, kind := range params {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", name, raw)
		}
		flags[kind] = v
	}
	return model.NewKindSet(flags[model.KindPoint], flags[model.KindLineString], flags[model.KindPolygon]), nil
}

func statusFor(err error) int {
	switch {
	case model.IsTransport(err), model.IsProtocol(err):
		return http.StatusBadGateway
	case model.IsAuth(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorClass(err error) string {
	switch {
	case model.IsAuth(err):
		return "upstream credentials not configured"
	case model.IsTransport(err):
		return "upstream unavailable"
	case model.IsProtocol(err):
		return "upstream returned malformed data"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
