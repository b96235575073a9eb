// Package cotrip provides a client for the CoTrip traveler information API.
package cotrip

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/incident-etl/internal/model"
	"github.com/sells-group/incident-etl/internal/resilience"
)

const (
	// DefaultBaseURL is the public CoTrip data host.
	DefaultBaseURL = "https://data.cotrip.org/"

	// NextOffsetHeader carries the pagination cursor for the next page.
	NextOffsetHeader = "next-offset"

	// EndOfPages is the cursor value the API sends on the last page.
	EndOfPages = "None"

	incidentsPath = "/api/v1/incidents"
	userAgent     = "incident-etl/1.0"
)

// Client defines the CoTrip incident operations.
type Client interface {
	// ListIncidents follows the pagination cursor until the API reports the
	// last page and returns every incident seen.
	ListIncidents(ctx context.Context) ([]Incident, error)
}

// Option configures the CoTrip client.
type Option func(*httpClient)

// WithBaseURL sets a custom API base (for testing or mirrors).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRetry sets the retry policy applied to each page request.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithRateLimit paces page requests.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithMaxPages fails pagination after n pages. Zero means no ceiling.
func WithMaxPages(n int) Option {
	return func(c *httpClient) {
		c.maxPages = n
	}
}

type httpClient struct {
	token    string
	baseURL  string
	http     *http.Client
	retry    resilience.RetryConfig
	limiter  *rate.Limiter
	maxPages int
}

// NewClient creates a CoTrip client authenticating with token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: DefaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry:   resilience.DefaultRetryConfig(),
		limiter: rate.NewLimiter(5, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListIncidents implements Client. Pages are requested strictly in sequence
// because each request carries the cursor returned by the previous one.
// Without WithMaxPages a server that never ends the cursor chain keeps the
// loop running until ctx is done.
func (c *httpClient) ListIncidents(ctx context.Context) ([]Incident, error) {
	if strings.TrimSpace(c.token) == "" {
		return nil, &model.AuthError{Reason: "no CoTrip API token provided"}
	}

	endpoint, err := c.endpoint()
	if err != nil {
		return nil, &model.TransportError{Op: "build incidents url", Err: err}
	}

	log := zap.L().With(zap.String("component", "cotrip"))

	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("cotrip", "list incidents")
	}

	incidents := make([]Incident, 0)
	var cursor *string
	pages := 0
	for {
		if c.maxPages > 0 && pages >= c.maxPages {
			return nil, model.NewProtocolError("list incidents", "pagination did not end within %d pages", c.maxPages)
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &model.TransportError{Op: "rate limiter wait", Err: err}
		}

		log.Debug("fetching incidents page", zap.Int("page", pages), zap.Bool("has_cursor", cursor != nil))

		p, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*page, error) {
			return c.fetchPage(ctx, endpoint, cursor)
		})
		if err != nil {
			return nil, err
		}
		pages++

		incidents = append(incidents, p.incidents...)
		if p.next == nil {
			break
		}
		cursor = p.next
	}

	log.Info("fetched incidents", zap.Int("pages", pages), zap.Int("incidents", len(incidents)))
	return incidents, nil
}

func (c *httpClient) endpoint() (*url.URL, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("base url must be absolute: " + c.baseURL)
	}
	return base.ResolveReference(&url.URL{Path: incidentsPath}), nil
}

// redact strips the apiKey query parameter from a URL string so transport
// errors can be logged.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("apiKey") {
		q.Set("apiKey", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
