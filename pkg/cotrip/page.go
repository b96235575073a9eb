package cotrip

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/incident-etl/internal/model"
	"github.com/sells-group/incident-etl/internal/resilience"
)

// page is one decoded response of the incidents endpoint.
type page struct {
	incidents []Incident
	next      *string
}

type pageBody struct {
	Features *[]Incident `json:"features"`
}

func (c *httpClient) fetchPage(ctx context.Context, endpoint *url.URL, cursor *string) (*page, error) {
	u := *endpoint
	q := u.Query()
	q.Set("apiKey", c.token)
	if cursor != nil {
		q.Set("offset", *cursor)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &model.TransportError{Op: "create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redact(ue.URL)
		}
		return nil, &model.TransportError{Op: "get incidents", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		var cause error = eris.Errorf("cotrip: %s", http.StatusText(resp.StatusCode))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			cause = resilience.NewTransientError(cause, resp.StatusCode)
		}
		return nil, &model.TransportError{Op: "get incidents", StatusCode: resp.StatusCode, Err: cause}
	}

	r, err := bodyReader(resp)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &model.TransportError{Op: "read incidents page", Err: err}
	}

	var body pageBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, &model.ProtocolError{Op: "decode incidents page", Err: err}
	}
	if body.Features == nil {
		return nil, model.NewProtocolError("decode incidents page", "response has no features array")
	}

	return &page{incidents: *body.Features, next: nextCursor(resp.Header)}, nil
}

// nextCursor returns the cursor for the following page, or nil when the
// header is absent, empty, or the end-of-pages sentinel.
func nextCursor(h http.Header) *string {
	vals := h.Values(NextOffsetHeader)
	if len(vals) == 0 {
		return nil
	}
	v := strings.TrimSpace(vals[0])
	if v == "" || v == EndOfPages {
		return nil
	}
	return &v
}

// bodyReader decodes the response body into UTF-8 when Content-Type declares
// another charset.
func bodyReader(resp *http.Response) (io.Reader, error) {
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return resp.Body, nil
	}
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return resp.Body, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, &model.ProtocolError{Op: "decode incidents page", Reason: "unsupported charset " + charset, Err: err}
	}
	return enc.NewDecoder().Reader(resp.Body), nil
}
