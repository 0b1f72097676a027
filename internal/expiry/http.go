package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// HTTPService is a Service backed by a remote HTTP endpoint: GET to
// query, POST to set. The client idiom (a single shared *http.Client,
// no connection-pool tuning beyond stdlib defaults) is grounded on the
// gisquick-server mapcache reference file's Cache type.
type HTTPService struct {
	baseURL string
	client  *http.Client
}

// NewHTTPService returns a Service that queries baseURL. A query issues
// "GET {baseURL}/is_expired?style=...&z=...&x=...&y=..."; a set issues
// "POST {baseURL}/set_expired" with the same query values plus
// "expired=true|false".
func NewHTTPService(baseURL string, timeout time.Duration) *HTTPService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func tileQuery(tile tilekey.Address) url.Values {
	x, y := tile.MetaOrigin()
	v := url.Values{}
	v.Set("style", tile.Style)
	v.Set("z", fmt.Sprint(tile.Z))
	v.Set("x", fmt.Sprint(x))
	v.Set("y", fmt.Sprint(y))
	return v
}

// IsExpired reports true exactly when the service answers 200; the
// response body is not read. Any network failure or non-200 response
// is treated as "not expired" (spec §7's open question, resolved
// conservatively: a re-render storm from a thundering "everything is
// expired" response is worse than momentarily serving a stale tile).
func (s *HTTPService) IsExpired(ctx context.Context, tile tilekey.Address) bool {
	u := s.baseURL + "/is_expired?" + tileQuery(tile).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		slog.Error("expiry: build request failed", "url", u, "err", err)
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("expiry: is_expired request failed", "url", u, "err", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// SetExpired returns false on any transport or non-2xx-response error.
func (s *HTTPService) SetExpired(ctx context.Context, tile tilekey.Address, expired bool) bool {
	v := tileQuery(tile)
	v.Set("expired", fmt.Sprint(expired))
	u := s.baseURL + "/set_expired?" + v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		slog.Error("expiry: build request failed", "url", u, "err", err)
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("expiry: set_expired request failed", "url", u, "err", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
