// Package icons resolves themer icon references to URLs and checks that
// those URLs answer before a marker is drawn with them.
package icons

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/samirrijal/geofield/internal/core/ports"
	"github.com/samirrijal/geofield/internal/pkg/metrics"
)

const (
	cacheKeyPrefix = "icon:status:"
	statusOK       = "ok"
)

// errRejected marks a verdict from the icon server. Only verdicts are cached;
// transport failures and cancellations are retried on the next render.
var errRejected = errors.New("icon rejected")

// Validator implements ports.IconValidator with an HTTP HEAD request.
// Outcomes are cached so a URL is checked once per TTL, whatever the
// number of features using it.
type Validator struct {
	client *http.Client
	cache  ports.CacheService
	ttl    int
}

var _ ports.IconValidator = (*Validator)(nil)

// NewValidator creates a validator. cache may be nil.
func NewValidator(timeout time.Duration, cache ports.CacheService, ttlSeconds int) *Validator {
	return &Validator{
		client: &http.Client{Timeout: timeout},
		cache:  cache,
		ttl:    ttlSeconds,
	}
}

// Validate returns nil when url answers a HEAD request with 2xx or 3xx and
// an image content type (or none).
func (v *Validator) Validate(ctx context.Context, url string) error {
	if strings.HasPrefix(url, "data:image/") {
		return nil
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		metrics.IconChecks.WithLabelValues("invalid").Inc()
		return fmt.Errorf("not an http url")
	}

	if v.cache != nil {
		if b, err := v.cache.Get(ctx, cacheKeyPrefix+url); err == nil {
			metrics.IconChecks.WithLabelValues("cached").Inc()
			if string(b) == statusOK {
				return nil
			}
			return errors.New(string(b))
		}
	}

	err := v.head(ctx, url)
	status := statusOK
	outcome := "reachable"
	if err != nil {
		status = err.Error()
		outcome = "unreachable"
	}
	metrics.IconChecks.WithLabelValues(outcome).Inc()
	if v.cache != nil && (err == nil || errors.Is(err, errRejected)) {
		_ = v.cache.Set(ctx, cacheKeyPrefix+url, []byte(status), v.ttl)
	}
	return err
}

func (v *Validator) head(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("head: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", errRejected, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return fmt.Errorf("%w: content type %s is not an image", errRejected, ct)
	}
	return nil
}
