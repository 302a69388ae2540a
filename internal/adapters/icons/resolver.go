package icons

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/samirrijal/geofield/internal/core/ports"
)

// Resolver implements ports.IconResolver. Absolute http(s) and data URLs
// pass through; "public://path" and bare relative paths are served from
// the configured base URL.
type Resolver struct {
	base *url.URL
}

var _ ports.IconResolver = (*Resolver)(nil)

// NewResolver creates a resolver rooted at baseURL. An empty baseURL only
// accepts absolute references.
func NewResolver(baseURL string) (*Resolver, error) {
	if baseURL == "" {
		return &Resolver{}, nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("icon base url: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("icon base url %q is not absolute", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return &Resolver{base: u}, nil
}

func (r *Resolver) Resolve(_ context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", fmt.Errorf("empty icon reference")
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"), strings.HasPrefix(ref, "data:image/"):
		return ref, nil
	}

	path := strings.TrimPrefix(ref, "public://")
	if strings.Contains(path, "://") {
		return "", fmt.Errorf("unsupported icon scheme in %q", ref)
	}
	if r.base == nil {
		return "", fmt.Errorf("relative icon %q without a base url", ref)
	}
	rel, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("icon %q: %w", ref, err)
	}
	return r.base.ResolveReference(rel).String(), nil
}
