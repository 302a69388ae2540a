package icons_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samirrijal/geofield/internal/adapters/icons"
	"github.com/samirrijal/geofield/internal/adapters/memory"
)

func TestValidator(t *testing.T) {
	var heads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		heads.Add(1)
		switch r.URL.Path {
		case "/pin.png":
			w.Header().Set("Content-Type", "image/png")
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	v := icons.NewValidator(time.Second, memory.NewCache(), 60)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := v.Validate(ctx, srv.URL+"/pin.png"); err != nil {
			t.Fatalf("pin.png: %v", err)
		}
	}
	if heads.Load() != 1 {
		t.Errorf("expected one HEAD for a cached icon, got %d", heads.Load())
	}

	if err := v.Validate(ctx, srv.URL+"/missing.png"); err == nil {
		t.Error("expected 404 to fail")
	}
	if err := v.Validate(ctx, srv.URL+"/missing.png"); err == nil {
		t.Error("cached failure must still fail")
	}
	if err := v.Validate(ctx, srv.URL+"/page.html"); err == nil {
		t.Error("expected non-image content type to fail")
	}
	if err := v.Validate(ctx, "ftp://example.org/pin.png"); err == nil {
		t.Error("expected non-http url to fail")
	}
	if err := v.Validate(ctx, "data:image/png;base64,AAAA"); err != nil {
		t.Errorf("data url must pass: %v", err)
	}
}

func TestValidator_TransientFailureNotCached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
	}))
	defer srv.Close()

	cache := memory.NewCache()
	v := icons.NewValidator(time.Second, cache, 3600)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := v.Validate(cancelled, srv.URL+"/pin.png"); err == nil {
		t.Fatal("expected a cancelled check to fail")
	}
	if cache.Len() != 0 {
		t.Errorf("a cancelled check must not be cached, cache holds %d", cache.Len())
	}
	if err := v.Validate(context.Background(), srv.URL+"/pin.png"); err != nil {
		t.Errorf("icon should pass once the server answers: %v", err)
	}
}

func TestResolver(t *testing.T) {
	r, err := icons.NewResolver("https://cdn.example.org/files")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		ref  string
		want string
		err  bool
	}{
		{"https://other.org/a.png", "https://other.org/a.png", false},
		{"public://icons/shop.png", "https://cdn.example.org/files/icons/shop.png", false},
		{"/icons/bar.png", "https://cdn.example.org/files/icons/bar.png", false},
		{"private://secret.png", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := r.Resolve(context.Background(), tt.ref)
		if (err != nil) != tt.err {
			t.Errorf("%q: unexpected error %v", tt.ref, err)
		}
		if got != tt.want {
			t.Errorf("%q: expected %q, got %q", tt.ref, tt.want, got)
		}
	}

	bare, _ := icons.NewResolver("")
	if _, err := bare.Resolve(context.Background(), "shop.png"); err == nil {
		t.Error("relative icon without base must fail")
	}
	if _, err := icons.NewResolver("/relative"); err == nil {
		t.Error("relative base must be rejected")
	}
}
