package http

import (
	"errors"
	"log/slog"
	"testing"
)

func TestETagMatches(t *testing.T) {
	const etag = `W/"abc"`
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{`W/"abc"`, true},
		{`"abc"`, true},
		{`"x", W/"abc"`, true},
		{`"x"`, false},
		{"*", true},
	}
	for _, tt := range tests {
		if got := etagMatches(tt.header, etag); got != tt.want {
			t.Errorf("etagMatches(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestAccessLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		err    error
		want   slog.Level
	}{
		{"/v1/maps/render", 200, nil, slog.LevelInfo},
		{"/v1/health", 200, nil, slog.LevelDebug},
		{"/metrics", 200, nil, slog.LevelDebug},
		{"/v1/ready", 503, nil, slog.LevelError},
		{"/v1/themers/x", 404, nil, slog.LevelWarn},
		{"/v1/themers", 200, errors.New("boom"), slog.LevelError},
	}
	for _, tt := range tests {
		if got := accessLevel(tt.path, tt.status, tt.err); got != tt.want {
			t.Errorf("accessLevel(%s, %d) = %v, want %v", tt.path, tt.status, got, tt.want)
		}
	}
}
