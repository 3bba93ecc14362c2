package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/memohai/chatsync/internal/handlers"
)

func TestShouldSkipJWT(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want bool
	}{
		{path: "/ping", want: true},
		{path: "/health", want: true},
		{path: "/metrics", want: true},
		{path: "/media/image/ab12/ab12cd.png", want: true},
		{path: "/media", want: false},
		{path: "/users", want: false},
		{path: "/channels/u1_u2/ws", want: false},
		{path: "/api/media/x", want: false},
	}

	for _, tc := range cases {
		got := shouldSkipJWT(tc.path)
		if got != tc.want {
			t.Fatalf("path=%q want=%v got=%v", tc.path, tc.want, got)
		}
	}
}

func TestServerRoutesAndAuth(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, "", "secret", handlers.NewPingHandler(nil, nil), nil)

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ping: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
	if rec.Code != http.StatusUnauthorized && rec.Code != http.StatusBadRequest {
		t.Fatalf("users without token: expected auth failure, got %d", rec.Code)
	}
}
