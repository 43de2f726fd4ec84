package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raptrack/raptrack/reporter/internal/config"
)

const rosterCSV = "title\nheader\nDoe,GKANA,1,2,3,4,5,6,7,8,9,10,11,12\n"

func readAll(t *testing.T, s Source) string {
	t.Helper()
	rc, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestFileSource_Fetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.csv")
	if err := os.WriteFile(path, []byte(rosterCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := New(config.Source{ID: "r", Type: "file", Path: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := readAll(t, s); got != rosterCSV {
		t.Errorf("body: got %q", got)
	}
}

func TestFileSource_NotFound(t *testing.T) {
	s, err := New(config.Source{ID: "r", Type: "file", Path: filepath.Join(t.TempDir(), "missing.csv")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := s.Fetch(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestHTTPSource_Auth(t *testing.T) {
	tests := []struct {
		name  string
		auth  config.AuthConfig
		env   map[string]string
		check func(r *http.Request) bool
	}{
		{
			name:  "apikey default header",
			auth:  config.AuthConfig{Mode: "apikey", KeyEnv: "SRC_KEY"},
			env:   map[string]string{"SRC_KEY": "k1"},
			check: func(r *http.Request) bool { return r.Header.Get("x-api-key") == "k1" },
		},
		{
			name:  "apikey custom header",
			auth:  config.AuthConfig{Mode: "apikey", Header: "X-Token", KeyEnv: "SRC_KEY"},
			env:   map[string]string{"SRC_KEY": "k2"},
			check: func(r *http.Request) bool { return r.Header.Get("X-Token") == "k2" },
		},
		{
			name:  "bearer",
			auth:  config.AuthConfig{Mode: "bearer", TokenEnv: "SRC_TOKEN"},
			env:   map[string]string{"SRC_TOKEN": "tok"},
			check: func(r *http.Request) bool { return r.Header.Get("Authorization") == "Bearer tok" },
		},
		{
			name: "basic",
			auth: config.AuthConfig{Mode: "basic", Username: "ops", PasswordEnv: "SRC_PASS"},
			env:  map[string]string{"SRC_PASS": "pw"},
			check: func(r *http.Request) bool {
				u, p, ok := r.BasicAuth()
				return ok && u == "ops" && p == "pw"
			},
		},
		{
			name:  "none",
			auth:  config.AuthConfig{Mode: "none"},
			check: func(r *http.Request) bool { return r.Header.Get("Authorization") == "" },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !tc.check(r) {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				_, _ = io.WriteString(w, rosterCSV)
			}))
			defer srv.Close()

			s, err := New(config.Source{ID: "r", Type: "http", Endpoint: srv.URL, Auth: tc.auth})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := readAll(t, s); got != rosterCSV {
				t.Errorf("body: got %q", got)
			}
		})
	}
}

func TestHTTPSource_Status(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		notFound bool
	}{
		{"not found", http.StatusNotFound, true},
		{"server error", http.StatusInternalServerError, false},
		{"forbidden", http.StatusForbidden, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer srv.Close()

			s, _ := New(config.Source{ID: "r", Type: "http", Endpoint: srv.URL})
			_, err := s.Fetch(context.Background())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if errors.Is(err, ErrNotFound) != tc.notFound {
				t.Errorf("ErrNotFound match = %v, want %v (err: %v)", !tc.notFound, tc.notFound, err)
			}
			if !tc.notFound && !strings.Contains(err.Error(), "nope") {
				t.Errorf("error should echo body: %v", err)
			}
		})
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []config.Source{
		{ID: "a", Type: "file"},
		{ID: "b", Type: "http"},
		{ID: "c", Type: "ftp", Path: "x"},
	}
	for _, src := range tests {
		if _, err := New(src); err == nil {
			t.Errorf("New(%+v): expected error", src)
		}
	}
}
