package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/raptrack/raptrack/reporter/internal/config"
)

// ErrNotFound is returned when a roster file or URL does not exist.
var ErrNotFound = errors.New("source: roster not found")

// maxErrBody bounds how much of an error response is echoed into the error.
const maxErrBody = 512

// Source yields one roster export per call. The caller closes the reader.
type Source interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
}

// New returns the Source matching src.Type.
func New(src config.Source) (Source, error) {
	switch src.Type {
	case "file", "":
		if src.Path == "" {
			return nil, fmt.Errorf("source %q: path is required for file sources", src.ID)
		}
		return &fileSource{path: src.Path}, nil
	case "http":
		if src.Endpoint == "" {
			return nil, fmt.Errorf("source %q: endpoint is required for http sources", src.ID)
		}
		return &httpSource{src: src, client: buildHTTPClient(src)}, nil
	default:
		return nil, fmt.Errorf("source: unsupported type %q", src.Type)
	}
}

type fileSource struct {
	path string
}

func (s *fileSource) Fetch(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("source: open %s: %w", s.path, err)
	}
	return f, nil
}

type httpSource struct {
	src    config.Source
	client *http.Client
}

func (s *httpSource) Fetch(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.src.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("source %q: build request: %w", s.src.ID, err)
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source %q: http get: %w", s.src.ID, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.src.Endpoint)
	default:
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return nil, fmt.Errorf("source %q: unexpected status %d: %s", s.src.ID, resp.StatusCode, body)
	}
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		header := t.auth.Header
		if header == "" {
			header = config.DefaultAPIKeyHeader
		}
		req.Header.Set(header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the source's auth and timeout.
func buildHTTPClient(src config.Source) *http.Client {
	timeout := src.Timeout
	if timeout <= 0 {
		timeout = config.DefaultFetchTimeout
	}
	return &http.Client{
		Transport: &authRoundTripper{base: http.DefaultTransport, auth: src.Auth},
		Timeout:   timeout,
	}
}
