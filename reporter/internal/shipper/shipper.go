package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/raptrack/raptrack/pkg/types"
	"github.com/raptrack/raptrack/reporter/internal/config"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	maxErrBody        = 512
)

// ErrPermanent wraps a rejection that retrying cannot fix.
var ErrPermanent = errors.New("shipper: permanent error")

// Shipper delivers reports to a single server endpoint.
type Shipper struct {
	cfg    config.ShipConfig
	client *http.Client
	sleep  sleepFunc // injectable for tests
}

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

// New creates a Shipper for cfg.
func New(cfg config.ShipConfig) *Shipper {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultShipTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = config.DefaultShipAttempts
	}
	if cfg.Header == "" {
		cfg.Header = config.DefaultAPIKeyHeader
	}
	return &Shipper{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		sleep:  sleepCtx,
	}
}

// Ship sends r, retrying transient failures. It returns the server's reply
// from the first successful attempt.
func (s *Shipper) Ship(ctx context.Context, r *types.Report) (*types.IngestResponse, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("shipper: encode report: %w", err)
	}

	bo := newBackoff()
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		resp, err := s.send(ctx, body)
		if err == nil {
			slog.Debug("shipper: report delivered",
				"roster", r.RosterID, "run_id", resp.RunID, "attempt", attempt)
			return resp, nil
		}
		if errors.Is(err, ErrPermanent) {
			slog.Error("shipper: permanent send error, discarding report",
				"roster", r.RosterID, "err", err)
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if attempt == s.cfg.MaxAttempts {
			break
		}

		wait := bo.next()
		slog.Warn("shipper: send failed, will retry",
			"endpoint", s.cfg.Endpoint,
			"attempt", attempt,
			"err", err,
			"retry_in", wait)
		if err := s.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("shipper: giving up after %d attempts: %w", s.cfg.MaxAttempts, lastErr)
}

// send performs one POST attempt.
func (s *Shipper) send(ctx context.Context, body []byte) (*types.IngestResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := s.cfg.APIKey(); key != "" {
		req.Header.Set(s.cfg.Header, key)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		err := fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
		if isPermanentStatus(resp.StatusCode) {
			return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		return nil, err
	}

	var out types.IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !out.OK {
		return nil, fmt.Errorf("%w: server rejected report: %s", ErrPermanent, out.Message)
	}
	return &out, nil
}

// isPermanentStatus reports whether an HTTP status means the report itself
// was rejected. 429 is throttling and is retried.
func isPermanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}
