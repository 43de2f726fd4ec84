package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// Reporter-only file; server section absent.
	p := writeConfig(t, `reporter:
  workers: 2
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", s.HTTPPort, DefaultHTTPPort)
	}
	if s.Storage.Backend != DefaultStorageBackend || s.Storage.Path != DefaultStoragePath {
		t.Errorf("storage: got %+v", s.Storage)
	}
	if s.BroadcastInterval != DefaultBroadcastInterval {
		t.Errorf("broadcast_interval: got %v", s.BroadcastInterval)
	}
	if s.Report.TTL != 0 {
		t.Errorf("report.ttl: got %v, want 0", s.Report.TTL)
	}
	if s.Schedule.Enabled() {
		t.Error("schedule should be disabled by default")
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9091
  log_level: debug
  auth:
    mode: apikey
    key_env: MY_KEY
    header: x-rap-key
  report:
    ttl: 720h
  storage:
    backend: sqlite
    path: /var/lib/raptrack/history.db
    retention: 2160h
  schedule:
    cron: "0 6 1 * *"
    timezone: America/New_York
    rosters:
      - id: 22-ars
        path: /data/22ars.csv
  alerts:
    rules:
      - name: regressions
        condition: "regression_count > 0"
        severity: critical
    webhooks:
      - type: slack
        url_env: SLACK_URL
  broadcast_interval: 10s
thresholds:
  PBE: {one_month: 2, three_month: 4}
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != 9091 {
		t.Errorf("http_port: got %d, want 9091", s.HTTPPort)
	}
	if s.Auth.EffectiveHeader() != "x-rap-key" {
		t.Errorf("header: got %q, want x-rap-key", s.Auth.EffectiveHeader())
	}
	if s.Report.TTL != 720*time.Hour {
		t.Errorf("report.ttl: got %v", s.Report.TTL)
	}
	if s.Storage.Retention != 2160*time.Hour {
		t.Errorf("storage.retention: got %v", s.Storage.Retention)
	}
	if !s.Schedule.Enabled() || len(s.Schedule.Rosters) != 1 || s.Schedule.Rosters[0].ID != "22-ars" {
		t.Errorf("schedule: got %+v", s.Schedule)
	}
	if len(s.Alerts.Rules) != 1 || len(s.Alerts.Webhooks) != 1 {
		t.Errorf("alerts: got %+v", s.Alerts)
	}
	if s.BroadcastInterval != 10*time.Second {
		t.Errorf("broadcast_interval: got %v", s.BroadcastInterval)
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	if e, _ := reg.Lookup("PBE"); e.OneMonth != 2 || e.ThreeMonth != 4 {
		t.Errorf("PBE override: got %+v", e)
	}
}

func TestLoad_DefaultHeader(t *testing.T) {
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: K
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h := cfg.Server.Auth.EffectiveHeader(); h != "x-api-key" {
		t.Errorf("EffectiveHeader: got %q, want x-api-key", h)
	}
}

func TestLoad_KeyEnvResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TEST_SERVER_KEY
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "supersecret" {
		t.Errorf("Key(): got %q, want supersecret", k)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown auth mode", "server:\n  auth:\n    mode: oauth2\n"},
		{"port out of range", "server:\n  http_port: 70000\n"},
		{"negative ttl", "server:\n  report:\n    ttl: -1s\n"},
		{"negative retention", "server:\n  storage:\n    retention: -1h\n"},
		{"unknown backend", "server:\n  storage:\n    backend: redis\n"},
		{"sqlite without path", "server:\n  storage:\n    path: \"\"\n"},
		{"bad cron", "server:\n  schedule:\n    cron: \"every day\"\n    rosters: [{id: a, path: b}]\n"},
		{"cron without rosters", "server:\n  schedule:\n    cron: \"@daily\"\n"},
		{"bad timezone", "server:\n  schedule:\n    cron: \"@daily\"\n    timezone: Mars/Olympus\n    rosters: [{id: a, path: b}]\n"},
		{"roster without path", "server:\n  schedule:\n    cron: \"@daily\"\n    rosters: [{id: a}]\n"},
		{"rule without condition", "server:\n  alerts:\n    rules: [{name: x}]\n"},
		{"unknown webhook", "server:\n  alerts:\n    webhooks: [{type: pagerduty}]\n"},
		{"negative threshold", "thresholds:\n  KAN: {one_month: 1, three_month: -3}\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestWebhookConfig_URL(t *testing.T) {
	t.Setenv("HOOK_URL", "https://hooks.example.com/x")
	if got := (WebhookConfig{URLEnv: "HOOK_URL"}).URL(); got != "https://hooks.example.com/x" {
		t.Errorf("URL(): got %q", got)
	}
	if got := (WebhookConfig{}).URL(); got != "" {
		t.Errorf("URL() without env: got %q", got)
	}
}

// startWatch runs watch on p in the background and returns the reload
// channel. The watcher stops when the test ends.
func startWatch(t *testing.T, p string, debounce time.Duration) <-chan *Config {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan *Config, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- watch(ctx, p, debounce, func(c *Config) { reloaded <- c })
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errc:
			if err != nil {
				t.Errorf("watch returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("watch did not return after cancel")
		}
	})
	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	return reloaded
}

func rewrite(t *testing.T, p, content string) {
	t.Helper()
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestWatch_ReloadsOnThresholdChange(t *testing.T) {
	p := writeConfig(t, "thresholds:\n  XYZ: {one_month: 1, three_month: 3}\n")
	reloaded := startWatch(t, p, 50*time.Millisecond)

	rewrite(t, p, "thresholds:\n  XYZ: {one_month: 2, three_month: 6}\n")

	select {
	case c := <-reloaded:
		if got := c.Thresholds["XYZ"].ThreeMonth; got != 6 {
			t.Errorf("three_month: got %d, want 6", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatch_DebouncesWriteBurst(t *testing.T) {
	p := writeConfig(t, "server:\n  log_level: info\n")
	reloaded := startWatch(t, p, 300*time.Millisecond)

	for _, level := range []string{"debug", "warn", "error"} {
		rewrite(t, p, "server:\n  log_level: "+level+"\n")
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case c := <-reloaded:
		if c.Server.LogLevel != "error" {
			t.Errorf("log_level: got %q, want the last write", c.Server.LogLevel)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
	select {
	case c := <-reloaded:
		t.Errorf("burst produced a second reload: %+v", c.Server)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatch_IgnoresRestartOnlyChanges(t *testing.T) {
	p := writeConfig(t, "server:\n  http_port: 8080\n")
	reloaded := startWatch(t, p, 50*time.Millisecond)

	rewrite(t, p, "server:\n  http_port: 9000\n")
	rewrite(t, p, "server:\n  http_port: 9000\n")

	select {
	case c := <-reloaded:
		t.Errorf("unexpected reload: %+v", c.Server)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatch_InvalidReloadKeepsWatching(t *testing.T) {
	p := writeConfig(t, "server:\n  log_level: info\n")
	reloaded := startWatch(t, p, 50*time.Millisecond)

	rewrite(t, p, "server: [\n")
	time.Sleep(200 * time.Millisecond)
	rewrite(t, p, "server:\n  log_level: debug\n")

	select {
	case c := <-reloaded:
		if c.Server.LogLevel != "debug" {
			t.Errorf("log_level: got %q", c.Server.LogLevel)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after the file was fixed")
	}
}

func TestWatch_MissingFile(t *testing.T) {
	if err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), func(*Config) {}); err == nil {
		t.Fatal("expected error watching a missing file")
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "config", "server.example.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if !cfg.Server.Schedule.Enabled() || len(cfg.Server.Alerts.Rules) != 3 {
		t.Errorf("example: got %+v", cfg.Server)
	}
	if _, err := cfg.Registry(); err != nil {
		t.Errorf("Registry: %v", err)
	}
}
