package alerts

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raptrack/raptrack/pkg/types"
	"github.com/raptrack/raptrack/server/internal/config"
)

func reportWith(roster string, regression, probation int) *types.Report {
	r := &types.Report{RosterID: roster, TargetMonth: 6}
	for i := 0; i < regression; i++ {
		r.Regression = append(r.Regression, "r")
	}
	for i := 0; i < probation; i++ {
		r.Probation = append(r.Probation, "p")
	}
	r.Total = regression + probation + 1
	return r
}

func TestEvalCondition(t *testing.T) {
	r := reportWith("wing", 2, 1)
	r.Missing = []string{"m"}
	tests := []struct {
		cond  string
		fires bool
		value float64
	}{
		{"regression_count > 0", true, 2},
		{"regression_count > 2", false, 2},
		{"probation_count >= 1", true, 1},
		{"missing_count == 1", true, 1},
		{"error_count > 0", false, 0},
		{"total_members < 1", false, 4},
		{"failing_pct >= 75", true, 75},
		{"target_month != 6", false, 6},
		{"bogus_field > 0", false, 0},
		{"regression_count >", false, 0},
		{"regression_count > x", false, 0},
	}
	for _, tc := range tests {
		t.Run(tc.cond, func(t *testing.T) {
			fires, v := evalCondition(tc.cond, r)
			if fires != tc.fires || v != tc.value {
				t.Errorf("got (%v, %v), want (%v, %v)", fires, v, tc.fires, tc.value)
			}
		})
	}
}

func TestFailingPct_EmptyRoster(t *testing.T) {
	if fires, v := evalCondition("failing_pct > 0", &types.Report{}); fires || v != 0 {
		t.Errorf("empty roster: got (%v, %v)", fires, v)
	}
}

func TestValidCondition(t *testing.T) {
	for cond, want := range map[string]bool{
		"regression_count > 0": true,
		"total_members <= 10":  true,
		"regression_count ~ 0": false,
		"nope > 0":             false,
		"regression_count":     false,
	} {
		if got := validCondition(cond); got != want {
			t.Errorf("validCondition(%q) = %v, want %v", cond, got, want)
		}
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newEngine(rules ...config.AlertRule) (*Engine, *clock) {
	e := New(config.AlertsConfig{Rules: rules})
	c := &clock{t: time.Date(2026, time.March, 1, 6, 0, 0, 0, time.UTC)}
	e.now = c.now
	return e, c
}

func TestEngine_FireResolve(t *testing.T) {
	e, c := newEngine(config.AlertRule{Name: "regressions", Condition: "regression_count > 0", Severity: "critical"})

	e.Evaluate(reportWith("wing", 1, 0))
	active := e.Active()
	if len(active) != 1 || active[0].State != StateFiring || active[0].RosterID != "wing" {
		t.Fatalf("after fire: %+v", active)
	}
	if !strings.Contains(active[0].Message, "regressions fired on wing") {
		t.Errorf("message: %q", active[0].Message)
	}

	c.t = c.t.Add(time.Hour)
	e.Evaluate(reportWith("wing", 0, 0))
	active = e.Active()
	if len(active) != 1 || active[0].State != StateResolved || active[0].ResolvedAt == nil {
		t.Fatalf("after resolve: %+v", active)
	}

	// Resolved alerts age out of Active.
	c.t = c.t.Add(48 * time.Hour)
	if got := e.Active(); len(got) != 0 {
		t.Errorf("stale resolved alerts should be hidden: %+v", got)
	}
}

func TestEngine_Cooldown(t *testing.T) {
	e, c := newEngine(config.AlertRule{Name: "r", Condition: "regression_count > 0", Cooldown: 30 * time.Minute})

	e.Evaluate(reportWith("wing", 1, 0))
	c.t = c.t.Add(time.Minute)
	e.Evaluate(reportWith("wing", 0, 0)) // resolves
	c.t = c.t.Add(time.Minute)
	e.Evaluate(reportWith("wing", 1, 0)) // within cooldown: suppressed

	firing := 0
	for _, a := range e.Active() {
		if a.State == StateFiring {
			firing++
		}
	}
	if firing != 0 {
		t.Errorf("re-fire inside cooldown should be suppressed, got %d firing", firing)
	}

	c.t = c.t.Add(time.Hour)
	e.Evaluate(reportWith("wing", 1, 0))
	if a := e.Active(); len(a) == 0 || a[0].State != StateFiring {
		t.Errorf("after cooldown the rule should fire again: %+v", a)
	}
}

func TestEngine_PerRosterKeys(t *testing.T) {
	e, _ := newEngine(config.AlertRule{Name: "r", Condition: "regression_count > 0"})
	e.Evaluate(reportWith("a", 1, 0))
	e.Evaluate(reportWith("b", 1, 0))
	if n := len(e.Active()); n != 2 {
		t.Errorf("expected one alert per roster, got %d", n)
	}
}

func TestEngine_SkipsInvalidRules(t *testing.T) {
	e, _ := newEngine(config.AlertRule{Name: "bad", Condition: "drop_pct > 10"})
	e.Evaluate(reportWith("wing", 5, 5))
	if n := len(e.Active()); n != 0 {
		t.Errorf("invalid rule should never fire, got %d alerts", n)
	}
}

func TestEngine_WebhookDelivery(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies = map[string]string{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies[r.URL.Path] = string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Setenv("SLACK_URL", srv.URL+"/slack")
	t.Setenv("TEAMS_URL", srv.URL+"/teams")
	t.Setenv("HOOK_URL", srv.URL+"/http")

	e, _ := newEngine()
	e.SetConfig(config.AlertsConfig{
		Rules: []config.AlertRule{{Name: "probation", Condition: "probation_count >= 1", Severity: "warning"}},
		Webhooks: []config.WebhookConfig{
			{Type: "slack", URLEnv: "SLACK_URL"},
			{Type: "teams", URLEnv: "TEAMS_URL"},
			{Type: "http", URLEnv: "HOOK_URL"},
			{Type: "http", URLEnv: "UNSET_URL"},
		},
	})

	e.Evaluate(reportWith("wing", 0, 2))
	e.Wait()

	mu.Lock()
	defer mu.Unlock()

	var slackMsg struct {
		Text        string `json:"text"`
		Attachments []struct {
			Color string `json:"color"`
		} `json:"attachments"`
	}
	if err := json.Unmarshal([]byte(bodies["/slack"]), &slackMsg); err != nil {
		t.Fatalf("slack body: %v (%q)", err, bodies["/slack"])
	}
	if !strings.Contains(slackMsg.Text, "[WARNING]") || len(slackMsg.Attachments) != 1 {
		t.Errorf("slack payload: %+v", slackMsg)
	}

	var teams map[string]interface{}
	if err := json.Unmarshal([]byte(bodies["/teams"]), &teams); err != nil || teams["@type"] != "MessageCard" {
		t.Errorf("teams payload: %v %v", teams, err)
	}

	var generic struct {
		Alert Alert `json:"alert"`
	}
	if err := json.Unmarshal([]byte(bodies["/http"]), &generic); err != nil || generic.Alert.RuleName != "probation" {
		t.Errorf("http payload: %+v %v", generic, err)
	}
}
