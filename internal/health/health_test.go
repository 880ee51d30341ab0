package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/squadnet-ai/squadnet/internal/health"
	mcpmock "github.com/squadnet-ai/squadnet/internal/mcp/mock"
	"github.com/squadnet-ai/squadnet/internal/resilience"
)

func newHandler(host *mcpmock.Host, checkers ...health.Checker) http.Handler {
	h := health.New("mission-1", func() int { return 4 }, host, checkers...)
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec := get(t, newHandler(&mcpmock.Host{}), "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestReadyzAllPassing(t *testing.T) {
	t.Parallel()
	h := newHandler(&mcpmock.Host{},
		health.CheckStore(func(context.Context) error { return nil }),
		health.CheckTools(&mcpmock.Host{}),
	)
	rec := get(t, h, "/readyz")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestReadyzFailingCheck(t *testing.T) {
	t.Parallel()
	h := newHandler(&mcpmock.Host{},
		health.CheckStore(func(context.Context) error { return errors.New("disk full") }),
	)
	rec := get(t, h, "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "disk full") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestCheckStoreNilPinger(t *testing.T) {
	t.Parallel()
	c := health.CheckStore(nil)
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("nil pinger should pass: %v", err)
	}
}

func TestCheckToolsDegradation(t *testing.T) {
	t.Parallel()
	open := resilience.Stats{Name: "maps", State: resilience.StateOpen, ConsecutiveFailures: 5}
	closed := resilience.Stats{Name: "registry", State: resilience.StateClosed}

	partial := &mcpmock.Host{BreakerStatsResult: []resilience.Stats{open, closed}}
	if err := health.CheckTools(partial).Check(context.Background()); err != nil {
		t.Errorf("partial degradation should stay ready: %v", err)
	}

	down := &mcpmock.Host{BreakerStatsResult: []resilience.Stats{open, open}}
	if err := health.CheckTools(down).Check(context.Background()); err == nil {
		t.Error("all breakers open should fail readiness")
	}

	none := &mcpmock.Host{}
	if err := health.CheckTools(none).Check(context.Background()); err != nil {
		t.Errorf("no servers configured should pass: %v", err)
	}
}

func TestStatusz(t *testing.T) {
	t.Parallel()
	host := &mcpmock.Host{BreakerStatsResult: []resilience.Stats{
		{Name: "maps", State: resilience.StateHalfOpen, ConsecutiveFailures: 3},
	}}
	rec := get(t, newHandler(host), "/statusz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		SessionID string `json:"session_id"`
		Messages  int    `json:"messages"`
		Servers   []struct {
			Name     string `json:"name"`
			State    string `json:"state"`
			Failures int    `json:"consecutive_failures"`
		} `json:"servers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SessionID != "mission-1" || body.Messages != 4 {
		t.Errorf("body = %+v", body)
	}
	if len(body.Servers) != 1 || body.Servers[0].State != "half_open" || body.Servers[0].Failures != 3 {
		t.Errorf("servers = %+v", body.Servers)
	}
}
