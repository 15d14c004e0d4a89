package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func TestStatusReportsVersionAndUptime(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	app := newTestApp(t, clock)
	now = now.Add(90 * time.Second)

	resp, err := app.Test(httptest.NewRequest("GET", "http://admin.local/-/status", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 status, got %d", resp.StatusCode)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	var payload struct {
		Name          string `json:"name"`
		Version       string `json:"version"`
		ListenPort    int    `json:"listen_port"`
		UptimeSeconds int64  `json:"uptime_seconds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if payload.Name != "mangafetch" || payload.Version != "test-version" || payload.ListenPort != 5000 {
		t.Fatalf("unexpected status payload: %+v", payload)
	}
	if payload.UptimeSeconds != 90 {
		t.Fatalf("expected uptime 90s, got %d", payload.UptimeSeconds)
	}
}

func TestRouterReturns404OutsideAdminPrefix(t *testing.T) {
	app := newTestApp(t, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "http://admin.local/v2/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 status, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("404 responses should carry X-Request-ID too")
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"not_found"`)) {
		t.Fatalf("expected not_found error, got %s", string(body))
	}
}

func TestNewAppValidatesOptions(t *testing.T) {
	if _, err := NewApp(AppOptions{ListenPort: 5000}); err == nil {
		t.Fatalf("missing logger should fail")
	}
	if _, err := NewApp(AppOptions{Logger: logrus.New(), ListenPort: 0}); err == nil {
		t.Fatalf("invalid port should fail")
	}
}

func newTestApp(t *testing.T, now func() time.Time) *fiber.App {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app, err := NewApp(AppOptions{
		Logger:     logger,
		ListenPort: 5000,
		Version:    "test-version",
		Now:        now,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return app
}
