package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLiveness_Handler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	Liveness()(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	ct := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type=%q want text/plain", ct)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "ok" {
		t.Fatalf("body=%q want ok", got)
	}
}

func TestReadiness_ReportsFailingDependency(t *testing.T) {
	deps := map[string]Pinger{
		"warehouse":   PingFunc(func(context.Context) error { return nil }),
		"recordstore": PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	}
	rr := httptest.NewRecorder()
	Readiness(time.Second, deps)(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"status":"not_ready"`) || !strings.Contains(body, "refused") {
		t.Fatalf("body=%s", body)
	}
}

func TestReadiness_AllOK(t *testing.T) {
	deps := map[string]Pinger{
		"warehouse": PingFunc(func(context.Context) error { return nil }),
	}
	rr := httptest.NewRecorder()
	Readiness(0, deps)(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ready"`) {
		t.Fatalf("body=%s", rr.Body.String())
	}
}
