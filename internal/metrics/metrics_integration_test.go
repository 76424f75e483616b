package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/observability"
)

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for ln := range strings.SplitSeq(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok && (len(ln) > 0 && ln[len(ln)-1] >= '0' && ln[len(ln)-1] <= '9') {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func Test_AppMetrics_CustomRegistry_Smoke(t *testing.T) {
	p := Init(Config{
		Build:      BuildInfo{Version: "test"},
		Collectors: observability.Collectors(),
	})

	observability.ObserveHTTP("GET", "/cities/{city_id}/indicators/geojson", 200, 0.05)
	observability.ObserveUpstream("warehouse", "query", errors.New("timeout"), 0.4)
	observability.ObserveFanoutTask("boundaries", nil, 0.1)
	observability.AddPivotDuplicates(1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()

	assertHasMetricLine(t, body, "http_requests_total", `route="/cities/{city_id}/indicators/geojson"`, `status="200"`)
	assertHasMetricLine(t, body, "upstream_errors_total", `upstream="warehouse"`, `op="query"`)
	assertHasMetricLine(t, body, "fanout_task_duration_seconds_count", `task="boundaries"`, `outcome="ok"`)
	assertHasMetricLine(t, body, "cities_api_build_info", `version="test"`)
	if !strings.Contains(body, "pivot_duplicate_values_total ") {
		t.Fatalf("expected pivot_duplicate_values_total in payload; got:\n%s", body)
	}
}
