package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

func TestBuild_ContextFieldsReachSlog(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Component: "cities-api", Version: "test"}, &buf)
	log := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithRoute(ctx, "/cities/{city_id}")
	ctx = WithCityID(ctx, "BRA-Salvador")
	log.InfoContext(ctx, "served", "features", 3, "err", errors.New("boom"))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	checks := map[string]any{
		"request_id": "req-1",
		"route":      "/cities/{city_id}",
		"city_id":    "BRA-Salvador",
		"component":  "cities-api",
		"version":    "test",
		"msg":        "served",
		"level":      "info",
		"err":        "boom",
	}
	for k, want := range checks {
		if line[k] != want {
			t.Fatalf("%s=%v want %v (line=%s)", k, line[k], want, buf.String())
		}
	}
	if line["features"] != float64(3) {
		t.Fatalf("features=%v want 3", line["features"])
	}
}

func TestSlog_RespectsGlobalLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	log := NewSlog(&zl)

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line leaked at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn line missing: %s", out)
	}
}

func TestWithRequestID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if id := RequestID(ctx); len(id) != 16 {
		t.Fatalf("generated id=%q want 16 hex chars", id)
	}
}
