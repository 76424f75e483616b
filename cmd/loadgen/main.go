// Command loadgen replays a skewed read workload against a running API and
// writes per-request samples (CSV) and a run summary (JSON).
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

type Config struct {
	BaseURL        string
	Cities         string
	AdminLevel     string
	Routes         string
	Concurrency    int
	Duration       time.Duration
	ZipfS          float64
	ZipfV          float64
	OutputPrefix   string
	RequestTimeout time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base", "http://localhost:8000/api", "API base URL")
	flag.StringVar(&cfg.Cities, "cities", "BRA-Salvador,BRA-Florianopolis,COL-Bogota,ARG-Buenos_Aires", "Comma separated city ids, hottest first")
	flag.StringVar(&cfg.AdminLevel, "admin-level", "", "admin_level query value (empty uses the city default)")
	flag.StringVar(&cfg.Routes, "routes", "indicators,indicators/geojson,geojson", "Comma separated city sub-routes")
	flag.IntVar(&cfg.Concurrency, "concurrency", 16, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/loadgen", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 30*time.Second, "Per-request timeout")
	flag.Parse()
	return cfg
}

func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// targets is the request pool; index 0 is the hottest.
func targets(base string, cities, routes []string, adminLevel string) []string {
	base = strings.TrimRight(base, "/")
	out := make([]string, 0, len(cities)*len(routes))
	for _, c := range cities {
		for _, r := range routes {
			u := fmt.Sprintf("%s/cities/%s/%s", base, c, strings.Trim(r, "/"))
			if adminLevel != "" {
				u += "?admin_level=" + adminLevel
			}
			out = append(out, u)
		}
	}
	return out
}

type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	Bytes     int64
	ErrorMsg  string
	Target    int
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	NotFoundCount int64     `json:"not_found"`
	ErrorCount    int64     `json:"errors"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	ZipfS         float64   `json:"zipf_s"`
	ZipfV         float64   `json:"zipf_v"`
	Targets       int       `json:"targets"`
	BaseURL       string    `json:"base"`
}

type tally struct {
	total, success, notFound, errors int64
	latMs                            []float64
}

func (t *tally) add(s sample) {
	t.total++
	switch {
	case s.ErrorMsg == "" && s.Status >= 200 && s.Status < 300:
		t.success++
		t.latMs = append(t.latMs, float64(s.Latency.Microseconds())/1000.0)
	case s.Status == http.StatusNotFound:
		t.notFound++
	default:
		t.errors++
	}
}

func main() {
	cfg := loadConfig()
	pool := targets(cfg.BaseURL, splitList(cfg.Cities), splitList(cfg.Routes), cfg.AdminLevel)
	if len(pool) == 0 {
		log.Fatalf("no targets: cities=%q routes=%q", cfg.Cities, cfg.Routes)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}
	prefix := fmt.Sprintf("%s_%s", cfg.OutputPrefix, time.Now().UTC().Format("20060102_150405Z"))

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:        256,
			MaxIdleConnsPerHost: 128,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Fatalf("open csv: %v", err)
	}
	defer func() { _ = csvFile.Close() }()
	cw := csv.NewWriter(csvFile)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	samples := make(chan sample, 4096)
	done := make(chan tally, 1)
	go func() {
		_ = cw.Write([]string{"timestamp", "latency_ms", "status", "bytes", "error", "target"})
		var t tally
		for s := range samples {
			t.add(s)
			_ = cw.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				strconv.FormatFloat(float64(s.Latency.Microseconds())/1000.0, 'f', 3, 64),
				strconv.Itoa(s.Status),
				strconv.FormatInt(s.Bytes, 10),
				s.ErrorMsg,
				pool[s.Target],
			})
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			log.Printf("csv flush error: %v", err)
		}
		done <- t
	}()

	start := time.Now()
	seed := start.UnixNano()
	log.Printf("loadgen start base=%s dur=%s conc=%d zipf(s=%.2f,v=%.2f) targets=%d",
		cfg.BaseURL, cfg.Duration, cfg.Concurrency, cfg.ZipfS, cfg.ZipfV, len(pool))

	var wg sync.WaitGroup
	for id := range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			zipf := rand.NewZipf(rand.New(rand.NewSource(seed+int64(id)+1)), cfg.ZipfS, cfg.ZipfV, uint64(len(pool)-1))
			for ctx.Err() == nil {
				idx := int(zipf.Uint64())
				s := fire(ctx, httpClient, pool[idx])
				s.Target = idx
				select {
				case samples <- s:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(samples)
	}()

	t := <-done
	end := time.Now()
	elapsed := end.Sub(start).Seconds()
	sort.Float64s(t.latMs)

	sum := summary{
		StartTime:     start.UTC(),
		EndTime:       end.UTC(),
		DurationSec:   elapsed,
		TotalRequests: t.total,
		SuccessCount:  t.success,
		NotFoundCount: t.notFound,
		ErrorCount:    t.errors,
		ThroughputRPS: float64(t.total) / elapsed,
		P50Ms:         percentile(t.latMs, 50),
		P95Ms:         percentile(t.latMs, 95),
		P99Ms:         percentile(t.latMs, 99),
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		Targets:       len(pool),
		BaseURL:       cfg.BaseURL,
	}
	b, err := json.MarshalIndent(sum, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Clean(jsonPath), b, 0o600)
	}
	if err != nil {
		log.Printf("write summary: %v", err)
	}

	log.Printf("done: total=%d ok=%d 404=%d err=%d thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		t.total, t.success, t.notFound, t.errors, sum.ThroughputRPS, sum.P50Ms, sum.P95Ms, sum.P99Ms)
	log.Printf("wrote %s and %s", jsonPath, csvPath)
}

func fire(ctx context.Context, c *http.Client, target string) sample {
	s := sample{Timestamp: time.Now()}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		s.ErrorMsg = err.Error()
		return s
	}
	resp, err := c.Do(req)
	s.Latency = time.Since(s.Timestamp)
	if err != nil {
		s.ErrorMsg = err.Error()
		return s
	}
	defer func() { _ = resp.Body.Close() }()
	s.Status = resp.StatusCode
	s.Bytes, _ = io.Copy(io.Discard, resp.Body)
	s.Latency = time.Since(s.Timestamp)
	if resp.StatusCode >= 300 {
		s.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
	}
	return s
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	k := (p / 100.0) * float64(len(sorted)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	d := k - f
	return sorted[i]*(1-d) + sorted[i+1]*d
}
