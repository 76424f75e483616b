package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/config"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/health"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/httpclient"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/observability"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/resilience"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/router"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/server"
	"github.com/mohammed-shakir/city-indicators-api/internal/logger"
	"github.com/mohammed-shakir/city-indicators-api/internal/metrics"
	"github.com/mohammed-shakir/city-indicators-api/internal/quota"
	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore"
	"github.com/mohammed-shakir/city-indicators-api/internal/service"
	"github.com/mohammed-shakir/city-indicators-api/internal/usage"
	"github.com/mohammed-shakir/city-indicators-api/internal/warehouse"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		slog.Error("dotenv", "err", err)
		return 1
	}
	cfg := config.FromEnv()
	if cfg.BuildVersion == "" {
		cfg.BuildVersion = Version
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Version:   cfg.BuildVersion,
		Component: "cities-api",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)
	appLog.Info("starting cities api", "addr", cfg.Addr, "version", cfg.BuildVersion, "prefix", cfg.APIPrefix)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider := metrics.Init(metrics.Config{
		Build: metrics.BuildInfo{
			Version:   cfg.BuildVersion,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
		Collectors: observability.Collectors(),
	})

	provider.SetUpstream("recordstore", host(cfg.RecordStore.URL))
	provider.SetUpstream("warehouse", host(cfg.Warehouse.DSN))
	if cfg.Usage.Enabled {
		provider.SetUpstream("usage", cfg.Usage.Brokers)
	}

	ready := map[string]health.Pinger{}
	recordsLimiter, warehouseLimiter := limiters(ctx, cfg, appLog, ready)

	recordsGuard := resilience.NewGuard("recordstore", guardConfig(cfg.Resilience), recordsLimiter, appLog)
	records, err := recordstore.New(recordstore.Config{
		URL:    cfg.RecordStore.URL,
		APIKey: cfg.RecordStore.APIKey,
		BaseID: cfg.RecordStore.BaseID,
		View:   cfg.RecordStore.View,
	}, httpclient.NewOutbound(cfg.RecordStore.HTTPTimeout, httpclient.DefaultUserAgent+"/"+cfg.BuildVersion), recordsGuard, appLog)
	if err != nil {
		appLog.Error("record store setup failed", "err", err)
		return 1
	}
	ready["recordstore"] = records

	whGuard := resilience.NewGuard("warehouse", guardConfig(cfg.Resilience), warehouseLimiter, appLog)
	wh, err := warehouse.Open(ctx, warehouse.Config{DSN: cfg.Warehouse.DSN, MaxConns: cfg.Warehouse.MaxConns}, whGuard, appLog)
	if err != nil {
		appLog.Error("warehouse setup failed", "err", err)
		return 1
	}
	defer wh.Close()
	ready["warehouse"] = wh

	var rec usage.Recorder = usage.Nop{}
	if cfg.Usage.Enabled {
		pub, err := usage.NewPublisher(strings.Split(cfg.Usage.Brokers, ","), cfg.Usage.Topic, cfg.Usage.QueueSize, appLog)
		if err != nil {
			appLog.Error("usage publisher setup failed", "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		rec = pub
	}

	svc := service.New(records, wh, service.Config{
		BoundariesBaseURL: cfg.BoundariesBaseURL,
		LayersBaseURL:     cfg.LayersBaseURL,
	}, appLog)

	deps := server.Deps{
		Handlers: router.New(svc, rec, appLog),
		Ready:    ready,
	}
	if cfg.MetricsEnabled {
		go serveMetrics(ctx, cfg, provider.Handler(), appLog)
	} else {
		deps.Metrics = provider.Handler()
	}

	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

// limiters shares the upstream budgets through Redis when QUOTA_REDIS_ADDR is
// set, keeping a local bucket as fallback.
func limiters(ctx context.Context, cfg config.Config, l *slog.Logger, ready map[string]health.Pinger) (quota.Limiter, quota.Limiter) {
	rs := cfg.RecordStore
	wc := cfg.Warehouse
	localRecords := quota.NewLocal("recordstore", rs.RateCalls, rs.RatePeriod)
	localWarehouse := quota.NewLocal("warehouse", wc.RateCalls, wc.RatePeriod)
	if cfg.QuotaRedisAddr == "" {
		return localRecords, localWarehouse
	}

	dctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rc, err := quota.Dial(dctx, cfg.QuotaRedisAddr)
	if err != nil {
		l.Warn("quota redis unavailable, using local limiters", "addr", cfg.QuotaRedisAddr, "err", err)
		return localRecords, localWarehouse
	}
	go func() {
		<-ctx.Done()
		_ = rc.Close()
	}()
	ready["quota"] = rc
	return rc.NewRedis("recordstore", rs.RateCalls, rs.RatePeriod, localRecords, l),
		rc.NewRedis("warehouse", wc.RateCalls, wc.RatePeriod, localWarehouse, l)
}

// host strips scheme, credentials and path from a URL-style address.
func host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

func guardConfig(c config.ResilienceCfg) resilience.Config {
	return resilience.Config{
		MaxRetries:       c.MaxRetries,
		BackoffInitial:   c.BackoffInitial,
		BackoffMax:       c.BackoffMax,
		BreakerFailures:  c.BreakerFailures,
		BreakerOpenAfter: c.BreakerOpenAfter,
	}
}

func serveMetrics(ctx context.Context, cfg config.Config, h http.Handler, l *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, h)

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Warn("metrics shutdown", "err", err)
		}
	}()
	l.Info("metrics listen", "addr", cfg.MetricsAddr, "path", cfg.MetricsPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("metrics server exited", "err", err)
	}
}
