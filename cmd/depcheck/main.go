// Command depcheck verifies that every upstream configured in the environment
// is reachable: the quota Redis, the record store, the warehouse and the
// usage topic.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/config"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/httpclient"
	"github.com/mohammed-shakir/city-indicators-api/internal/core/resilience"
	"github.com/mohammed-shakir/city-indicators-api/internal/quota"
	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore"
	"github.com/mohammed-shakir/city-indicators-api/internal/usage"
	"github.com/mohammed-shakir/city-indicators-api/internal/warehouse"
)

var errSkipped = errors.New("not configured")

type check struct {
	name string
	run  func(ctx context.Context, cfg config.Config) error
}

var checks = []check{
	{"quota-redis", checkRedis},
	{"recordstore", checkRecordStore},
	{"warehouse", checkWarehouse},
	{"usage-kafka", checkKafka},
}

// a single attempt per upstream
var noRetry = resilience.Config{MaxRetries: 0, BreakerFailures: 1000}

func checkRedis(ctx context.Context, cfg config.Config) error {
	if cfg.QuotaRedisAddr == "" {
		return errSkipped
	}
	c, err := quota.Dial(ctx, cfg.QuotaRedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	if err := c.Ping(ctx); err != nil {
		return err
	}
	return c.NewRedis("depcheck", 1000, time.Minute, nil, nil).Wait(ctx)
}

func checkRecordStore(ctx context.Context, cfg config.Config) error {
	rs := cfg.RecordStore
	if rs.BaseID == "" || rs.APIKey == "" {
		return errSkipped
	}
	c, err := recordstore.New(recordstore.Config{URL: rs.URL, APIKey: rs.APIKey, BaseID: rs.BaseID, View: rs.View},
		httpclient.NewOutbound(rs.HTTPTimeout, "city-indicators-depcheck"), resilience.NewGuard("recordstore", noRetry, nil, nil), nil)
	if err != nil {
		return err
	}
	rec, err := c.FetchFirst(ctx, recordstore.Cities, "")
	if err != nil {
		return err
	}
	if rec == nil {
		return errors.New("cities table is empty")
	}
	return nil
}

func checkWarehouse(ctx context.Context, cfg config.Config) error {
	if cfg.Warehouse.DSN == "" {
		return errSkipped
	}
	p, err := warehouse.Open(ctx, warehouse.Config{DSN: cfg.Warehouse.DSN, MaxConns: 1},
		resilience.NewGuard("warehouse", noRetry, nil, nil), nil)
	if err != nil {
		return err
	}
	defer p.Close()
	return p.Ping(ctx)
}

// checkKafka produces one probe event to the usage topic.
func checkKafka(_ context.Context, cfg config.Config) error {
	if !cfg.Usage.Enabled {
		return errSkipped
	}
	sc := usage.ProducerConfig()
	sc.Producer.Return.Successes = true
	prod, err := sarama.NewSyncProducer(strings.Split(cfg.Usage.Brokers, ","), sc)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	b, err := json.Marshal(usage.Event{Route: "depcheck", TS: time.Now().UTC()})
	if err != nil {
		return err
	}
	partition, offset, err := prod.SendMessage(&sarama.ProducerMessage{
		Topic: cfg.Usage.Topic,
		Key:   sarama.StringEncoder("depcheck"),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("send probe: %w", err)
	}
	fmt.Printf("  probe written to %s[%d]@%d\n", cfg.Usage.Topic, partition, offset)
	return nil
}

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	timeout := flag.Duration("timeout", 20*time.Second, "overall timeout")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Println("dotenv:", err)
		os.Exit(2)
	}
	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	failed := 0
	for _, c := range checks {
		start := time.Now()
		err := c.run(ctx, cfg)
		switch {
		case errors.Is(err, errSkipped):
			fmt.Printf("%-12s skipped (%v)\n", c.name, err)
		case err != nil:
			failed++
			fmt.Printf("%-12s FAIL %v\n", c.name, err)
		default:
			fmt.Printf("%-12s ok (%s)\n", c.name, time.Since(start).Round(time.Millisecond))
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}
