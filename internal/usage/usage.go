// Package usage publishes one event per served pipeline request to Kafka.
// Publishing never blocks a request: when the queue is full the event is
// dropped and counted.
package usage

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"

	"github.com/mohammed-shakir/city-indicators-api/internal/core/observability"
)

type Event struct {
	Route       string    `json:"route"`
	CityID      string    `json:"city_id,omitempty"`
	AdminLevel  string    `json:"admin_level,omitempty"`
	IndicatorID string    `json:"indicator_id,omitempty"`
	Format      string    `json:"format,omitempty"`
	Status      int       `json:"status"`
	TS          time.Time `json:"ts"`
}

// Recorder accepts usage events.
type Recorder interface {
	Publish(ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

type Publisher struct {
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	logger  *slog.Logger
	stopped chan struct{}
}

func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "city-indicators-api"
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	return cfg
}

func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	prod, err := sarama.NewAsyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("usage: create async producer: %w", err)
	}
	return NewWithProducer(prod, topic, queueSize, logger), nil
}

// NewWithProducer starts a publisher on an existing producer, which it owns
// from then on.
func NewWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Publisher{
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		logger:  logger,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Warn("usage event marshal failed", "err", err)
				continue
			}
			msg := &sarama.ProducerMessage{
				Topic: p.topic,
				Value: sarama.ByteEncoder(b),
			}
			if ev.CityID != "" {
				msg.Key = sarama.StringEncoder(ev.CityID)
			}
			p.prod.Input() <- msg
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Warn("usage producer error", "err", err)
			}
		}
	}()

	return p
}

func (p *Publisher) Publish(ev Event) {
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	select {
	case p.events <- ev:
	default:
		observability.IncUsageDropped()
	}
}

// Close flushes queued events and closes the producer.
func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("usage: close producer: %w", err)
	}
	return nil
}
