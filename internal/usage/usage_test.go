package usage

import (
	"errors"
	"testing"

	"github.com/IBM/sarama/mocks"
	json "github.com/goccy/go-json"
)

func TestPublisher_SendsJSONKeyedByCity(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, ProducerConfig())
	mp.ExpectInputWithCheckerFunctionAndSucceed(func(b []byte) error {
		var ev Event
		if err := json.Unmarshal(b, &ev); err != nil {
			return err
		}
		if ev.Route != "/cities/{city_id}/indicators/geojson" || ev.CityID != "city1" || ev.Status != 200 {
			return errors.New("unexpected event: " + string(b))
		}
		if ev.TS.IsZero() {
			return errors.New("timestamp not set")
		}
		return nil
	})

	p := NewWithProducer(mp, "usage", 4, nil)
	p.Publish(Event{Route: "/cities/{city_id}/indicators/geojson", CityID: "city1", Status: 200})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublisher_DropsWhenQueueIsFull(t *testing.T) {
	p := &Publisher{topic: "usage", events: make(chan Event, 1), stopped: make(chan struct{})}

	p.Publish(Event{Route: "a"})
	p.Publish(Event{Route: "b"})
	if len(p.events) != 1 {
		t.Fatalf("queued=%d want 1", len(p.events))
	}
	if ev := <-p.events; ev.Route != "a" {
		t.Fatalf("kept=%q want the first event", ev.Route)
	}
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.Publish(Event{Route: "x"})
}
