package monitor

import (
	"context"
	"strings"
	"testing"
	"time"

	"execution-core/internal/events"
)

type chanSink struct{ out chan string }

func (s chanSink) Send(message string) error {
	s.out <- message
	return nil
}

func TestMonitorForwardsRiskAlerts(t *testing.T) {
	bus := events.NewBus()
	sink := chanSink{out: make(chan string, 1)}
	m := &Monitor{Bus: bus, Sink: sink}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	// Subscription happens in Start before the goroutine launches, so this
	// publish cannot be lost.
	bus.Publish(events.EventRiskAlert, "aggregate loss below threshold")

	select {
	case got := <-sink.out:
		if !strings.Contains(got, "aggregate loss below threshold") || !strings.Contains(got, "risk") {
			t.Fatalf("alert %q missing payload or kind", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no alert delivered")
	}
}

func TestMonitorStopsOnCancel(t *testing.T) {
	bus := events.NewBus()
	sink := chanSink{out: make(chan string, 1)}
	m := &Monitor{Bus: bus, Sink: sink}

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()

	// Give the goroutine a moment to observe cancellation, then verify
	// nothing is forwarded.
	time.Sleep(50 * time.Millisecond)
	bus.Publish(events.EventRiskAlert, "late alert")
	select {
	case got := <-sink.out:
		t.Fatalf("unexpected delivery after cancel: %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}
