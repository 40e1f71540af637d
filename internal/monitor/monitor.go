package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"execution-core/internal/events"
)

// AlertSink is a pluggable alert delivery target.
type AlertSink interface {
	Send(message string) error
}

// LogSink writes alerts to the process log. The default sink.
type LogSink struct{}

func (LogSink) Send(message string) error {
	log.Printf("ALERT %s", message)
	return nil
}

// Monitor watches engine and router events and forwards alerts to the sink.
// It observes only; it never cancels sessions or orders.
type Monitor struct {
	Bus  *events.Bus
	Sink AlertSink
}

// Start subscribes to alert-worthy topics until the context ends.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("monitor: no bus configured, skipping")
		return
	}
	if m.Sink == nil {
		m.Sink = LogSink{}
	}

	risks, unsubRisk := m.Bus.Subscribe(events.EventRiskAlert, 50)
	triggers, unsubTrig := m.Bus.Subscribe(events.EventProtectiveTrigger, 50)

	go func() {
		defer unsubRisk()
		defer unsubTrig()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-risks:
				if !ok {
					return
				}
				m.deliver("risk", msg)
			case msg, ok := <-triggers:
				if !ok {
					return
				}
				m.deliver("protective", msg)
			}
		}
	}()
}

func (m *Monitor) deliver(kind string, msg any) {
	line := fmt.Sprintf("[%s] %s: %s", time.Now().Format(time.RFC3339), kind, toString(msg))
	if err := m.Sink.Send(line); err != nil {
		log.Printf("monitor: alert delivery failed: %v", err)
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%+v", t)
	}
}
