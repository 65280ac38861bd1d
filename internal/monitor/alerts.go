package monitor

import (
	"context"
	"fmt"
	"log"

	"spot-trader/internal/events"
)

// AlertSink interface for pluggable alert delivery.
type AlertSink interface {
	Send(message string) error
}

// LogSink writes alerts to the process log.
type LogSink struct{}

func (LogSink) Send(message string) error {
	log.Printf("🚨 %s", message)
	return nil
}

// AlertRelay forwards risk alerts and emergency halts from the bus to
// a sink.
type AlertRelay struct {
	Bus  *events.Bus
	Sink AlertSink
}

func (r *AlertRelay) Start(ctx context.Context) {
	if r.Bus == nil {
		return
	}
	if r.Sink == nil {
		r.Sink = LogSink{}
	}

	alerts, unsubAlerts := r.Bus.Subscribe(events.EventRiskAlert, 50)
	halts, unsubHalts := r.Bus.Subscribe(events.EventEmergencyHalt, 10)
	go func() {
		defer unsubAlerts()
		defer unsubHalts()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-alerts:
				if !ok {
					return
				}
				r.forward(msg)
			case msg, ok := <-halts:
				if !ok {
					return
				}
				r.forward(msg)
			}
		}
	}()
}

func (r *AlertRelay) forward(msg any) {
	alert, ok := msg.(events.RiskAlert)
	if !ok {
		return
	}
	text := fmt.Sprintf("[%s] %s", alert.Kind, alert.Detail)
	if alert.Symbol != "" {
		text = fmt.Sprintf("[%s] %s: %s", alert.Kind, alert.Symbol, alert.Detail)
	}
	if err := r.Sink.Send(text); err != nil {
		log.Printf("monitor: alert delivery failed: %v", err)
	}
}
