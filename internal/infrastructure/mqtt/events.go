package mqtt

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/nerrad567/brickd/internal/brick"
)

// defaultEventBuffer is the number of device events held while the broker
// is slow.
const defaultEventBuffer = 64

// Publisher is the publishing half of Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// deviceEvent is the payload of brickd/device/{port}/event.
type deviceEvent struct {
	Event     string `json:"event"`
	Kind      string `json:"kind"`
	Port      string `json:"port"`
	Timestamp string `json:"timestamp"`
}

// EventPublisher forwards brick device events to the broker.
//
// It implements brick.Observer. OnDeviceEvent never blocks: events are
// queued and published by Run, and dropped (and counted) when the queue
// is full.
type EventPublisher struct {
	pub    Publisher
	qos    byte
	events chan brick.Event
	logger Logger

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewEventPublisher creates an EventPublisher. buffer <= 0 selects the
// default queue length.
func NewEventPublisher(pub Publisher, qos byte, buffer int) *EventPublisher {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &EventPublisher{
		pub:    pub,
		qos:    qos,
		events: make(chan brick.Event, buffer),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used for publish failures. Call before Run.
func (p *EventPublisher) SetLogger(logger Logger) {
	p.logger = logger
}

// OnDeviceEvent implements brick.Observer.
func (p *EventPublisher) OnDeviceEvent(e brick.Event) {
	select {
	case p.events <- e:
	default:
		p.dropped.Add(1)
	}
}

// Run publishes queued events until ctx is cancelled.
func (p *EventPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.events:
			p.publish(e)
		}
	}
}

func (p *EventPublisher) publish(e brick.Event) {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	payload, err := json.Marshal(deviceEvent{
		Event:     string(e.Type),
		Kind:      e.Kind.String(),
		Port:      e.Port,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	if err := p.pub.Publish(Topics{}.DeviceEvent(e.Port), payload, p.qos, false); err != nil {
		p.logger.Warn("device event not published", "port", e.Port, "event", string(e.Type), "error", err)
		return
	}
	p.published.Add(1)
}

// Published returns the number of events delivered to the broker.
func (p *EventPublisher) Published() uint64 { return p.published.Load() }

// Dropped returns the number of events discarded because the queue was full.
func (p *EventPublisher) Dropped() uint64 { return p.dropped.Load() }

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
