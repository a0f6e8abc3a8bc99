package mqtt

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Broker is the part of Client the Bridge needs.
type Broker interface {
	Publisher
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topic string) error
}

// Processor receives inbound action messages. *action.Dispatcher
// satisfies it.
type Processor interface {
	ProcessMessage(connID uuid.UUID, raw string)
}

// Bridge lets MQTT clients use the action protocol.
//
// All remote clients share one connection identity: messages arriving on
// brickd/action/in are processed as coming from ID(), and messages for that
// identity, or broadcasts, are published on brickd/action/out. Bridge
// implements action.Transport for its own identity.
type Bridge struct {
	broker Broker
	proc   Processor
	qos    byte
	id     uuid.UUID
	logger Logger

	received atomic.Uint64
	sent     atomic.Uint64
}

// NewBridge creates a Bridge with a fresh connection identity.
func NewBridge(broker Broker, proc Processor, qos byte) *Bridge {
	return &Bridge{
		broker: broker,
		proc:   proc,
		qos:    qos,
		id:     uuid.New(),
		logger: noopLogger{},
	}
}

// SetLogger sets the bridge logger.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// ID returns the connection identity of the bridged clients.
func (b *Bridge) ID() uuid.UUID { return b.id }

// Owns reports whether target is the bridge's connection.
func (b *Bridge) Owns(target uuid.UUID) bool { return target == b.id }

// Start subscribes to the inbound action topic.
func (b *Bridge) Start() error {
	return b.broker.Subscribe(Topics{}.ActionIn(), b.qos, b.handle)
}

// Stop unsubscribes from the inbound action topic.
func (b *Bridge) Stop() error {
	return b.broker.Unsubscribe(Topics{}.ActionIn())
}

func (b *Bridge) handle(_ string, payload []byte) error {
	b.received.Add(1)
	b.proc.ProcessMessage(b.id, string(payload))
	return nil
}

// SendMessage publishes content on brickd/action/out when target is the
// bridge's connection or uuid.Nil (broadcast).
func (b *Bridge) SendMessage(content string, target uuid.UUID) error {
	if target != uuid.Nil && target != b.id {
		return ErrNotBridged
	}
	if err := b.broker.Publish(Topics{}.ActionOut(), []byte(content), b.qos, false); err != nil {
		return err
	}
	b.sent.Add(1)
	return nil
}

// BridgeStats is a snapshot of bridge counters.
type BridgeStats struct {
	Received uint64 `json:"received"`
	Sent     uint64 `json:"sent"`
}

// Stats returns the bridge counters.
func (b *Bridge) Stats() BridgeStats {
	return BridgeStats{Received: b.received.Load(), Sent: b.sent.Load()}
}
