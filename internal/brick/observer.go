package brick

import "time"

// EventType describes a device lifecycle change.
type EventType string

// Device lifecycle events.
const (
	DeviceAcquired EventType = "acquired"
	DeviceReleased EventType = "released"
)

// Event is emitted when a device enters or leaves the cache.
type Event struct {
	Type EventType
	Kind Kind
	Port string
	Time time.Time
}

// Observer receives device lifecycle events. Implementations must not block.
type Observer interface {
	OnDeviceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnDeviceEvent calls f.
func (f ObserverFunc) OnDeviceEvent(e Event) { f(e) }

// Reading is one sensor sample.
type Reading struct {
	Port  string
	Kind  Kind
	Mode  string
	Value float64
	Time  time.Time
}

// Monitor receives every sensor reading. Implementations must not block.
type Monitor interface {
	Record(Reading)
}

// Observers fans events out to several observers in order.
type Observers []Observer

// OnDeviceEvent forwards e to every observer.
func (obs Observers) OnDeviceEvent(e Event) {
	for _, o := range obs {
		o.OnDeviceEvent(e)
	}
}

// Monitors fans readings out to several monitors in order.
type Monitors []Monitor

// Record forwards r to every monitor.
func (ms Monitors) Record(r Reading) {
	for _, m := range ms {
		m.Record(r)
	}
}

type noopObserver struct{}

func (noopObserver) OnDeviceEvent(Event) {}

type noopMonitor struct{}

func (noopMonitor) Record(Reading) {}
