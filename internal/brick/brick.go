package brick

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNoHAL is returned when a device is requested from a Brick without a HAL.
var ErrNoHAL = errors.New("brick: no hardware layer")

// Logger defines the logging interface used by the Brick.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Brick is the registry of live devices, keyed by physical port.
//
// Each accessor returns the cached device when one of the requested kind
// holds the port. A device of another kind on the same port is released
// and replaced. The check, release and insert happen under one lock.
//
// All public methods are thread-safe.
type Brick struct {
	hal      HAL
	devices  map[string]Device
	mu       sync.Mutex
	logger   Logger
	observer Observer
	monitor  Monitor
}

// New creates a Brick backed by hal.
func New(hal HAL) *Brick {
	return &Brick{
		hal:      hal,
		devices:  make(map[string]Device),
		logger:   noopLogger{},
		observer: noopObserver{},
		monitor:  noopMonitor{},
	}
}

// SetLogger sets the logger for the brick.
func (b *Brick) SetLogger(logger Logger) {
	b.logger = logger
}

// SetObserver sets the receiver of device lifecycle events.
func (b *Brick) SetObserver(o Observer) {
	b.observer = o
}

// SetMonitor sets the receiver of sensor readings. It applies to sensors
// created afterwards.
func (b *Brick) SetMonitor(m Monitor) {
	b.monitor = m
}

// acquire implements get-or-create-or-swap for key.
func (b *Brick) acquire(key string, kind Kind, build func() (Device, error)) (Device, error) {
	if b.hal == nil {
		return nil, ErrNoHAL
	}

	var events []Event
	defer func() {
		for _, e := range events {
			b.observer.OnDeviceEvent(e)
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.devices[key]; ok {
		if existing.Kind() == kind {
			return existing, nil
		}
		delete(b.devices, key)
		b.release(existing)
		events = append(events, b.event(DeviceReleased, existing))
		b.logger.Debug("device swapped", "port", key, "from", existing.Kind().String(), "to", kind.String())
	}

	d, err := build()
	if err != nil {
		return nil, fmt.Errorf("opening %s on %s: %w", kind, key, err)
	}
	b.devices[key] = d
	events = append(events, b.event(DeviceAcquired, d))
	b.logger.Debug("device acquired", "port", key, "kind", kind.String())
	return d, nil
}

func (b *Brick) release(d Device) {
	if err := d.Release(); err != nil {
		b.logger.Warn("releasing device failed", "port", d.Port(), "kind", d.Kind().String(), "error", err)
	}
}

func (b *Brick) event(t EventType, d Device) Event {
	return Event{Type: t, Kind: d.Kind(), Port: d.Port(), Time: time.Now()}
}

func (b *Brick) motor(name string, kind Kind) (*Motor, error) {
	port, err := ResolveMotorPort(name)
	if err != nil {
		return nil, err
	}
	d, err := b.acquire(port.String(), kind, func() (Device, error) {
		drv, err := b.hal.OpenMotor(port, kind)
		if err != nil {
			return nil, err
		}
		return newMotor(kind, port, drv), nil
	})
	if err != nil {
		return nil, err
	}
	return d.(*Motor), nil
}

func (b *Brick) sensor(name string, kind Kind) (*Sensor, error) {
	port, err := ResolveSensorPort(name)
	if err != nil {
		return nil, err
	}
	d, err := b.acquire(port.String(), kind, func() (Device, error) {
		drv, err := b.hal.OpenSensor(port, kind)
		if err != nil {
			return nil, err
		}
		return newSensor(kind, port, drv, b.monitor), nil
	})
	if err != nil {
		return nil, err
	}
	return d.(*Sensor), nil
}

// MediumMotor returns the medium motor on port "A" to "D".
func (b *Brick) MediumMotor(port string) (*Motor, error) { return b.motor(port, KindMediumMotor) }

// LargeMotor returns the large motor on port "A" to "D".
func (b *Brick) LargeMotor(port string) (*Motor, error) { return b.motor(port, KindLargeMotor) }

// ColorSensor returns the color sensor on port "1".."4" or "S1".."S4".
func (b *Brick) ColorSensor(port string) (*Sensor, error) { return b.sensor(port, KindColorSensor) }

// IRSensor returns the infrared sensor on the given sensor port.
func (b *Brick) IRSensor(port string) (*Sensor, error) { return b.sensor(port, KindIRSensor) }

// TouchSensor returns the touch sensor on the given sensor port.
func (b *Brick) TouchSensor(port string) (*Sensor, error) { return b.sensor(port, KindTouchSensor) }

// UltrasonicSensor returns the ultrasonic sensor on the given sensor port.
func (b *Brick) UltrasonicSensor(port string) (*Sensor, error) {
	return b.sensor(port, KindUltrasonicSensor)
}

// SoundSensor returns the sound level sensor on the given sensor port.
func (b *Brick) SoundSensor(port string) (*Sensor, error) { return b.sensor(port, KindSoundSensor) }

// Screen returns the LCD.
func (b *Brick) Screen() (*Screen, error) {
	d, err := b.acquire(keyScreen, KindScreen, func() (Device, error) {
		drv, err := b.hal.OpenScreen()
		if err != nil {
			return nil, err
		}
		return &Screen{base: base{kind: KindScreen, port: keyScreen}, drv: drv}, nil
	})
	if err != nil {
		return nil, err
	}
	return d.(*Screen), nil
}

// Sound returns the speaker.
func (b *Brick) Sound() (*Sound, error) {
	d, err := b.acquire(keySound, KindSound, func() (Device, error) {
		drv, err := b.hal.OpenSound()
		if err != nil {
			return nil, err
		}
		return &Sound{base: base{kind: KindSound, port: keySound}, drv: drv}, nil
	})
	if err != nil {
		return nil, err
	}
	return d.(*Sound), nil
}

// Keyboard returns the button panel.
func (b *Brick) Keyboard() (*Keyboard, error) {
	d, err := b.acquire(keyKeyboard, KindKeyboard, func() (Device, error) {
		drv, err := b.hal.OpenButtons()
		if err != nil {
			return nil, err
		}
		return newKeyboard(drv), nil
	})
	if err != nil {
		return nil, err
	}
	return d.(*Keyboard), nil
}

// LED returns the button LED of the keyboard, acquiring the keyboard if
// needed.
func (b *Brick) LED() (*LED, error) {
	k, err := b.Keyboard()
	if err != nil {
		return nil, err
	}
	return k.LED(), nil
}

// Battery returns the battery reader.
func (b *Brick) Battery() (*Battery, error) {
	d, err := b.acquire(keyBattery, KindBattery, func() (Device, error) {
		drv, err := b.hal.OpenBattery()
		if err != nil {
			return nil, err
		}
		return &Battery{base: base{kind: KindBattery, port: keyBattery}, drv: drv}, nil
	})
	if err != nil {
		return nil, err
	}
	return d.(*Battery), nil
}

// ReleaseResources empties the cache and releases every device that was in
// it. Devices are released outside the lock. It returns the number of
// devices released; a second call returns 0.
func (b *Brick) ReleaseResources() int {
	b.mu.Lock()
	snapshot := make([]Device, 0, len(b.devices))
	for _, d := range b.devices {
		snapshot = append(snapshot, d)
	}
	b.devices = make(map[string]Device)
	b.mu.Unlock()

	for _, d := range snapshot {
		b.release(d)
		b.observer.OnDeviceEvent(b.event(DeviceReleased, d))
	}

	if len(snapshot) > 0 {
		b.logger.Info("devices released", "count", len(snapshot))
	}
	return len(snapshot)
}

// DeviceInfo describes a cached device.
type DeviceInfo struct {
	Port string `json:"port"`
	Kind string `json:"kind"`
}

// Devices lists the cached devices sorted by port.
func (b *Brick) Devices() []DeviceInfo {
	b.mu.Lock()
	out := make([]DeviceInfo, 0, len(b.devices))
	for key, d := range b.devices {
		out = append(out, DeviceInfo{Port: key, Kind: d.Kind().String()})
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

// CountByKind returns the number of cached devices per kind name.
func (b *Brick) CountByKind() map[string]int {
	counts := make(map[string]int)
	for _, d := range b.Devices() {
		counts[d.Kind]++
	}
	return counts
}
