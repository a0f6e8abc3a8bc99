package brick

import (
	"sync"
	"time"
)

// Device is a hardware resource held by a Brick.
type Device interface {
	// Kind is the variant tag.
	Kind() Kind

	// Port is the cache key: the physical port name, or the peripheral name
	// for devices without one.
	Port() string

	// Release frees the hardware. Only the first call has an effect.
	Release() error
}

// base carries the fields every device shares.
type base struct {
	kind Kind
	port string
	once sync.Once
}

func (b *base) Kind() Kind   { return b.kind }
func (b *base) Port() string { return b.port }

func (b *base) releaseOnce(closeFn func() error) error {
	var err error
	b.once.Do(func() { err = closeFn() })
	return err
}

// Motor is a medium or large regulated motor.
type Motor struct {
	base
	drv MotorDriver
}

func newMotor(kind Kind, port MotorPort, drv MotorDriver) *Motor {
	return &Motor{base: base{kind: kind, port: port.String()}, drv: drv}
}

// Release stops the motor and frees the port.
func (m *Motor) Release() error {
	return m.releaseOnce(func() error {
		m.drv.Stop(false)
		return m.drv.Close()
	})
}

// SetSpeed sets the target speed in degrees per second.
func (m *Motor) SetSpeed(degPerSec int) { m.drv.SetSpeed(degPerSec) }

// Speed returns the target speed in degrees per second.
func (m *Motor) Speed() int { return m.drv.Speed() }

// Forward runs the motor forward until stopped.
func (m *Motor) Forward() { m.drv.Forward() }

// Backward runs the motor backward until stopped.
func (m *Motor) Backward() { m.drv.Backward() }

// Stop halts the motor, holding position when brake is set.
func (m *Motor) Stop(brake bool) { m.drv.Stop(brake) }

// Rotate turns the motor by degrees relative to its current position.
func (m *Motor) Rotate(degrees int) { m.drv.Rotate(degrees) }

// TachoCount returns the accumulated rotation in degrees.
func (m *Motor) TachoCount() int { return m.drv.TachoCount() }

// IsMoving reports whether the motor is running.
func (m *Motor) IsMoving() bool { return m.drv.IsMoving() }

// Sensor modes.
const (
	ModeReflected = "reflected"
	ModeAmbient   = "ambient"
	ModeColorID   = "color-id"
	ModeDistance  = "distance"
	ModeTouch     = "touch"
	ModeDB        = "db"
)

// Sensor is any of the sensor kinds. Every read is handed to the Monitor.
type Sensor struct {
	base
	drv     SensorDriver
	monitor Monitor
}

func newSensor(kind Kind, port SensorPort, drv SensorDriver, monitor Monitor) *Sensor {
	return &Sensor{base: base{kind: kind, port: port.String()}, drv: drv, monitor: monitor}
}

// Release frees the sensor port.
func (s *Sensor) Release() error {
	return s.releaseOnce(s.drv.Close)
}

// Read samples the sensor in mode.
func (s *Sensor) Read(mode string) (float64, error) {
	v, err := s.drv.Sample(mode)
	if err != nil {
		return 0, err
	}
	s.monitor.Record(Reading{
		Port:  s.port,
		Kind:  s.kind,
		Mode:  mode,
		Value: v,
		Time:  time.Now(),
	})
	return v, nil
}

// IsPushed reads a touch sensor.
func (s *Sensor) IsPushed() (bool, error) {
	v, err := s.Read(ModeTouch)
	return v != 0, err
}

// Distance reads an infrared or ultrasonic sensor.
func (s *Sensor) Distance() (float64, error) {
	return s.Read(ModeDistance)
}

// Screen is the LCD.
type Screen struct {
	base
	drv ScreenDriver
}

// Release clears and frees the screen.
func (s *Screen) Release() error {
	return s.releaseOnce(func() error {
		s.drv.Clear()
		return s.drv.Close()
	})
}

// Clear blanks the display.
func (s *Screen) Clear() { s.drv.Clear() }

// DrawText writes text with its top-left corner at pixel x, y.
func (s *Screen) DrawText(text string, x, y int) { s.drv.DrawText(text, x, y) }

// Sound is the speaker.
type Sound struct {
	base
	drv SoundDriver
}

// Release frees the speaker.
func (s *Sound) Release() error { return s.releaseOnce(s.drv.Close) }

// Beep plays the default short beep.
func (s *Sound) Beep() { s.drv.Beep() }

// PlayTone plays frequency Hz for durationMS milliseconds.
func (s *Sound) PlayTone(frequency, durationMS int) { s.drv.PlayTone(frequency, durationMS) }

// SetVolume sets the master volume as a percentage.
func (s *Sound) SetVolume(percent int) { s.drv.SetVolume(percent) }

// Keyboard is the brick button panel. It also owns the button LED.
type Keyboard struct {
	base
	drv ButtonsDriver
	led *LED
}

func newKeyboard(drv ButtonsDriver) *Keyboard {
	return &Keyboard{
		base: base{kind: KindKeyboard, port: keyKeyboard},
		drv:  drv,
		led:  &LED{drv: drv},
	}
}

// Release switches the LED off and frees the buttons.
func (k *Keyboard) Release() error {
	return k.releaseOnce(func() error {
		k.drv.SetLED(LEDOff)
		return k.drv.Close()
	})
}

// IsPressed reports whether button ("up", "down", "left", "right",
// "enter", "escape") is held.
func (k *Keyboard) IsPressed(button string) bool { return k.drv.IsPressed(button) }

// LED returns the button LED.
func (k *Keyboard) LED() *LED { return k.led }

// LED patterns.
const (
	LEDOff = iota
	LEDGreen
	LEDRed
	LEDOrange
)

// LED is the button backlight. It has no cache slot of its own.
type LED struct {
	drv ButtonsDriver
}

// SetPattern shows one of the LED patterns.
func (l *LED) SetPattern(pattern int) { l.drv.SetLED(pattern) }

// Off switches the LED off.
func (l *LED) Off() { l.drv.SetLED(LEDOff) }

// Battery reports power state.
type Battery struct {
	base
	drv BatteryDriver
}

// Release frees the battery reader.
func (b *Battery) Release() error { return b.releaseOnce(b.drv.Close) }

// Voltage returns the battery voltage in volts.
func (b *Battery) Voltage() float64 { return b.drv.Voltage() }

// Current returns the battery current in amps.
func (b *Battery) Current() float64 { return b.drv.Current() }
