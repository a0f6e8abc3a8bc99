package brick

import (
	"errors"
	"fmt"
	"sync"
)

// ErrSimOpenFailed is returned by SimHAL for ports marked with FailOpen.
var ErrSimOpenFailed = errors.New("brick: simulated open failure")

// SimHAL is an in-memory HAL. It is used when no hardware is present and by
// tests: it counts opens and closes per port, stores injected sensor
// samples and records what was drawn, played or lit.
//
// All methods are thread-safe.
type SimHAL struct {
	mu       sync.Mutex
	opens    map[string]int
	closes   map[string]int
	samples  map[string]float64
	pressed  map[string]bool
	failOpen map[string]bool
	motors   map[string]*simMotor
	led      int
	text     []string
	tones    int
	voltage  float64
}

// NewSimHAL creates an empty simulated brick.
func NewSimHAL() *SimHAL {
	return &SimHAL{
		opens:    make(map[string]int),
		closes:   make(map[string]int),
		samples:  make(map[string]float64),
		pressed:  make(map[string]bool),
		failOpen: make(map[string]bool),
		motors:   make(map[string]*simMotor),
		voltage:  7.4,
	}
}

// SetSample sets the value returned when the sensor on port reads mode.
func (h *SimHAL) SetSample(port SensorPort, mode string, value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples[port.String()+"/"+mode] = value
}

// Press sets the pressed state of a button.
func (h *SimHAL) Press(button string, down bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pressed[button] = down
}

// FailOpen makes the next opens of key ("A", "S2", "screen", ...) fail.
func (h *SimHAL) FailOpen(key string, fail bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failOpen[key] = fail
}

// Opens returns how many times key was opened.
func (h *SimHAL) Opens(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens[key]
}

// Closes returns how many times a driver for key was closed.
func (h *SimHAL) Closes(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes[key]
}

// LEDPattern returns the last LED pattern set.
func (h *SimHAL) LEDPattern() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.led
}

// ScreenText returns the text drawn since the last clear.
func (h *SimHAL) ScreenText() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.text...)
}

// Tones returns how many beeps and tones were played.
func (h *SimHAL) Tones() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tones
}

// MotorSpeed returns the configured speed of the motor on port.
func (h *SimHAL) MotorSpeed(port MotorPort) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.motors[port.String()]; ok {
		return m.speed
	}
	return 0
}

func (h *SimHAL) open(key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failOpen[key] {
		return fmt.Errorf("%w: %s", ErrSimOpenFailed, key)
	}
	h.opens[key]++
	return nil
}

func (h *SimHAL) closer(key string) func() error {
	return func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.closes[key]++
		return nil
	}
}

// OpenMotor implements HAL.
func (h *SimHAL) OpenMotor(port MotorPort, _ Kind) (MotorDriver, error) {
	key := port.String()
	if err := h.open(key); err != nil {
		return nil, err
	}
	m := &simMotor{hal: h, close: h.closer(key)}
	h.mu.Lock()
	h.motors[key] = m
	h.mu.Unlock()
	return m, nil
}

// OpenSensor implements HAL.
func (h *SimHAL) OpenSensor(port SensorPort, _ Kind) (SensorDriver, error) {
	key := port.String()
	if err := h.open(key); err != nil {
		return nil, err
	}
	return &simSensor{hal: h, port: key, close: h.closer(key)}, nil
}

// OpenScreen implements HAL.
func (h *SimHAL) OpenScreen() (ScreenDriver, error) {
	if err := h.open(keyScreen); err != nil {
		return nil, err
	}
	return &simScreen{hal: h, close: h.closer(keyScreen)}, nil
}

// OpenSound implements HAL.
func (h *SimHAL) OpenSound() (SoundDriver, error) {
	if err := h.open(keySound); err != nil {
		return nil, err
	}
	return &simSound{hal: h, close: h.closer(keySound)}, nil
}

// OpenButtons implements HAL.
func (h *SimHAL) OpenButtons() (ButtonsDriver, error) {
	if err := h.open(keyKeyboard); err != nil {
		return nil, err
	}
	return &simButtons{hal: h, close: h.closer(keyKeyboard)}, nil
}

// OpenBattery implements HAL.
func (h *SimHAL) OpenBattery() (BatteryDriver, error) {
	if err := h.open(keyBattery); err != nil {
		return nil, err
	}
	return &simBattery{hal: h, close: h.closer(keyBattery)}, nil
}

type simMotor struct {
	hal    *SimHAL
	close  func() error
	speed  int
	moving bool
	tacho  int
}

func (m *simMotor) SetSpeed(v int) {
	m.hal.mu.Lock()
	m.speed = v
	m.hal.mu.Unlock()
}

func (m *simMotor) Speed() int {
	m.hal.mu.Lock()
	defer m.hal.mu.Unlock()
	return m.speed
}

func (m *simMotor) Forward()  { m.setMoving(true) }
func (m *simMotor) Backward() { m.setMoving(true) }
func (m *simMotor) Stop(bool) { m.setMoving(false) }

func (m *simMotor) setMoving(v bool) {
	m.hal.mu.Lock()
	m.moving = v
	m.hal.mu.Unlock()
}

func (m *simMotor) Rotate(degrees int) {
	m.hal.mu.Lock()
	m.tacho += degrees
	m.hal.mu.Unlock()
}

func (m *simMotor) TachoCount() int {
	m.hal.mu.Lock()
	defer m.hal.mu.Unlock()
	return m.tacho
}

func (m *simMotor) IsMoving() bool {
	m.hal.mu.Lock()
	defer m.hal.mu.Unlock()
	return m.moving
}

func (m *simMotor) Close() error { return m.close() }

type simSensor struct {
	hal   *SimHAL
	port  string
	close func() error
}

func (s *simSensor) Sample(mode string) (float64, error) {
	s.hal.mu.Lock()
	defer s.hal.mu.Unlock()
	return s.hal.samples[s.port+"/"+mode], nil
}

func (s *simSensor) Close() error { return s.close() }

type simScreen struct {
	hal   *SimHAL
	close func() error
}

func (s *simScreen) Clear() {
	s.hal.mu.Lock()
	s.hal.text = nil
	s.hal.mu.Unlock()
}

func (s *simScreen) DrawText(text string, _, _ int) {
	s.hal.mu.Lock()
	s.hal.text = append(s.hal.text, text)
	s.hal.mu.Unlock()
}

func (s *simScreen) Close() error { return s.close() }

type simSound struct {
	hal   *SimHAL
	close func() error
}

func (s *simSound) PlayTone(int, int) {
	s.hal.mu.Lock()
	s.hal.tones++
	s.hal.mu.Unlock()
}

func (s *simSound) Beep()         { s.PlayTone(440, 100) }
func (s *simSound) SetVolume(int) {}
func (s *simSound) Close() error  { return s.close() }

type simButtons struct {
	hal   *SimHAL
	close func() error
}

func (b *simButtons) IsPressed(button string) bool {
	b.hal.mu.Lock()
	defer b.hal.mu.Unlock()
	return b.hal.pressed[button]
}

func (b *simButtons) SetLED(pattern int) {
	b.hal.mu.Lock()
	b.hal.led = pattern
	b.hal.mu.Unlock()
}

func (b *simButtons) Close() error { return b.close() }

type simBattery struct {
	hal   *SimHAL
	close func() error
}

func (b *simBattery) Voltage() float64 {
	b.hal.mu.Lock()
	defer b.hal.mu.Unlock()
	return b.hal.voltage
}

func (b *simBattery) Current() float64 { return 0.2 }
func (b *simBattery) Close() error     { return b.close() }
