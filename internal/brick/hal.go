package brick

// HAL is the boundary to the vendor device layer. Each Open call returns a
// driver that owns the underlying hardware until Close.
type HAL interface {
	OpenMotor(port MotorPort, kind Kind) (MotorDriver, error)
	OpenSensor(port SensorPort, kind Kind) (SensorDriver, error)
	OpenScreen() (ScreenDriver, error)
	OpenSound() (SoundDriver, error)
	OpenButtons() (ButtonsDriver, error)
	OpenBattery() (BatteryDriver, error)
}

// MotorDriver controls one regulated motor.
type MotorDriver interface {
	SetSpeed(degPerSec int)
	Speed() int
	Forward()
	Backward()
	Stop(brake bool)
	Rotate(degrees int)
	TachoCount() int
	IsMoving() bool
	Close() error
}

// SensorDriver reads samples from one sensor in a given mode.
type SensorDriver interface {
	Sample(mode string) (float64, error)
	Close() error
}

// ScreenDriver draws on the LCD.
type ScreenDriver interface {
	Clear()
	DrawText(text string, x, y int)
	Close() error
}

// SoundDriver drives the speaker.
type SoundDriver interface {
	Beep()
	PlayTone(frequency, durationMS int)
	SetVolume(percent int)
	Close() error
}

// ButtonsDriver reads the brick buttons and drives the button LED.
type ButtonsDriver interface {
	IsPressed(button string) bool
	SetLED(pattern int)
	Close() error
}

// BatteryDriver reports power readings.
type BatteryDriver interface {
	Voltage() float64
	Current() float64
	Close() error
}
