package brick

import (
	"fmt"

	"github.com/nerrad567/brickd/internal/action"
)

// Kind tags the variant of a Device.
type Kind int

// Device kinds.
const (
	KindMediumMotor Kind = iota + 1
	KindLargeMotor
	KindColorSensor
	KindIRSensor
	KindTouchSensor
	KindUltrasonicSensor
	KindSoundSensor
	KindScreen
	KindSound
	KindKeyboard
	KindBattery
)

var kindNames = map[Kind]string{
	KindMediumMotor:      "medium-motor",
	KindLargeMotor:       "large-motor",
	KindColorSensor:      "color-sensor",
	KindIRSensor:         "ir-sensor",
	KindTouchSensor:      "touch-sensor",
	KindUltrasonicSensor: "ultrasonic-sensor",
	KindSoundSensor:      "sound-sensor",
	KindScreen:           "screen",
	KindSound:            "sound",
	KindKeyboard:         "keyboard",
	KindBattery:          "battery",
}

// String returns the kind name used in logs, events and metrics.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsMotor reports whether k is a motor kind.
func (k Kind) IsMotor() bool {
	return k == KindMediumMotor || k == KindLargeMotor
}

// IsSensor reports whether k occupies a sensor port.
func (k Kind) IsSensor() bool {
	switch k {
	case KindColorSensor, KindIRSensor, KindTouchSensor, KindUltrasonicSensor, KindSoundSensor:
		return true
	}
	return false
}

// SensorPort is a physical sensor input, 1 to 4.
type SensorPort int

// String returns the canonical name, "S1" to "S4".
func (p SensorPort) String() string {
	return fmt.Sprintf("S%d", int(p))
}

// MotorPort is a physical motor output, 'A' to 'D'.
type MotorPort byte

// String returns the port letter.
func (p MotorPort) String() string {
	return string(rune(p))
}

// ResolveSensorPort maps "1".."4" and "S1".."S4" to a physical port.
// Other names fail with an invalid-sensor-port error carrying the name.
func ResolveSensorPort(name string) (SensorPort, error) {
	switch name {
	case "1", "S1":
		return 1, nil
	case "2", "S2":
		return 2, nil
	case "3", "S3":
		return 3, nil
	case "4", "S4":
		return 4, nil
	}
	return 0, action.NewError(action.KindInvalidSensorPort, true, "port", name)
}

// ResolveMotorPort maps "A".."D" to a physical port.
// Other names fail with an invalid-motor-port error carrying the name.
func ResolveMotorPort(name string) (MotorPort, error) {
	switch name {
	case "A", "B", "C", "D":
		return MotorPort(name[0]), nil
	}
	return 0, action.NewError(action.KindInvalidMotorPort, true, "port", name)
}

// Cache keys for devices that have no port.
const (
	keyScreen   = "screen"
	keySound    = "sound"
	keyKeyboard = "keyboard"
	keyBattery  = "battery"
)
