// Package brick holds the shared hardware devices of the robot.
//
// A Brick caches one Device per physical port (motor ports A to D, sensor
// ports S1 to S4) and one per peripheral (screen, sound, keyboard,
// battery). Asking for a device of a different kind on an occupied port
// releases the old device first. ReleaseResources empties the cache, which
// the script runner does at the end of every script.
//
// Devices talk to hardware through the HAL interface. SimHAL is an
// in-memory implementation for machines without a brick attached.
//
// Lifecycle events go to an Observer and sensor readings to a Monitor;
// both default to no-ops.
package brick
