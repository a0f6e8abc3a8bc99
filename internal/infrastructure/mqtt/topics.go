package mqtt

import "fmt"

// TopicPrefix is the root of every brickd topic.
const TopicPrefix = "brickd"

// Topics provides builders for brickd MQTT topics.
//
//	mqtt.Topics{}.DeviceEvent("S1") // "brickd/device/S1/event"
type Topics struct{}

// SystemStatus is the retained online/offline topic, also used for the LWT.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// DeviceEvent returns the lifecycle event topic of the device on port.
func (Topics) DeviceEvent(port string) string {
	return fmt.Sprintf("%s/device/%s/event", TopicPrefix, port)
}

// AllDeviceEvents matches the event topic of every port.
func (Topics) AllDeviceEvents() string {
	return TopicPrefix + "/device/+/event"
}

// ActionIn carries action messages from remote clients.
func (Topics) ActionIn() string {
	return TopicPrefix + "/action/in"
}

// ActionOut carries messages for remote clients.
func (Topics) ActionOut() string {
	return TopicPrefix + "/action/out"
}

// AllTopics matches every brickd topic.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
