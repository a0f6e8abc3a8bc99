// Package mqtt connects brickd to an MQTT broker.
//
// The broker is optional. When enabled it carries:
//   - the service status (retained, with a Last Will for crashes)
//   - device lifecycle events published by EventPublisher
//   - remote actions: Bridge feeds brickd/action/in into the dispatcher and
//     publishes replies on brickd/action/out
//
// Topic layout:
//
//	brickd/system/status        online/offline, retained
//	brickd/device/{port}/event  acquired/released
//	brickd/action/in            action messages from remote clients
//	brickd/action/out           replies and broadcasts for remote clients
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	bridge := mqtt.NewBridge(client, dispatcher, byte(cfg.MQTT.QoS))
//	if err := bridge.Start(); err != nil {
//	    return err
//	}
//
// Handlers run on paho's goroutines and are wrapped with panic recovery.
// Subscriptions are restored after a reconnect.
package mqtt
