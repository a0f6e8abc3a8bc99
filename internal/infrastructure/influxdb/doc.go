// Package influxdb records brick telemetry in InfluxDB v2.
//
// Client implements brick.Monitor and brick.Observer, so it can be
// plugged straight into the brick:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	b.SetMonitor(client)
//
// Measurements:
//
//	sensor_readings  tags: port, kind, mode   fields: value
//	device_events    tags: port, kind, event  fields: count
//
// Writes go through the non-blocking batched write API. Write errors are
// delivered asynchronously to the SetOnError callback.
package influxdb
