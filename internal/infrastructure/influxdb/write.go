package influxdb

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/brickd/internal/brick"
)

// Measurement names.
const (
	MeasurementSensorReadings = "sensor_readings"
	MeasurementDeviceEvents   = "device_events"
)

// Record implements brick.Monitor: one sensor_readings point per reading,
// tagged with port, kind and mode.
func (c *Client) Record(r brick.Reading) {
	c.write(influxdb2.NewPointWithMeasurement(MeasurementSensorReadings).
		AddTag("port", r.Port).
		AddTag("kind", r.Kind.String()).
		AddTag("mode", r.Mode).
		AddField("value", r.Value).
		SetTime(stamp(r.Time)))
}

// OnDeviceEvent implements brick.Observer: one device_events point per
// acquire or release, with a count field so events can be summed.
func (c *Client) OnDeviceEvent(e brick.Event) {
	c.write(influxdb2.NewPointWithMeasurement(MeasurementDeviceEvents).
		AddTag("port", e.Port).
		AddTag("kind", e.Kind.String()).
		AddTag("event", string(e.Type)).
		AddField("count", 1).
		SetTime(stamp(e.Time)))
}

func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	p.SortTags()
	c.writeAPI.WritePoint(p)
	c.points.Add(1)
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
