package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSensor    = "sensor"
	MeasurementLinkState = "link_state"
)

// RecordSensor writes one numeric reading produced by a route transform.
// It satisfies bridge.SensorSink.
//
// Parameters:
//   - source: The socket link the reading arrived on
//   - key: The reading key, e.g. "sensor.living_temp_C"
//   - value: The numeric value
//   - ts: When the message carrying the reading was received
//
// Example:
//
//	client.RecordSensor("ha", "sensor.living_temp_C", 21.5, time.Now())
func (c *Client) RecordSensor(source, key string, value float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementSensor,
		map[string]string{
			"source": source,
			"key":    key,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	))
}

// WriteLinkState records one link's state at a health sample. The numeric
// connected field makes uptime graphs a simple mean over time.
func (c *Client) WriteLinkState(linkName, state string, connected bool, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	up := 0
	if connected {
		up = 1
	}
	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementLinkState,
		map[string]string{
			"link": linkName,
		},
		map[string]interface{}{
			"state":     state,
			"connected": up,
		},
		ts,
	))
}
