// Package influxdb records relay telemetry in InfluxDB v2.
//
// Two measurements are written, both carrying a gateway default tag:
//   - sensor: numeric readings produced by the ha_state route transform
//     (tags source and key, field value)
//   - link_state: each link's state at every health sample
//     (tag link, fields state and connected)
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Gateway.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.RecordSensor("ha", "sensor.living_temp_C", 21.5, time.Now())
//
// # Error Handling
//
// Writes are batched (batch_size, flush_interval) and never block the
// caller. Asynchronous failures are wrapped in ErrWriteFailed and passed to
// the SetOnError callback. Connect and HealthCheck return errors directly.
package influxdb
