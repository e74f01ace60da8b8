package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceMetric writes a single device measurement to InfluxDB.
//
// This is the primary method for recording device telemetry data.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "E30500883")
//   - measurement: The metric name (e.g., "speed_percent", "water_temperature_c")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteDeviceMetric("E30500883", "speed_percent", 65)
//	client.WriteDeviceMetric("LG2024001", "water_temperature_c", 27.5)
func (c *Client) WriteDeviceMetric(deviceID string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_metrics",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteWaterQuality writes one pool chemistry report.
//
// Absent metrics are omitted rather than written as zero, so gaps in
// the vendor data stay gaps in the series.
//
// Parameters:
//   - poolID: Pool identifier
//   - sampledAt: When the vendor sampled the report
//   - temperature, ph, orp, freeChlorine: Metrics (nil when unreported)
func (c *Client) WriteWaterQuality(poolID string, sampledAt time.Time, temperature, ph, orp, freeChlorine *float64) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{}
	if temperature != nil {
		fields["temperature_c"] = *temperature
	}
	if ph != nil {
		fields["ph"] = *ph
	}
	if orp != nil {
		fields["orp_mv"] = *orp
	}
	if freeChlorine != nil {
		fields["free_chlorine_ppm"] = *freeChlorine
	}
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"water_quality",
		map[string]string{
			"pool_id": poolID,
		},
		fields,
		sampledAt,
	)

	c.writeAPI.WritePoint(point)
}

// WriteCycleMetric writes one reconciliation cycle summary.
//
// Used for tracking poll health over time: duration and how many
// devices reconciled, skipped or failed.
//
// Parameters:
//   - cycleID: Cycle identifier
//   - durationMs: Cycle wall time in milliseconds
//   - devices, skipped, failed: Device counts for the cycle
func (c *Client) WriteCycleMetric(cycleID string, durationMs int64, devices, skipped, failed int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"poll_cycle",
		map[string]string{
			"cycle_id": cycleID,
		},
		map[string]interface{}{
			"duration_ms":     durationMs,
			"devices":         devices,
			"devices_skipped": skipped,
			"devices_failed":  failed,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
