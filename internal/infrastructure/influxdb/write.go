package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteCaptureMetric records a completed capture run.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - connectionString: Device address the capture ran on
//   - mode: Capture mode as a string (e.g., "mode8", "mode16")
//   - samples: Number of samples returned by the device
//   - frequency: Configured sampling frequency in Hz
//   - duration: Wall-clock time from arm to completion
//
// Example:
//
//	client.WriteCaptureMetric("/dev/ttyACM0", "mode8", 100000, 1000000, elapsed)
func (c *Client) WriteCaptureMetric(connectionString, mode string, samples int, frequency uint32, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"capture",
		map[string]string{
			"device": connectionString,
			"mode":   mode,
		},
		map[string]interface{}{
			"samples":     samples,
			"frequency":   int64(frequency),
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteVoltageMetric records a device battery voltage reading.
//
// Parameters:
//   - connectionString: Device address the reading came from
//   - voltage: Parsed voltage in volts
func (c *Client) WriteVoltageMetric(connectionString string, voltage float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"voltage",
		map[string]string{
			"device": connectionString,
		},
		map[string]interface{}{
			"volts": voltage,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDetectionMetric records the outcome of a hardware scan.
//
// Parameters:
//   - detectorID: Which detector produced the result (e.g., "serial", "network")
//   - found: Number of devices the detector reported
//   - elapsed: How long the probe took
func (c *Client) WriteDetectionMetric(detectorID string, found int, elapsed time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"detection",
		map[string]string{
			"detector": detectorID,
		},
		map[string]interface{}{
			"devices_found": found,
			"elapsed_ms":    elapsed.Milliseconds(),
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
//	    map[string]string{"host": "bench-01"},
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
