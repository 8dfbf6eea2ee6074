// Package history records every fused sensor reading to InfluxDB for
// diagnostics. Readings are written even when the engine decides not to
// actuate, so degraded sensors stay visible.
package history

import (
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"

	"github.com/hydrosense/control-plane/internal/fusion"
)

// Sink is what the engine depends on; a nil sink disables history.
type Sink interface {
	WriteReading(deviceID string, zones []fusion.ZoneReading, result fusion.VotingResult, at time.Time)
}

// Config for the Influx connection.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Writer pushes readings through the async write API and tracks the last
// write error for the readiness probe.
type Writer struct {
	client influxdb2.Client
	api    api.WriteAPI
	log    *zap.Logger

	mu      sync.RWMutex
	lastErr time.Time
}

var _ Sink = (*Writer)(nil)

// NewWriter connects the async write API and starts the error listener.
func NewWriter(cfg Config, log *zap.Logger) *Writer {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	w := &Writer{
		client:  client,
		api:     writeAPI,
		log:     log,
		lastErr: time.Now().Add(-24 * time.Hour),
	}
	go func() {
		for err := range writeAPI.Errors() {
			if err != nil {
				w.mu.Lock()
				w.lastErr = time.Now()
				w.mu.Unlock()
				log.Warn("influx write error", zap.Error(err))
			}
		}
	}()
	return w
}

// WriteReading records one fused telemetry message.
func (w *Writer) WriteReading(deviceID string, zones []fusion.ZoneReading, result fusion.VotingResult, at time.Time) {
	fields := map[string]interface{}{
		"valid_sensors": result.ValidSensorCount,
		"dry_votes":     result.DryVotes,
		"wet_votes":     result.WetVotes,
		"median_raw":    result.MedianRawADC,
		"avg_moisture":  result.AvgMoisture,
		"majority_dry":  result.MajorityDry,
	}
	for _, z := range zones {
		suffix := zoneSuffix(z.ZoneIndex)
		fields["raw_"+suffix] = z.RawADC
		fields["moisture_"+suffix] = z.MoisturePercent
		fields["valid_"+suffix] = z.IsValid
	}
	tags := map[string]string{
		"device_id": deviceID,
		"health":    string(result.SensorHealth),
	}
	w.api.WritePoint(influxdb2.NewPoint("soil_reading", tags, fields, at))
}

// LastErrorAge reports how long ago the last write error happened.
func (w *Writer) LastErrorAge() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return time.Since(w.lastErr)
}

// Close flushes pending points and shuts the client down.
func (w *Writer) Close() {
	w.api.Flush()
	w.client.Close()
}

func zoneSuffix(i int) string {
	switch i {
	case 0:
		return "zone1"
	case 1:
		return "zone2"
	default:
		return "zone3"
	}
}
