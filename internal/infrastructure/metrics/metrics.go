package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poolsync/poolsync-core/internal/engine"
	"github.com/poolsync/poolsync-core/internal/resilience"
)

// Metrics holds every Prometheus collector the core exports.
type Metrics struct {
	registry *prometheus.Registry

	cyclesTotal    *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	lastCycleStamp prometheus.Gauge

	devicesReconciled prometheus.Gauge
	devicesSkipped    prometheus.Gauge
	devicesFailed     prometheus.Gauge

	commandsTotal *prometheus.CounterVec

	breakerState prometheus.Gauge

	deviceConnected *prometheus.GaugeVec
	effectiveSpeed  *prometheus.GaugeVec

	waterTemperature *prometheus.GaugeVec
	waterPH          *prometheus.GaugeVec
	waterORP         *prometheus.GaugeVec
	freeChlorine     *prometheus.GaugeVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poolsync_cycles_total",
			Help: "Total reconciliation cycles by outcome.",
		}, []string{"status"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "poolsync_cycle_duration_seconds",
			Help:    "Histogram of reconciliation cycle durations.",
			Buckets: prometheus.DefBuckets,
		}),
		lastCycleStamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poolsync_last_cycle_timestamp_seconds",
			Help: "Unix timestamp of the last completed cycle.",
		}),
		devicesReconciled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poolsync_devices_reconciled",
			Help: "Devices reconciled in the last cycle.",
		}),
		devicesSkipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poolsync_devices_skipped",
			Help: "Devices skipped in the last cycle (optimistic shadow active).",
		}),
		devicesFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poolsync_devices_failed",
			Help: "Devices that failed to reconcile in the last cycle.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poolsync_commands_total",
			Help: "Total device commands by outcome.",
		}, []string{"outcome"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poolsync_circuit_breaker_state",
			Help: "Vendor API circuit breaker state (0 closed, 1 open, 2 half-open).",
		}),
		deviceConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "poolsync_device_connected",
			Help: "Device connectivity (1 connected, 0 unreachable).",
		}, []string{"device_id", "profile"}),
		effectiveSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "poolsync_pump_effective_speed_percent",
			Help: "Derived pump speed in percent, schedule-aware.",
		}, []string{"device_id"}),
		waterTemperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "poolsync_water_temperature_celsius",
			Help: "Reported water temperature in Celsius.",
		}, []string{"pool_id"}),
		waterPH: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "poolsync_water_ph",
			Help: "Reported water pH.",
		}, []string{"pool_id"}),
		waterORP: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "poolsync_water_orp_millivolts",
			Help: "Reported oxidation-reduction potential in mV.",
		}, []string{"pool_id"}),
		freeChlorine: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "poolsync_water_free_chlorine_ppm",
			Help: "Reported free chlorine in ppm.",
		}, []string{"pool_id"}),
	}

	m.registry.MustRegister(
		m.cyclesTotal,
		m.cycleDuration,
		m.lastCycleStamp,
		m.devicesReconciled,
		m.devicesSkipped,
		m.devicesFailed,
		m.commandsTotal,
		m.breakerState,
		m.deviceConnected,
		m.effectiveSpeed,
		m.waterTemperature,
		m.waterPH,
		m.waterORP,
		m.freeChlorine,
	)

	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records one completed cycle. err is the cycle-level
// error, nil on success.
func (m *Metrics) ObserveCycle(result engine.CycleResult, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.cyclesTotal.WithLabelValues(status).Inc()
	m.cycleDuration.Observe(result.Duration.Seconds())
	m.lastCycleStamp.Set(float64(result.StartedAt.Add(result.Duration).Unix()))
	m.devicesReconciled.Set(float64(result.Devices))
	m.devicesSkipped.Set(float64(result.DevicesSkipped))
	m.devicesFailed.Set(float64(result.DevicesFailed))
}

// ObserveCommand records one command outcome. Signature matches the
// engine's command hook.
func (m *Metrics) ObserveCommand(deviceID string, componentID int, value string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.commandsTotal.WithLabelValues(outcome).Inc()
}

// ObserveBreaker mirrors the circuit breaker state into its gauge.
func (m *Metrics) ObserveBreaker(state resilience.CircuitState) {
	m.breakerState.Set(float64(state))
}

// ObserveSnapshot updates per-device and per-pool gauges from the
// merged state.
func (m *Metrics) ObserveSnapshot(snapshot map[string]*engine.PoolState) {
	for _, state := range snapshot {
		for _, device := range state.Devices {
			connected := 0.0
			if device.Connected {
				connected = 1
			}
			m.deviceConnected.WithLabelValues(device.ID, device.ProfileName).Set(connected)
			if device.EffectiveSpeed != nil {
				m.effectiveSpeed.WithLabelValues(device.ID).Set(*device.EffectiveSpeed)
			}
		}

		if state.Pool == nil || state.Pool.WaterQuality == nil {
			continue
		}
		wq := state.Pool.WaterQuality
		poolID := state.Pool.ID
		if wq.Temperature != nil {
			m.waterTemperature.WithLabelValues(poolID).Set(*wq.Temperature)
		}
		if wq.PH != nil {
			m.waterPH.WithLabelValues(poolID).Set(*wq.PH)
		}
		if wq.ORP != nil {
			m.waterORP.WithLabelValues(poolID).Set(*wq.ORP)
		}
		if wq.FreeChlorine != nil {
			m.freeChlorine.WithLabelValues(poolID).Set(*wq.FreeChlorine)
		}
	}
}
