package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poolsync/poolsync-core/internal/codec"
	"github.com/poolsync/poolsync-core/internal/fluidra"
	"github.com/poolsync/poolsync-core/internal/pool"
	"github.com/poolsync/poolsync-core/internal/profile"
	"github.com/poolsync/poolsync-core/internal/resilience"
)

// DefaultPollInterval is the cycle period when config does not set one.
const DefaultPollInterval = 30 * time.Second

// Gateway is the remote API surface the engine drives. Satisfied by
// *fluidra.Gateway; tests substitute a fake.
type Gateway interface {
	ListPools(ctx context.Context) ([]fluidra.PoolSummary, error)
	PoolDetails(ctx context.Context, poolID string) (*fluidra.PoolDetails, error)
	PoolStatus(ctx context.Context, poolID string) (*fluidra.PoolStatus, error)
	Devices(ctx context.Context, poolID string) ([]fluidra.DeviceInfo, error)
	ReadComponent(ctx context.Context, deviceID string, componentID int) (codec.Record, bool, error)
	WriteComponent(ctx context.Context, deviceID string, componentID int, value any) error
	WriteSchedules(ctx context.Context, deviceID string, componentID int, slots []codec.ScheduleSlot) error
	WaterQuality(ctx context.Context, poolID string) (*fluidra.WaterQualityReport, error)
}

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CycleResult summarizes one completed poll cycle for listeners
// (history, platform bridge, metrics).
type CycleResult struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration

	Pools          int
	Devices        int
	DevicesSkipped int
	DevicesFailed  int
}

// CommandLogFunc receives the outcome of every remote write: the
// target, the component, the rendered value and the error (nil on
// success).
type CommandLogFunc func(deviceID string, componentID int, value string, err error)

// ScheduleCleanupFunc is invoked when a device's schedule count
// decreases between cycles, so the host side can drop entities for
// slots that no longer exist.
type ScheduleCleanupFunc func(deviceID string, before, after int)

// Engine reconciles cloud state into the store on a fixed period and
// executes commands.
type Engine struct {
	gateway    Gateway
	registry   *profile.Registry
	store      *pool.Store
	optimistic *OptimisticState

	interval time.Duration
	logger   Logger
	now      func() time.Time

	// cycleMu serializes cycles; TryLock keeps manual refreshes from
	// overlapping the periodic one.
	cycleMu sync.Mutex

	listenerMu      sync.RWMutex
	listeners       []func(CycleResult)
	scheduleCleanup ScheduleCleanupFunc
	commandLog      CommandLogFunc
}

// Config carries the engine's tunables.
type Config struct {
	Interval         time.Duration
	OptimisticWindow time.Duration
}

// New creates an engine over the given gateway, profile registry and
// state store.
func New(gateway Gateway, registry *profile.Registry, store *pool.Store, cfg Config) *Engine {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Engine{
		gateway:    gateway,
		registry:   registry,
		store:      store,
		optimistic: NewOptimisticState(cfg.OptimisticWindow),
		interval:   interval,
		logger:     noopLogger{},
		now:        time.Now,
	}
}

// SetLogger sets the engine logger.
func (e *Engine) SetLogger(l Logger) { e.logger = l }

// Store returns the state store the engine writes into.
func (e *Engine) Store() *pool.Store { return e.store }

// OnCommand registers the command log hook, invoked after every remote
// write with its outcome.
func (e *Engine) OnCommand(fn CommandLogFunc) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	e.commandLog = fn
}

// OnScheduleShrink registers the schedule cleanup hook.
func (e *Engine) OnScheduleShrink(fn ScheduleCleanupFunc) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	e.scheduleCleanup = fn
}

// AddListener registers a callback invoked after every completed
// cycle. Callbacks run on the polling goroutine and must be quick.
func (e *Engine) AddListener(fn func(CycleResult)) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// RegisterOptimistic shadows a component value for the optimistic
// window.
func (e *Engine) RegisterOptimistic(key Key, value codec.Value) {
	e.optimistic.Register(key, value)
}

// UnregisterOptimistic clears a shadow entry.
func (e *Engine) UnregisterOptimistic(key Key) {
	e.optimistic.Unregister(key)
}

// HasOptimistic reports whether any shadow entry is live.
func (e *Engine) HasOptimistic() bool {
	return e.optimistic.Len() > 0
}

// PoolState is one pool with its devices, as returned by Snapshot.
type PoolState struct {
	Pool    *pool.Pool     `json:"pool"`
	Devices []*pool.Device `json:"devices"`
}

// Snapshot returns the merged state of every pool, keyed by pool id.
func (e *Engine) Snapshot() map[string]*PoolState {
	out := make(map[string]*PoolState)
	for _, p := range e.store.Pools() {
		devices, err := e.store.PoolDevices(p.ID)
		if err != nil {
			continue
		}
		out[p.ID] = &PoolState{Pool: p, Devices: devices}
	}
	return out
}

// Run polls until the context is cancelled. The first cycle starts
// immediately.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		if err := e.RunCycle(ctx); err != nil {
			e.logger.Error("poll cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle executes one reconciliation cycle. Returns ErrCycleRunning
// when a cycle is already in flight, fluidra.ErrAuth when the
// credential is rejected, and ErrUpdateFailed when the cycle could not
// reach the account at all; per-device failures are contained and
// logged, not returned.
func (e *Engine) RunCycle(ctx context.Context) error {
	if !e.cycleMu.TryLock() {
		return ErrCycleRunning
	}
	defer e.cycleMu.Unlock()

	started := e.now()
	result := CycleResult{ID: uuid.NewString(), StartedAt: started}

	pools, err := e.gateway.ListPools(ctx)
	if err != nil {
		if errors.Is(err, fluidra.ErrAuth) {
			return err
		}
		return fmt.Errorf("%w: listing pools: %w", ErrUpdateFailed, err)
	}

	for _, summary := range pools {
		if err := e.reconcilePool(ctx, summary, &result); err != nil {
			// Only auth failures propagate: every remaining request
			// would be rejected the same way.
			return err
		}
		result.Pools++
	}

	result.Duration = e.now().Sub(started)
	e.logger.Info("poll cycle complete",
		"cycle", result.ID,
		"pools", result.Pools,
		"devices", result.Devices,
		"skipped", result.DevicesSkipped,
		"failed", result.DevicesFailed,
		"duration", result.Duration,
	)
	e.notify(result)
	return nil
}

func (e *Engine) notify(result CycleResult) {
	e.listenerMu.RLock()
	listeners := e.listeners
	e.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(result)
	}
}

// reconcilePool merges one pool's details, status, water quality and
// devices. Partial failures keep the last known values and continue.
func (e *Engine) reconcilePool(ctx context.Context, summary fluidra.PoolSummary, result *CycleResult) error {
	current, err := e.store.Pool(summary.ID)
	if err != nil {
		current = &pool.Pool{ID: summary.ID}
	}
	current.Name = summary.Name

	details, err := e.gateway.PoolDetails(ctx, summary.ID)
	switch {
	case errors.Is(err, fluidra.ErrAuth):
		return err
	case err != nil:
		e.logger.Warn("pool details unavailable", "pool", summary.ID, "error", err)
	default:
		if details.Name != "" {
			current.Name = details.Name
		}
		current.City = details.Address.City
		current.Country = details.Address.Country
		current.PostalCode = details.Address.PostalCode
		current.Timezone = details.Address.TimeZone
	}

	status, err := e.gateway.PoolStatus(ctx, summary.ID)
	switch {
	case errors.Is(err, fluidra.ErrAuth):
		return err
	case err != nil:
		e.logger.Warn("pool status unavailable", "pool", summary.ID, "error", err)
	default:
		current.Online = status.Online
		current.Status = status.Status
	}

	quality, err := e.gateway.WaterQuality(ctx, summary.ID)
	switch {
	case errors.Is(err, fluidra.ErrAuth):
		return err
	case err != nil:
		e.logger.Warn("water quality unavailable", "pool", summary.ID, "error", err)
	default:
		if quality != nil {
			current.WaterQuality = &pool.WaterQuality{
				Temperature:  quality.Temperature,
				PH:           quality.PH,
				ORP:          quality.ORP,
				FreeChlorine: quality.FreeChlorine,
				Status:       quality.Status,
				SampledAt:    e.now(),
			}
		}
	}

	e.store.UpsertPool(current)

	devices, err := e.gateway.Devices(ctx, summary.ID)
	switch {
	case errors.Is(err, fluidra.ErrAuth):
		return err
	case err != nil:
		// Discovery failure: keep every known device's cached state.
		e.logger.Warn("device discovery failed", "pool", summary.ID, "error", err)
		return nil
	}

	loc := e.poolLocation(current)
	seen := make(map[string]bool, len(devices))
	for _, info := range devices {
		seen[info.ID] = true
		if err := e.reconcileDevice(ctx, summary.ID, info, loc, result); err != nil {
			return err
		}
	}

	// Devices that vanished from discovery are dropped.
	known, _ := e.store.PoolDevices(summary.ID)
	for _, d := range known {
		if !seen[d.ID] {
			e.logger.Info("device disappeared from discovery", "device", d.ID)
			e.store.RemoveDevice(d.ID)
		}
	}
	return nil
}

// poolLocation resolves the pool's timezone for wall-clock derived
// fields, falling back to the host's local zone.
func (e *Engine) poolLocation(p *pool.Pool) *time.Location {
	if p.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		e.logger.Warn("unknown pool timezone", "pool", p.ID, "timezone", p.Timezone)
		return time.Local
	}
	return loc
}

// sameIdentity reports whether a stored device's raw identity strings
// still match a fresh discovery.
func sameIdentity(d *pool.Device, info fluidra.DeviceInfo) bool {
	return d.Name == info.Name && d.Family == info.Family && d.Model == info.Model
}

// reconcileDevice classifies and rescans one device. Errors other
// than auth are absorbed here: the device keeps its last known state
// and is retried next cycle.
func (e *Engine) reconcileDevice(ctx context.Context, poolID string, info fluidra.DeviceInfo, loc *time.Location, result *CycleResult) error {
	existing, err := e.store.Device(info.ID)
	if err != nil {
		existing = nil
	}

	// The profile sticks until the vendor's raw identity strings
	// change; a firmware update that renames the family re-classifies.
	var prof *profile.Profile
	if existing != nil && existing.Profile != nil && sameIdentity(existing, info) {
		prof = existing.Profile
	} else {
		prof, err = e.registry.Classify(profile.Identity{
			DeviceID:   info.ID,
			Name:       info.Name,
			Family:     info.Family,
			Model:      info.Model,
			TypeHint:   info.Type,
			Components: info.Components,
		})
		switch {
		case errors.Is(err, profile.ErrBridge):
			return nil
		case errors.Is(err, profile.ErrUnsupported):
			e.logger.Info("device not classified, kept visible without controls",
				"device", info.ID, "family", info.Family, "type", info.Type)
			prof = nil
		}
	}

	if e.optimistic.DeviceShadowed(info.ID) {
		e.logger.Debug("device shadowed by pending command, skipping", "device", info.ID)
		result.DevicesSkipped++
		return nil
	}

	device := &pool.Device{
		ID:       info.ID,
		PoolID:   poolID,
		Name:     info.Name,
		Family:   info.Family,
		Model:    info.Model,
		Type:     info.Type,
		Serial:   info.Serial,
		Firmware: info.Firmware,
		ParentID: info.ParentID,
		Profile:  prof,
	}
	if prof != nil {
		device.ProfileName = prof.Name
	}
	if existing != nil {
		device.Components = existing.Components
		device.Values = existing.Values
		device.Connected = existing.Connected
		device.LastSeen = existing.LastSeen
	}

	if prof == nil {
		e.store.UpsertDevice(device)
		result.Devices++
		return nil
	}

	components := make(map[int]codec.Record)
	values := make(map[int]codec.Value)
	var readOK, readFailed int

	for _, componentID := range prof.ScanComponents() {
		rec, ok, err := e.gateway.ReadComponent(ctx, info.ID, componentID)
		switch {
		case errors.Is(err, fluidra.ErrAuth):
			return err
		case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrRateLimited):
			// Every further read in this scan would be rejected the
			// same way without touching the network.
			e.failDevice(device, existing, err, result)
			return nil
		case err != nil:
			// One bad component must not cost the rest of the scan.
			readFailed++
			continue
		case !ok:
			// The unit does not expose this component.
			continue
		}
		readOK++
		components[componentID] = rec
		values[componentID] = codec.Decode(prof.Codec, componentID, rec)
	}

	if readOK == 0 {
		if readFailed > 0 {
			e.failDevice(device, existing, fmt.Errorf("all component reads failed"), result)
			return nil
		}
		// Reachable but nothing exposed: offline unit.
		device.Connected = false
		e.store.UpsertDevice(device)
		result.Devices++
		return nil
	}

	e.checkScheduleShrink(prof, existing, values)

	device.Components = components
	device.Values = values
	device.Connected = true
	device.LastSeen = e.now()
	device.LastError = ""
	device.EffectiveSpeed = effectiveSpeed(prof, values, e.now().In(loc))

	e.store.UpsertDevice(device)
	result.Devices++
	return nil
}

// failDevice preserves the last known state and records the failure.
func (e *Engine) failDevice(device *pool.Device, existing *pool.Device, cause error, result *CycleResult) {
	e.logger.Warn("device reconciliation failed", "device", device.ID, "error", cause)
	result.DevicesFailed++

	device.LastError = cause.Error()
	device.Connected = false
	if existing != nil {
		device.Components = existing.Components
		device.Values = existing.Values
		device.LastSeen = existing.LastSeen
		device.EffectiveSpeed = existing.EffectiveSpeed
	}
	e.store.UpsertDevice(device)
}

// checkScheduleShrink fires the cleanup hook when the slot count of
// the device's schedule component decreased since the last cycle.
func (e *Engine) checkScheduleShrink(prof *profile.Profile, existing *pool.Device, values map[int]codec.Value) {
	e.listenerMu.RLock()
	hook := e.scheduleCleanup
	e.listenerMu.RUnlock()
	if hook == nil || existing == nil || !prof.HasFeature(profile.FeatureSchedules) {
		return
	}

	componentID, _ := prof.FeatureComponent(profile.FeatureSchedules)
	before := enabledSchedules(existing.Value(componentID))
	after := enabledSchedules(values[componentID])
	if after < before {
		hook(existing.ID, before, after)
	}
}

// enabledSchedules counts the enabled slots of a schedules value.
func enabledSchedules(v codec.Value) int {
	if v.Kind != codec.KindSchedules {
		return 0
	}
	n := 0
	for _, s := range v.Schedules {
		if s.Enabled {
			n++
		}
	}
	return n
}

// effectiveSpeed derives the running speed percent for a pump in auto
// mode: the speed level of the schedule slot active at the given
// wall-clock time. Nil for anything else.
func effectiveSpeed(prof *profile.Profile, values map[int]codec.Value, now time.Time) *float64 {
	if !prof.HasFeature(profile.FeatureAutoMode) || !prof.HasFeature(profile.FeatureSchedules) {
		return nil
	}
	autoID, _ := prof.FeatureComponent(profile.FeatureAutoMode)
	auto, ok := values[autoID]
	if !ok || auto.Kind != codec.KindBool || !auto.Bool {
		return nil
	}
	schedID, _ := prof.FeatureComponent(profile.FeatureSchedules)
	sched, ok := values[schedID]
	if !ok || sched.Kind != codec.KindSchedules {
		return nil
	}

	active := activeSchedule(sched.Schedules, now)
	if active == nil {
		zero := 0.0
		return &zero
	}
	speed := codec.SpeedLevelPercent(active.Operation)
	return &speed
}

// activeSchedule returns the enabled schedule whose window covers the
// given time, honouring windows that wrap past midnight.
func activeSchedule(schedules []codec.Schedule, now time.Time) *codec.Schedule {
	day := remoteWeekday(now.Weekday())
	minutes := now.Hour()*60 + now.Minute()

	for i := range schedules {
		s := &schedules[i]
		if !s.Enabled {
			continue
		}
		startH, startM, ok := codec.ParseCronClock(s.StartTime)
		if !ok {
			continue
		}
		endH, endM, ok := codec.ParseCronClock(s.EndTime)
		if !ok {
			continue
		}
		start := startH*60 + startM
		end := endH*60 + endM

		if start < end {
			if containsDay(codec.CronDays(s.StartTime), day) && minutes >= start && minutes < end {
				return s
			}
			continue
		}
		// Overnight window: active from start on the listed day until
		// end the following morning.
		if containsDay(codec.CronDays(s.StartTime), day) && minutes >= start {
			return s
		}
		if containsDay(codec.CronDays(s.StartTime), previousRemoteDay(day)) && minutes < end {
			return s
		}
	}
	return nil
}

// remoteWeekday maps Go's weekday to the remote convention
// (Monday=1 … Sunday=7).
func remoteWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

func previousRemoteDay(day int) int {
	if day == 1 {
		return 7
	}
	return day - 1
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
