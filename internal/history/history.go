package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/poolsync/poolsync-core/internal/codec"
	"github.com/poolsync/poolsync-core/internal/engine"
	"github.com/poolsync/poolsync-core/internal/pool"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 200
)

// DeviceStateEntry is one persisted device snapshot.
type DeviceStateEntry struct {
	ID         int64          `json:"id"`
	DeviceID   string         `json:"device_id"`
	PoolID     string         `json:"pool_id"`
	Profile    string         `json:"profile,omitempty"`
	Connected  bool           `json:"connected"`
	State      map[string]any `json:"state"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// WaterQualityEntry is one persisted pool chemistry report.
type WaterQualityEntry struct {
	ID           int64     `json:"id"`
	PoolID       string    `json:"pool_id"`
	Temperature  *float64  `json:"temperature,omitempty"`
	PH           *float64  `json:"ph,omitempty"`
	ORP          *float64  `json:"orp,omitempty"`
	FreeChlorine *float64  `json:"free_chlorine,omitempty"`
	Status       string    `json:"status,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// CommandEntry is one persisted command outcome.
type CommandEntry struct {
	ID          int64     `json:"id"`
	DeviceID    string    `json:"device_id"`
	ComponentID int       `json:"component_id"`
	Value       string    `json:"value"`
	Succeeded   bool      `json:"succeeded"`
	Error       string    `json:"error,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Recorder persists cycle snapshots and command outcomes to SQLite.
//
// It is safe for concurrent use; RecordCycle runs inside a single
// transaction so a cycle is captured whole or not at all.
type Recorder struct {
	db *sql.DB

	// lastSample tracks the newest chemistry sample written per pool,
	// so repeated polls of an unchanged report don't duplicate rows.
	mu         sync.Mutex
	lastSample map[string]time.Time

	now func() time.Time
}

// NewRecorder creates a recorder over an open database. The schema is
// expected to be in place (see migrations).
//
// Parameters:
//   - db: Open SQLite connection used for all statements
//
// Returns:
//   - *Recorder: Recorder ready for use
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{
		db:         db,
		lastSample: make(map[string]time.Time),
		now:        time.Now,
	}
}

// RecordCycle persists one completed reconciliation cycle: a state row
// per device, plus a chemistry row per pool when the sample is newer
// than the last one written.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - result: Cycle summary from the engine listener
//   - snapshot: Merged pool state, as returned by the engine
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *Recorder) RecordCycle(ctx context.Context, result engine.CycleResult, snapshot map[string]*engine.PoolState) error {
	recordedAt := r.now().UTC().Format(time.RFC3339)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting history transaction: %w", err)
	}
	defer tx.Rollback()

	for _, state := range snapshot {
		for _, device := range state.Devices {
			if err := r.insertDeviceState(ctx, tx, device, recordedAt); err != nil {
				return err
			}
		}
		if err := r.insertWaterQuality(ctx, tx, state.Pool, recordedAt); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing history transaction: %w", err)
	}
	return nil
}

func (r *Recorder) insertDeviceState(ctx context.Context, tx *sql.Tx, device *pool.Device, recordedAt string) error {
	stateJSON, err := json.Marshal(deviceState(device))
	if err != nil {
		return fmt.Errorf("marshalling device state: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO device_state_history (device_id, pool_id, profile, connected, state, recorded_at) VALUES (?, ?, ?, ?, ?, ?)",
		device.ID,
		device.PoolID,
		device.ProfileName,
		boolToInt(device.Connected),
		string(stateJSON),
		recordedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting device state history: %w", err)
	}
	return nil
}

func (r *Recorder) insertWaterQuality(ctx context.Context, tx *sql.Tx, p *pool.Pool, recordedAt string) error {
	if p == nil || p.WaterQuality == nil {
		return nil
	}

	r.mu.Lock()
	last, seen := r.lastSample[p.ID]
	fresh := !seen || p.WaterQuality.SampledAt.After(last)
	if fresh {
		r.lastSample[p.ID] = p.WaterQuality.SampledAt
	}
	r.mu.Unlock()
	if !fresh {
		return nil
	}

	wq := p.WaterQuality
	_, err := tx.ExecContext(ctx,
		"INSERT INTO water_quality_history (pool_id, temperature, ph, orp, free_chlorine, status, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		p.ID,
		wq.Temperature,
		wq.PH,
		wq.ORP,
		wq.FreeChlorine,
		wq.Status,
		recordedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting water quality history: %w", err)
	}
	return nil
}

// RecordCommand persists one command outcome. Intended as the engine's
// command log hook, so every write is captured whether it succeeded or
// not.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Target device identifier
//   - componentID: Component the command addressed
//   - value: Rendered command value
//   - cmdErr: Outcome of the write (nil means success)
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *Recorder) RecordCommand(ctx context.Context, deviceID string, componentID int, value string, cmdErr error) error {
	errText := ""
	if cmdErr != nil {
		errText = cmdErr.Error()
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO command_log (device_id, component_id, value, succeeded, error, issued_at) VALUES (?, ?, ?, ?, ?, ?)",
		deviceID,
		componentID,
		value,
		boolToInt(cmdErr == nil),
		errText,
		r.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}
	return nil
}

// DeviceHistory returns recent state snapshots for a device, newest
// first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Unique device identifier
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []DeviceStateEntry: Entries ordered by recorded_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *Recorder) DeviceHistory(ctx context.Context, deviceID string, limit int) ([]DeviceStateEntry, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, pool_id, profile, connected, state, recorded_at
		 FROM device_state_history
		 WHERE device_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device state history: %w", err)
	}
	defer rows.Close()

	entries := make([]DeviceStateEntry, 0, limit)
	for rows.Next() {
		var entry DeviceStateEntry
		var connected int
		var stateJSON string
		var recordedAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &entry.PoolID, &entry.Profile, &connected, &stateJSON, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning device state history: %w", err)
		}
		entry.Connected = connected != 0

		if err := json.Unmarshal([]byte(stateJSON), &entry.State); err != nil {
			return nil, fmt.Errorf("unmarshalling device state: %w", err)
		}

		timestamp, err := parseTimestamp(recordedAt)
		if err != nil {
			return nil, err
		}
		entry.RecordedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device state history: %w", err)
	}
	return entries, nil
}

// WaterQualityHistory returns recent chemistry rows for a pool, newest
// first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - poolID: Unique pool identifier
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []WaterQualityEntry: Entries ordered by recorded_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *Recorder) WaterQualityHistory(ctx context.Context, poolID string, limit int) ([]WaterQualityEntry, error) {
	if poolID == "" {
		return nil, fmt.Errorf("pool id is required")
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, pool_id, temperature, ph, orp, free_chlorine, status, recorded_at
		 FROM water_quality_history
		 WHERE pool_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		poolID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying water quality history: %w", err)
	}
	defer rows.Close()

	entries := make([]WaterQualityEntry, 0, limit)
	for rows.Next() {
		var entry WaterQualityEntry
		var status sql.NullString
		var recordedAt string

		if err := rows.Scan(&entry.ID, &entry.PoolID, &entry.Temperature, &entry.PH, &entry.ORP, &entry.FreeChlorine, &status, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning water quality history: %w", err)
		}
		entry.Status = status.String

		timestamp, err := parseTimestamp(recordedAt)
		if err != nil {
			return nil, err
		}
		entry.RecordedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating water quality history: %w", err)
	}
	return entries, nil
}

// CommandHistory returns recent command outcomes for a device, newest
// first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Unique device identifier
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []CommandEntry: Entries ordered by issued_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *Recorder) CommandHistory(ctx context.Context, deviceID string, limit int) ([]CommandEntry, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, component_id, value, succeeded, error, issued_at
		 FROM command_log
		 WHERE device_id = ?
		 ORDER BY issued_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	entries := make([]CommandEntry, 0, limit)
	for rows.Next() {
		var entry CommandEntry
		var succeeded int
		var errText sql.NullString
		var issuedAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &entry.ComponentID, &entry.Value, &succeeded, &errText, &issuedAt); err != nil {
			return nil, fmt.Errorf("scanning command log: %w", err)
		}
		entry.Succeeded = succeeded != 0
		entry.Error = errText.String

		timestamp, err := parseTimestamp(issuedAt)
		if err != nil {
			return nil, err
		}
		entry.IssuedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}
	return entries, nil
}

// Prune deletes rows older than the given duration from all three
// history tables.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Retention window (rows older than now-olderThan go)
//
// Returns:
//   - int64: Total rows deleted across the tables
//   - error: nil on success, otherwise the underlying database error
func (r *Recorder) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := r.now().UTC().Add(-olderThan).Format(time.RFC3339)
	var total int64

	for _, stmt := range []string{
		"DELETE FROM device_state_history WHERE recorded_at < ?",
		"DELETE FROM water_quality_history WHERE recorded_at < ?",
		"DELETE FROM command_log WHERE issued_at < ?",
	} {
		result, err := r.db.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning history: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += rowsAffected
	}

	return total, nil
}

// deviceState flattens a device's decoded component values into a JSON
// friendly map keyed by component id.
func deviceState(device *pool.Device) map[string]any {
	state := make(map[string]any, len(device.Values))
	for componentID, value := range device.Values {
		state[strconv.Itoa(componentID)] = valueJSON(value)
	}
	if device.EffectiveSpeed != nil {
		state["effective_speed"] = *device.EffectiveSpeed
	}
	return state
}

// valueJSON reduces a tagged value to the native type the snapshot
// stores.
func valueJSON(v codec.Value) any {
	switch v.Kind {
	case codec.KindBool:
		return v.Bool
	case codec.KindNumber:
		return v.Number
	case codec.KindText:
		return v.Text
	case codec.KindColor:
		return map[string]uint8{"r": v.Color.R, "g": v.Color.G, "b": v.Color.B, "w": v.Color.W}
	case codec.KindSchedules:
		return v.Schedules
	default:
		return nil
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// parseTimestamp parses a timestamp stored in SQLite. Rows written by
// this package use RFC3339; rows defaulted by SQLite use its space
// separated form.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02 15:04:05", value)
	if fallbackErr == nil {
		return fallback.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
}
