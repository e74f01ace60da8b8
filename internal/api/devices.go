package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/poolsync/poolsync-core/internal/codec"
	"github.com/poolsync/poolsync-core/internal/engine"
	"github.com/poolsync/poolsync-core/internal/pool"
	"github.com/poolsync/poolsync-core/internal/profile"
)

// Command names accepted by the command endpoint. Each maps to one
// engine write operation; the request body is the bare JSON value for
// the command (true, 65, {"r":255,...}, or a schedule list).
const (
	CommandPower             = "power"
	CommandAutoMode          = "auto_mode"
	CommandSpeed             = "speed"
	CommandPreset            = "preset"
	CommandTargetTemperature = "target_temperature"
	CommandChlorination      = "chlorination_level"
	CommandPHSetpoint        = "ph_setpoint"
	CommandORPSetpoint       = "orp_setpoint"
	CommandBoost             = "boost"
	CommandBrightness        = "brightness"
	CommandColor             = "color"
	CommandSchedules         = "schedules"
)

// handleListDevices returns all devices, with optional query filters.
//
// Query parameters:
//   - pool_id: filter by pool
//   - profile: filter by resolved profile name
//   - connected: filter by connectivity ("true" or "false")
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.eng.Store().Devices()

	if poolID := r.URL.Query().Get("pool_id"); poolID != "" {
		devices = filterDevices(devices, func(d *pool.Device) bool { return d.PoolID == poolID })
	}
	if prof := r.URL.Query().Get("profile"); prof != "" {
		devices = filterDevices(devices, func(d *pool.Device) bool { return d.ProfileName == prof })
	}
	if conn := r.URL.Query().Get("connected"); conn != "" {
		want := conn == "true"
		devices = filterDevices(devices, func(d *pool.Device) bool { return d.Connected == want })
	}

	views := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		views = append(views, deviceView(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.eng.Store().Device(id)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, deviceView(d))
}

// handleDeviceHistory returns recorded state snapshots for a device,
// newest first.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		writeNotFound(w, "history recording is disabled")
		return
	}
	id := chi.URLParam(r, "id")

	if _, err := s.eng.Store().Device(id); err != nil {
		writeNotFound(w, "device not found")
		return
	}

	entries, err := s.hist.DeviceHistory(r.Context(), id, queryLimit(r))
	if err != nil {
		s.logger.Error("device history query failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to query device history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// handleCommandHistory returns the command audit log for a device,
// newest first.
func (s *Server) handleCommandHistory(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		writeNotFound(w, "history recording is disabled")
		return
	}
	id := chi.URLParam(r, "id")

	if _, err := s.eng.Store().Device(id); err != nil {
		writeNotFound(w, "device not found")
		return
	}

	entries, err := s.hist.CommandHistory(r.Context(), id, queryLimit(r))
	if err != nil {
		s.logger.Error("command history query failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to query command history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// handleCommand dispatches a device command to the engine.
//
// The body is the bare JSON value for the command: a boolean for
// power/auto_mode/boost, a number for levels and setpoints, an RGBW
// object for color, or a slot list for schedules.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	command := chi.URLParam(r, "command")

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.dispatchCommand(r, id, command, raw); err != nil {
		s.writeCommandError(w, id, command, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id": id,
		"command":   command,
		"accepted":  true,
	})
}

// handleGetSchedules returns the device's decoded schedule slots.
func (s *Server) handleGetSchedules(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.eng.Store().Device(id)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	v := d.FeatureValue(profile.FeatureSchedules)
	if v.Kind != codec.KindSchedules {
		writeJSON(w, http.StatusOK, map[string]any{"schedules": []any{}, "count": 0})
		return
	}

	views := make([]map[string]any, 0, len(v.Schedules))
	for _, sched := range v.Schedules {
		views = append(views, scheduleView(sched))
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": views, "count": len(views)})
}

// handleSetSchedules replaces the device's schedule slots. The body is
// a bare JSON array of slots.
func (s *Server) handleSetSchedules(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var bodies []scheduleBody
	if err := json.NewDecoder(r.Body).Decode(&bodies); err != nil {
		writeBadRequest(w, "invalid schedule list")
		return
	}

	schedules := make([]codec.Schedule, 0, len(bodies))
	for _, b := range bodies {
		schedules = append(schedules, b.schedule())
	}

	if err := s.eng.SetSchedules(r.Context(), id, schedules); err != nil {
		s.writeCommandError(w, id, CommandSchedules, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id": id,
		"command":   CommandSchedules,
		"accepted":  true,
	})
}

// handleClearSchedules removes every schedule slot from the device.
func (s *Server) handleClearSchedules(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.eng.ClearSchedules(r.Context(), id); err != nil {
		s.writeCommandError(w, id, CommandSchedules, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id": id,
		"command":   CommandSchedules,
		"accepted":  true,
	})
}

// dispatchCommand decodes the command value and invokes the matching
// engine operation.
func (s *Server) dispatchCommand(r *http.Request, deviceID, command string, raw json.RawMessage) error {
	ctx := r.Context()

	switch command {
	case CommandPower:
		on, err := parseBool(raw)
		if err != nil {
			return err
		}
		return s.eng.SetPower(ctx, deviceID, on)
	case CommandAutoMode:
		on, err := parseBool(raw)
		if err != nil {
			return err
		}
		return s.eng.SetAutoMode(ctx, deviceID, on)
	case CommandSpeed:
		n, err := parseNumber(raw)
		if err != nil {
			return err
		}
		return s.eng.SetSpeed(ctx, deviceID, n)
	case CommandPreset:
		n, err := parseNumber(raw)
		if err != nil {
			return err
		}
		return s.eng.SetPreset(ctx, deviceID, int(n))
	case CommandTargetTemperature:
		n, err := parseNumber(raw)
		if err != nil {
			return err
		}
		return s.eng.SetTargetTemperature(ctx, deviceID, n)
	case CommandChlorination:
		n, err := parseNumber(raw)
		if err != nil {
			return err
		}
		return s.eng.SetChlorinationLevel(ctx, deviceID, n)
	case CommandPHSetpoint:
		n, err := parseNumber(raw)
		if err != nil {
			return err
		}
		return s.eng.SetPHSetpoint(ctx, deviceID, n)
	case CommandORPSetpoint:
		n, err := parseNumber(raw)
		if err != nil {
			return err
		}
		return s.eng.SetORPSetpoint(ctx, deviceID, n)
	case CommandBoost:
		on, err := parseBool(raw)
		if err != nil {
			return err
		}
		return s.eng.SetBoost(ctx, deviceID, on)
	case CommandBrightness:
		n, err := parseNumber(raw)
		if err != nil {
			return err
		}
		return s.eng.SetBrightness(ctx, deviceID, n)
	case CommandColor:
		color, err := parseColor(raw)
		if err != nil {
			return err
		}
		return s.eng.SetColor(ctx, deviceID, color)
	case CommandSchedules:
		schedules, err := parseSchedules(raw)
		if err != nil {
			return err
		}
		return s.eng.SetSchedules(ctx, deviceID, schedules)
	default:
		return fmt.Errorf("%w: %s", errUnknownCommand, command)
	}
}

// errUnknownCommand marks a command name the dispatch table does not
// know.
var errUnknownCommand = errors.New("unknown command")

// errBadValue marks a command body that does not decode to the
// expected shape.
var errBadValue = errors.New("invalid command value")

// writeCommandError maps an engine error to the right HTTP response.
func (s *Server) writeCommandError(w http.ResponseWriter, deviceID, command string, err error) {
	switch {
	case errors.Is(err, errUnknownCommand), errors.Is(err, errBadValue):
		writeBadRequest(w, err.Error())
	case errors.Is(err, pool.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, engine.ErrNotControllable):
		writeConflict(w, ErrCodeUnavailable, "device is offline or unclassified")
	case errors.Is(err, engine.ErrUnsupportedCommand):
		writeConflict(w, ErrCodeUnsupported, fmt.Sprintf("device does not support %s", command))
	case errors.Is(err, engine.ErrScheduleOverlap):
		writeConflict(w, ErrCodeConflict, "schedule windows overlap")
	default:
		s.logger.Error("command failed", "device_id", deviceID, "command", command, "error", err)
		writeInternalError(w, "command failed")
	}
}

func parseBool(raw json.RawMessage) (bool, error) {
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, fmt.Errorf("%w: expected boolean", errBadValue)
	}
	return v, nil
}

func parseNumber(raw json.RawMessage) (float64, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: expected number", errBadValue)
	}
	return v, nil
}

// colorBody is the RGBW request shape. R, G and B are required; the
// white channel defaults to zero.
type colorBody struct {
	R *uint8 `json:"r"`
	G *uint8 `json:"g"`
	B *uint8 `json:"b"`
	W *uint8 `json:"w"`
}

func parseColor(raw json.RawMessage) (codec.Color, error) {
	var body colorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return codec.Color{}, fmt.Errorf("%w: expected RGBW object", errBadValue)
	}
	if body.R == nil || body.G == nil || body.B == nil {
		return codec.Color{}, fmt.Errorf("%w: r, g and b are required", errBadValue)
	}
	c := codec.Color{R: *body.R, G: *body.G, B: *body.B}
	if body.W != nil {
		c.W = *body.W
	}
	return c, nil
}

// scheduleBody is the request shape for one schedule slot. Operation
// rides alongside the wire fields because the codec keeps it off the
// slot's JSON form.
type scheduleBody struct {
	ID        int    `json:"id"`
	GroupID   int    `json:"group_id"`
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Operation int    `json:"operation"`
}

// schedule converts the request slot to the canonical form, rewriting
// days from the local convention (Sunday=0) to the vendor's (Sunday=7).
func (b scheduleBody) schedule() codec.Schedule {
	return codec.Schedule{
		ID:        b.ID,
		GroupID:   b.GroupID,
		Enabled:   b.Enabled,
		StartTime: codec.ConvertDaysLocalToRemote(b.StartTime),
		EndTime:   codec.ConvertDaysLocalToRemote(b.EndTime),
		Operation: b.Operation,
	}
}

func parseSchedules(raw json.RawMessage) ([]codec.Schedule, error) {
	var bodies []scheduleBody
	if err := json.Unmarshal(raw, &bodies); err != nil {
		return nil, fmt.Errorf("%w: expected schedule list", errBadValue)
	}
	schedules := make([]codec.Schedule, 0, len(bodies))
	for _, b := range bodies {
		schedules = append(schedules, b.schedule())
	}
	return schedules, nil
}

// filterDevices returns the devices matching the predicate.
func filterDevices(devices []*pool.Device, keep func(*pool.Device) bool) []*pool.Device {
	out := make([]*pool.Device, 0, len(devices))
	for _, d := range devices {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}
