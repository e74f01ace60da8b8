package engine

import (
	"context"
	"fmt"

	"github.com/poolsync/poolsync-core/internal/codec"
	"github.com/poolsync/poolsync-core/internal/pool"
	"github.com/poolsync/poolsync-core/internal/profile"
)

// SetPower switches a device on or off.
func (e *Engine) SetPower(ctx context.Context, deviceID string, on bool) error {
	return e.writeFeature(ctx, deviceID, profile.FeaturePower, codec.BoolValue(on))
}

// SetAutoMode enables or disables schedule-driven operation.
func (e *Engine) SetAutoMode(ctx context.Context, deviceID string, on bool) error {
	return e.writeFeature(ctx, deviceID, profile.FeatureAutoMode, codec.BoolValue(on))
}

// SetSpeed sets a pump's speed as a percent; the codec maps it to the
// nearest discrete level the pump accepts.
func (e *Engine) SetSpeed(ctx context.Context, deviceID string, percent float64) error {
	return e.writeFeature(ctx, deviceID, profile.FeatureSpeedControl, codec.NumberValue(percent))
}

// SetPreset selects a heat pump preset mode.
func (e *Engine) SetPreset(ctx context.Context, deviceID string, preset int) error {
	return e.writeFeature(ctx, deviceID, profile.FeaturePresetModes, codec.NumberValue(float64(preset)))
}

// SetTargetTemperature sets the target water temperature in °C.
//
// Some units reject writes to the nominal target component and accept
// one of a handful of alternates instead; the profile carries that
// ordered list and the engine walks it until a write lands.
func (e *Engine) SetTargetTemperature(ctx context.Context, deviceID string, celsius float64) error {
	d, prof, err := e.controllable(deviceID)
	if err != nil {
		return err
	}
	fallback := prof.FeatureFallback(profile.FeatureTemperature)
	if len(fallback) == 0 {
		return fmt.Errorf("%w: temperature on %s", ErrUnsupportedCommand, deviceID)
	}

	// Every component in the fallback list shares the primary's
	// scaled encoding, so encode once (plausibility enforced) and
	// retry the same raw value down the list.
	value := codec.NumberValue(celsius)
	encoded, err := codec.Encode(prof.Codec, fallback[0], value)
	if err != nil {
		return fmt.Errorf("encoding target temperature for %s: %w", deviceID, err)
	}

	var lastErr error
	for _, componentID := range fallback {
		if err := e.write(ctx, d, componentID, value, encoded); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("setting target temperature on %s: %w", deviceID, lastErr)
}

// SetChlorinationLevel sets the chlorinator output percent.
func (e *Engine) SetChlorinationLevel(ctx context.Context, deviceID string, percent float64) error {
	return e.writeFeature(ctx, deviceID, profile.FeatureChlorination, codec.NumberValue(percent))
}

// SetPHSetpoint sets the pH dosing target.
func (e *Engine) SetPHSetpoint(ctx context.Context, deviceID string, ph float64) error {
	return e.writeFeature(ctx, deviceID, profile.FeaturePHSetpoint, codec.NumberValue(ph))
}

// SetORPSetpoint sets the ORP target in mV.
func (e *Engine) SetORPSetpoint(ctx context.Context, deviceID string, mv float64) error {
	return e.writeFeature(ctx, deviceID, profile.FeatureORPSetpoint, codec.NumberValue(mv))
}

// SetBoost enables or disables chlorinator boost mode.
func (e *Engine) SetBoost(ctx context.Context, deviceID string, on bool) error {
	return e.writeFeature(ctx, deviceID, profile.FeatureBoostMode, codec.BoolValue(on))
}

// SetBrightness sets a light's brightness percent.
func (e *Engine) SetBrightness(ctx context.Context, deviceID string, percent float64) error {
	return e.writeFeature(ctx, deviceID, profile.FeatureBrightness, codec.NumberValue(percent))
}

// SetColor sets a light's RGBW color.
func (e *Engine) SetColor(ctx context.Context, deviceID string, color codec.Color) error {
	return e.writeFeature(ctx, deviceID, profile.FeatureColor, codec.ColorValue(color))
}

// SetSchedules replaces a device's schedule slots. The given slots are
// validated for same-day overlap, padded to the full fixed set, and
// written in one call.
func (e *Engine) SetSchedules(ctx context.Context, deviceID string, schedules []codec.Schedule) error {
	d, prof, err := e.controllable(deviceID)
	if err != nil {
		return err
	}
	componentID, ok := prof.FeatureComponent(profile.FeatureSchedules)
	if !ok {
		return fmt.Errorf("%w: schedules on %s", ErrUnsupportedCommand, deviceID)
	}
	if err := validateSchedules(schedules); err != nil {
		return err
	}

	padded := codec.PadSchedules(schedules)
	value := codec.SchedulesValue(padded)
	key := Key{DeviceID: d.ID, Component: componentID}

	e.optimistic.Register(key, value)
	err = e.gateway.WriteSchedules(ctx, d.ID, componentID, codec.WireSchedules(padded))
	e.logCommand(d.ID, componentID, value, err)
	if err != nil {
		e.optimistic.Unregister(key)
		return err
	}
	e.projectValue(d.ID, componentID, value)
	return nil
}

// ClearSchedules disables every slot.
func (e *Engine) ClearSchedules(ctx context.Context, deviceID string) error {
	return e.SetSchedules(ctx, deviceID, nil)
}

// writeFeature resolves the feature's write component and performs a
// guarded optimistic write.
func (e *Engine) writeFeature(ctx context.Context, deviceID, feature string, value codec.Value) error {
	d, prof, err := e.controllable(deviceID)
	if err != nil {
		return err
	}
	componentID, ok := prof.FeatureComponent(feature)
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedCommand, feature, deviceID)
	}
	encoded, err := codec.Encode(prof.Codec, componentID, value)
	if err != nil {
		return fmt.Errorf("encoding %s for %s: %w", feature, deviceID, err)
	}
	return e.write(ctx, d, componentID, value, encoded)
}

// write registers the optimistic shadow, performs the remote write and
// projects the value into the store. A failed write clears the shadow
// so the next cycle restores cloud truth.
func (e *Engine) write(ctx context.Context, d *pool.Device, componentID int, value codec.Value, encoded any) error {
	key := Key{DeviceID: d.ID, Component: componentID}

	e.optimistic.Register(key, value)
	err := e.gateway.WriteComponent(ctx, d.ID, componentID, encoded)
	e.logCommand(d.ID, componentID, value, err)
	if err != nil {
		e.optimistic.Unregister(key)
		return err
	}
	e.projectValue(d.ID, componentID, value)
	return nil
}

// logCommand hands a write outcome to the registered hook, if any.
func (e *Engine) logCommand(deviceID string, componentID int, value codec.Value, err error) {
	e.listenerMu.RLock()
	fn := e.commandLog
	e.listenerMu.RUnlock()
	if fn != nil {
		fn(deviceID, componentID, value.String(), err)
	}
}

// projectValue writes the commanded value into the store immediately
// so readers see it without waiting for the next cycle.
func (e *Engine) projectValue(deviceID string, componentID int, value codec.Value) {
	_ = e.store.UpdateDevice(deviceID, func(d *pool.Device) {
		if d.Values == nil {
			d.Values = make(map[int]codec.Value)
		}
		d.Values[componentID] = value
	})
}

// controllable resolves a device and checks it accepts commands.
func (e *Engine) controllable(deviceID string) (*pool.Device, *profile.Profile, error) {
	d, err := e.store.Device(deviceID)
	if err != nil {
		return nil, nil, err
	}
	if !d.Controllable() {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotControllable, deviceID)
	}
	return d, d.Profile, nil
}

// validateSchedules rejects enabled slots whose windows overlap on a
// shared day.
func validateSchedules(schedules []codec.Schedule) error {
	type window struct {
		days       []int
		start, end int
	}
	windows := make([]window, 0, len(schedules))
	for _, s := range schedules {
		if !s.Enabled {
			continue
		}
		startH, startM, ok := codec.ParseCronClock(s.StartTime)
		if !ok {
			return fmt.Errorf("engine: schedule %d has invalid start %q", s.ID, s.StartTime)
		}
		endH, endM, ok := codec.ParseCronClock(s.EndTime)
		if !ok {
			return fmt.Errorf("engine: schedule %d has invalid end %q", s.ID, s.EndTime)
		}
		windows = append(windows, window{
			days:  codec.CronDays(s.StartTime),
			start: startH*60 + startM,
			end:   endH*60 + endM,
		})
	}

	for i := 0; i < len(windows); i++ {
		for j := i + 1; j < len(windows); j++ {
			if !shareDay(windows[i].days, windows[j].days) {
				continue
			}
			if windows[i].start < windows[j].end && windows[j].start < windows[i].end {
				return ErrScheduleOverlap
			}
		}
	}
	return nil
}

func shareDay(a, b []int) bool {
	for _, d := range a {
		if containsDay(b, d) {
			return true
		}
	}
	return false
}
