package api

import (
	"time"

	"github.com/poolsync/poolsync-core/internal/codec"
	"github.com/poolsync/poolsync-core/internal/engine"
	"github.com/poolsync/poolsync-core/internal/pool"
)

// deviceView renders a device for API responses and WebSocket events:
// identity and health fields plus the decoded value of every feature
// the profile declares. Features whose value has never been read are
// omitted rather than rendered as null.
func deviceView(d *pool.Device) map[string]any {
	view := map[string]any{
		"id":        d.ID,
		"pool_id":   d.PoolID,
		"name":      d.Name,
		"connected": d.Connected,
	}
	if d.Family != "" {
		view["family"] = d.Family
	}
	if d.Model != "" {
		view["model"] = d.Model
	}
	if d.Type != "" {
		view["type"] = d.Type
	}
	if d.Serial != "" {
		view["serial"] = d.Serial
	}
	if d.Firmware != "" {
		view["firmware"] = d.Firmware
	}
	if d.ParentID != "" {
		view["parent_id"] = d.ParentID
	}
	if d.ProfileName != "" {
		view["profile"] = d.ProfileName
	}
	if !d.LastSeen.IsZero() {
		view["last_seen"] = d.LastSeen.UTC().Format(time.RFC3339)
	}
	if d.LastError != "" {
		view["last_error"] = d.LastError
	}
	if !d.UpdatedAt.IsZero() {
		view["updated_at"] = d.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if d.EffectiveSpeed != nil {
		view["effective_speed"] = *d.EffectiveSpeed
	}

	features := map[string]any{}
	if d.Profile != nil {
		for name := range d.Profile.Features {
			v := d.FeatureValue(name)
			if v.IsAbsent() {
				continue
			}
			features[name] = valueJSON(v)
		}
	}
	view["features"] = features

	return view
}

// poolView renders a pool without its embedded devices.
func poolView(p *pool.Pool) map[string]any {
	view := map[string]any{
		"id":         p.ID,
		"name":       p.Name,
		"online":     p.Online,
		"device_ids": p.DeviceIDs,
	}
	if p.Status != "" {
		view["status"] = p.Status
	}
	if p.City != "" {
		view["city"] = p.City
	}
	if p.Country != "" {
		view["country"] = p.Country
	}
	if p.Timezone != "" {
		view["timezone"] = p.Timezone
	}
	if p.WaterQuality != nil {
		view["water_quality"] = qualityView(p.WaterQuality)
	}
	if !p.UpdatedAt.IsZero() {
		view["updated_at"] = p.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return view
}

// qualityView renders a chemistry assessment, omitting absent metrics.
func qualityView(q *pool.WaterQuality) map[string]any {
	view := map[string]any{
		"sampled_at": q.SampledAt.UTC().Format(time.RFC3339),
	}
	if q.Status != "" {
		view["status"] = q.Status
	}
	if q.Temperature != nil {
		view["temperature_c"] = *q.Temperature
	}
	if q.PH != nil {
		view["ph"] = *q.PH
	}
	if q.ORP != nil {
		view["orp_mv"] = *q.ORP
	}
	if q.FreeChlorine != nil {
		view["free_chlorine_ppm"] = *q.FreeChlorine
	}
	return view
}

// cycleView renders a poll cycle summary.
func cycleView(result engine.CycleResult) map[string]any {
	return map[string]any{
		"cycle_id":    result.ID,
		"started_at":  result.StartedAt.UTC().Format(time.RFC3339),
		"duration_ms": result.Duration.Milliseconds(),
		"pools":       result.Pools,
		"devices":     result.Devices,
		"skipped":     result.DevicesSkipped,
		"failed":      result.DevicesFailed,
	}
}

// scheduleView renders a schedule slot, restoring the speed level the
// codec keeps off the wire form and rewriting slot days to the local
// convention (Sunday=0) for API consumers.
func scheduleView(sched codec.Schedule) map[string]any {
	return map[string]any{
		"id":         sched.ID,
		"group_id":   sched.GroupID,
		"enabled":    sched.Enabled,
		"start_time": codec.ConvertDaysRemoteToLocal(sched.StartTime),
		"end_time":   codec.ConvertDaysRemoteToLocal(sched.EndTime),
		"operation":  sched.Operation,
	}
}

// valueJSON converts a decoded value to its JSON representation.
func valueJSON(v codec.Value) any {
	switch v.Kind {
	case codec.KindBool:
		return v.Bool
	case codec.KindNumber:
		return v.Number
	case codec.KindText:
		return v.Text
	case codec.KindColor:
		return map[string]any{
			"r": v.Color.R,
			"g": v.Color.G,
			"b": v.Color.B,
			"w": v.Color.W,
		}
	case codec.KindSchedules:
		out := make([]map[string]any, 0, len(v.Schedules))
		for _, sched := range v.Schedules {
			out = append(out, scheduleView(sched))
		}
		return out
	default:
		return nil
	}
}
