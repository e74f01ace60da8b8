package platform

import (
	"time"

	"github.com/poolsync/poolsync-core/internal/codec"
	"github.com/poolsync/poolsync-core/internal/engine"
	"github.com/poolsync/poolsync-core/internal/pool"
)

// devicePayload renders one device for its retained state topic.
// Feature names come from the resolved profile, so consumers see
// "power": true rather than raw component ids.
func devicePayload(d *pool.Device) map[string]any {
	payload := map[string]any{
		"device_id": d.ID,
		"pool_id":   d.PoolID,
		"name":      d.Name,
		"profile":   d.ProfileName,
		"connected": d.Connected,
	}
	if d.LastError != "" {
		payload["last_error"] = d.LastError
	}
	if !d.LastSeen.IsZero() {
		payload["last_seen"] = d.LastSeen.UTC().Format(time.RFC3339)
	}
	if d.EffectiveSpeed != nil {
		payload["effective_speed"] = *d.EffectiveSpeed
	}

	if d.Profile != nil {
		features := make(map[string]any, len(d.Profile.Features))
		for name := range d.Profile.Features {
			if value := d.FeatureValue(name); !value.IsAbsent() {
				features[name] = valueJSON(value)
			}
		}
		payload["features"] = features
	}
	return payload
}

// poolPayload renders pool-level status for its retained state topic.
func poolPayload(p *pool.Pool) map[string]any {
	return map[string]any{
		"pool_id":  p.ID,
		"name":     p.Name,
		"online":   p.Online,
		"status":   p.Status,
		"timezone": p.Timezone,
		"devices":  len(p.DeviceIDs),
	}
}

// qualityPayload renders the chemistry report. Absent metrics are
// omitted rather than published as zero.
func qualityPayload(p *pool.Pool) map[string]any {
	wq := p.WaterQuality
	payload := map[string]any{
		"pool_id":    p.ID,
		"sampled_at": wq.SampledAt.UTC().Format(time.RFC3339),
	}
	if wq.Status != "" {
		payload["status"] = wq.Status
	}
	if wq.Temperature != nil {
		payload["temperature"] = *wq.Temperature
	}
	if wq.PH != nil {
		payload["ph"] = *wq.PH
	}
	if wq.ORP != nil {
		payload["orp"] = *wq.ORP
	}
	if wq.FreeChlorine != nil {
		payload["free_chlorine"] = *wq.FreeChlorine
	}
	return payload
}

// cyclePayload renders one cycle summary.
func cyclePayload(result engine.CycleResult) map[string]any {
	return map[string]any{
		"cycle_id":        result.ID,
		"started_at":      result.StartedAt.UTC().Format(time.RFC3339),
		"duration_ms":     result.Duration.Milliseconds(),
		"pools":           result.Pools,
		"devices":         result.Devices,
		"devices_skipped": result.DevicesSkipped,
		"devices_failed":  result.DevicesFailed,
	}
}

// ackPayload renders a command outcome.
func ackPayload(command string, err error) map[string]any {
	payload := map[string]any{
		"command":   command,
		"accepted":  err == nil,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	return payload
}

// valueJSON reduces a tagged value to its native JSON type.
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
		return localSchedules(v.Schedules)
	default:
		return nil
	}
}

// localSchedules rewrites slot days from the vendor convention
// (Sunday=7) to the local one (Sunday=0) for bus consumers, and
// carries the operation the canonical type keeps off the wire.
func localSchedules(schedules []codec.Schedule) []map[string]any {
	out := make([]map[string]any, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, map[string]any{
			"id":        s.ID,
			"groupId":   s.GroupID,
			"enabled":   s.Enabled,
			"startTime": codec.ConvertDaysRemoteToLocal(s.StartTime),
			"endTime":   codec.ConvertDaysRemoteToLocal(s.EndTime),
			"operation": s.Operation,
		})
	}
	return out
}
