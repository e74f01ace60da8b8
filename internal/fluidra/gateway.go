package fluidra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/poolsync/poolsync-core/internal/codec"
)

// ListPools returns the pools visible to the authenticated account.
func (g *Gateway) ListPools(ctx context.Context) ([]PoolSummary, error) {
	var pools []PoolSummary
	if err := g.do(ctx, http.MethodGet, "/generic/users/me/pools", nil, nil, &pools); err != nil {
		return nil, err
	}
	return pools, nil
}

// PoolDetails fetches the full record for one pool.
func (g *Gateway) PoolDetails(ctx context.Context, poolID string) (*PoolDetails, error) {
	var details PoolDetails
	if err := g.do(ctx, http.MethodGet, "/generic/pools/"+url.PathEscape(poolID), nil, nil, &details); err != nil {
		return nil, err
	}
	details.ID = poolID
	return &details, nil
}

// PoolStatus fetches the connectivity/status record for one pool.
func (g *Gateway) PoolStatus(ctx context.Context, poolID string) (*PoolStatus, error) {
	var status PoolStatus
	if err := g.do(ctx, http.MethodGet, "/generic/pools/"+url.PathEscape(poolID)+"/status", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Devices discovers the equipment assigned to a pool.
//
// The vendor returns a tree: standalone devices at the top level, and
// bridge aggregates whose real equipment hangs underneath. Bridges are
// split here — each child surfaces as its own DeviceInfo linked to the
// bridge via ParentID, and the bridge node itself is dropped so it can
// never be offered as a controllable device.
func (g *Gateway) Devices(ctx context.Context, poolID string) ([]DeviceInfo, error) {
	query := url.Values{
		"poolId": {poolID},
		"format": {"tree"},
	}

	var tree []deviceNode
	if err := g.do(ctx, http.MethodGet, "/generic/devices", query, nil, &tree); err != nil {
		return nil, err
	}

	var out []DeviceInfo
	for _, node := range tree {
		if isBridge(node) {
			for i, child := range node.Children {
				info := flatten(child)
				if info.ID == "" {
					info.ID = fmt.Sprintf("%s.nn_%d", node.DeviceID, i)
				}
				info.ParentID = node.DeviceID
				out = append(out, info)
			}
			continue
		}
		out = append(out, flatten(node))
	}
	return out, nil
}

// isBridge reports whether a discovery node is a bridge aggregate.
func isBridge(node deviceNode) bool {
	if len(node.Children) > 0 {
		return true
	}
	return strings.Contains(strings.ToLower(node.Family), "bridge") ||
		strings.Contains(strings.ToLower(node.Type), "bridge")
}

// flatten converts a discovery node into a DeviceInfo.
func flatten(node deviceNode) DeviceInfo {
	info := DeviceInfo{
		ID:       node.DeviceID,
		Name:     node.Name,
		Family:   node.Family,
		Model:    node.Model,
		Type:     node.Type,
		Serial:   node.SerialNumber,
		Firmware: node.Firmware,
	}
	if len(node.Components) > 0 {
		info.Components = make(map[int]codec.Record, len(node.Components))
		for _, c := range node.Components {
			info.Components[c.ID] = codec.Record{
				Reported:  c.Reported,
				Desired:   c.Desired,
				Timestamp: c.TS,
			}
		}
	}
	return info
}

// ReadComponent fetches one component record. The second return is
// false when the device does not expose the component (404): many
// components in a profile's scan range simply do not exist on a given
// unit, and that is not an error.
func (g *Gateway) ReadComponent(ctx context.Context, deviceID string, componentID int) (codec.Record, bool, error) {
	path := componentPath(deviceID, componentID)
	query := url.Values{"deviceType": {"connected"}}

	var node componentNode
	err := g.do(ctx, http.MethodGet, path, query, nil, &node)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return codec.Record{}, false, nil
		}
		return codec.Record{}, false, err
	}

	rec := codec.Record{Reported: node.Reported, Desired: node.Desired, Timestamp: node.TS}
	g.cacheRecord(deviceID, componentID, rec)
	return rec, true, nil
}

// WriteComponent sets a component's desired value. On success the
// gateway-local cache is updated so immediate readers see the written
// value without waiting for the next poll.
func (g *Gateway) WriteComponent(ctx context.Context, deviceID string, componentID int, value any) error {
	path := componentPath(deviceID, componentID)
	query := url.Values{"deviceType": {"connected"}}

	if err := g.do(ctx, http.MethodPut, path, query, desiredValueBody{DesiredValue: value}, nil); err != nil {
		return err
	}

	g.cacheRecord(deviceID, componentID, codec.Record{
		Reported:  value,
		Desired:   value,
		Timestamp: time.Now().UnixMilli(),
	})
	g.logger.Debug("component written", "device", deviceID, "component", componentID)
	return nil
}

// WriteSchedules writes the complete schedule slot set to a schedule
// component. The vendor requires every write to carry all slots;
// callers pad with placeholders before calling.
func (g *Gateway) WriteSchedules(ctx context.Context, deviceID string, componentID int, slots []codec.ScheduleSlot) error {
	if len(slots) != codec.ScheduleSlots {
		return fmt.Errorf("fluidra: schedule write requires exactly %d slots, got %d", codec.ScheduleSlots, len(slots))
	}
	path := componentPath(deviceID, componentID)
	query := url.Values{"deviceType": {"connected"}}
	return g.do(ctx, http.MethodPut, path, query, desiredValueBody{DesiredValue: slots}, nil)
}

// WaterQuality fetches the latest site-level chemistry assessment, or
// nil when no telemetry job has completed yet.
func (g *Gateway) WaterQuality(ctx context.Context, poolID string) (*WaterQualityReport, error) {
	path := "/generic/pools/" + url.PathEscape(poolID) + "/assistant/algorithms/telemetryWaterQuality/jobs"

	var jobs waterQualityJobs
	if err := g.do(ctx, http.MethodGet, path, nil, nil, &jobs); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if len(jobs.Jobs) == 0 {
		return nil, nil
	}
	report := jobs.Jobs[0].Output
	return &report, nil
}

func componentPath(deviceID string, componentID int) string {
	return fmt.Sprintf("/generic/devices/%s/components/%d", url.PathEscape(deviceID), componentID)
}
