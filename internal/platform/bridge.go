package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poolsync/poolsync-core/internal/codec"
	"github.com/poolsync/poolsync-core/internal/engine"
	"github.com/poolsync/poolsync-core/internal/infrastructure/mqtt"
)

// Command names accepted on the command topic.
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

// commandTimeout bounds one command's remote write.
const commandTimeout = 30 * time.Second

// commandTopicParts is the exact part count of a device command topic:
// poolsync/device/{id}/command/{command}.
const commandTopicParts = 5

// MQTTClient is the broker surface the bridge needs. Satisfied by
// *mqtt.Client; narrowed for tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Controller is the engine surface the bridge drives. Satisfied by
// *engine.Engine.
type Controller interface {
	Snapshot() map[string]*engine.PoolState

	SetPower(ctx context.Context, deviceID string, on bool) error
	SetAutoMode(ctx context.Context, deviceID string, on bool) error
	SetSpeed(ctx context.Context, deviceID string, percent float64) error
	SetPreset(ctx context.Context, deviceID string, preset int) error
	SetTargetTemperature(ctx context.Context, deviceID string, celsius float64) error
	SetChlorinationLevel(ctx context.Context, deviceID string, percent float64) error
	SetPHSetpoint(ctx context.Context, deviceID string, ph float64) error
	SetORPSetpoint(ctx context.Context, deviceID string, mv float64) error
	SetBoost(ctx context.Context, deviceID string, on bool) error
	SetBrightness(ctx context.Context, deviceID string, percent float64) error
	SetColor(ctx context.Context, deviceID string, color codec.Color) error
	SetSchedules(ctx context.Context, deviceID string, schedules []codec.Schedule) error
}

// Logger is the minimal logging interface the bridge needs.
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

// Config carries the bridge tunables.
type Config struct {
	// QoS for every publish and the command subscription.
	QoS byte
}

// Bridge translates between the engine and the MQTT bus.
//
// Thread safety: OnCycle and the command handler may run concurrently;
// both only read bridge fields set before Start.
type Bridge struct {
	client MQTTClient
	ctl    Controller
	topics mqtt.Topics
	qos    byte
	logger Logger
}

// New creates a bridge over the given broker client and controller.
func New(client MQTTClient, ctl Controller, cfg Config) *Bridge {
	return &Bridge{
		client: client,
		ctl:    ctl,
		qos:    cfg.QoS,
		logger: noopLogger{},
	}
}

// SetLogger sets the bridge logger.
func (b *Bridge) SetLogger(l Logger) { b.logger = l }

// Start subscribes to the device command pattern. Publishing is driven
// separately via OnCycle.
func (b *Bridge) Start(ctx context.Context) error {
	pattern := b.topics.AllDeviceCommands()
	if err := b.client.Subscribe(pattern, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to %s: %w", pattern, err)
	}
	b.logger.Info("platform bridge started", "subscription", pattern)
	return nil
}

// OnCycle publishes the full reconciled state after a cycle. Register
// it as an engine listener.
func (b *Bridge) OnCycle(result engine.CycleResult) {
	snapshot := b.ctl.Snapshot()

	for _, state := range snapshot {
		if state.Pool != nil {
			b.publishJSON(b.topics.PoolState(state.Pool.ID), poolPayload(state.Pool), true)
			if state.Pool.WaterQuality != nil {
				b.publishJSON(b.topics.PoolWaterQuality(state.Pool.ID), qualityPayload(state.Pool), true)
			}
		}
		for _, device := range state.Devices {
			b.publishJSON(b.topics.DeviceState(device.ID), devicePayload(device), true)
		}
	}

	b.publishJSON(b.topics.SystemCycle(), cyclePayload(result), false)
}

// handleCommand parses one command topic, dispatches it to the engine
// and publishes the outcome on the ack topic.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	deviceID, command, ok := parseCommandTopic(topic)
	if !ok {
		b.logger.Warn("malformed command topic", "topic", topic)
		return fmt.Errorf("platform: malformed command topic %q", topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	err := b.dispatch(ctx, deviceID, command, payload)
	if err != nil {
		b.logger.Warn("command failed",
			"device_id", deviceID, "command", command, "error", err)
	} else {
		b.logger.Debug("command executed", "device_id", deviceID, "command", command)
	}

	b.publishJSON(b.topics.DeviceAck(deviceID, command), ackPayload(command, err), false)
	return err
}

// dispatch decodes the payload for the named command and invokes the
// matching engine operation.
func (b *Bridge) dispatch(ctx context.Context, deviceID, command string, payload []byte) error {
	switch command {
	case CommandPower:
		on, err := parseBool(payload)
		if err != nil {
			return err
		}
		return b.ctl.SetPower(ctx, deviceID, on)
	case CommandAutoMode:
		on, err := parseBool(payload)
		if err != nil {
			return err
		}
		return b.ctl.SetAutoMode(ctx, deviceID, on)
	case CommandSpeed:
		n, err := parseNumber(payload)
		if err != nil {
			return err
		}
		return b.ctl.SetSpeed(ctx, deviceID, n)
	case CommandPreset:
		n, err := parseNumber(payload)
		if err != nil {
			return err
		}
		return b.ctl.SetPreset(ctx, deviceID, int(n))
	case CommandTargetTemperature:
		n, err := parseNumber(payload)
		if err != nil {
			return err
		}
		return b.ctl.SetTargetTemperature(ctx, deviceID, n)
	case CommandChlorination:
		n, err := parseNumber(payload)
		if err != nil {
			return err
		}
		return b.ctl.SetChlorinationLevel(ctx, deviceID, n)
	case CommandPHSetpoint:
		n, err := parseNumber(payload)
		if err != nil {
			return err
		}
		return b.ctl.SetPHSetpoint(ctx, deviceID, n)
	case CommandORPSetpoint:
		n, err := parseNumber(payload)
		if err != nil {
			return err
		}
		return b.ctl.SetORPSetpoint(ctx, deviceID, n)
	case CommandBoost:
		on, err := parseBool(payload)
		if err != nil {
			return err
		}
		return b.ctl.SetBoost(ctx, deviceID, on)
	case CommandBrightness:
		n, err := parseNumber(payload)
		if err != nil {
			return err
		}
		return b.ctl.SetBrightness(ctx, deviceID, n)
	case CommandColor:
		color, err := parseColor(payload)
		if err != nil {
			return err
		}
		return b.ctl.SetColor(ctx, deviceID, color)
	case CommandSchedules:
		schedules, err := parseSchedules(payload)
		if err != nil {
			return err
		}
		return b.ctl.SetSchedules(ctx, deviceID, schedules)
	default:
		return fmt.Errorf("platform: unknown command %q", command)
	}
}

// publishJSON marshals and publishes, logging failures rather than
// propagating them; a dropped publish heals on the next cycle.
func (b *Bridge) publishJSON(topic string, payload any, retained bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("marshalling payload", "topic", topic, "error", err)
		return
	}
	if err := b.client.Publish(topic, data, b.qos, retained); err != nil {
		b.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}

// parseCommandTopic splits poolsync/device/{id}/command/{command}.
func parseCommandTopic(topic string) (deviceID, command string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != commandTopicParts || parts[0] != mqtt.TopicPrefix ||
		parts[1] != "device" || parts[3] != "command" {
		return "", "", false
	}
	if parts[2] == "" || parts[4] == "" {
		return "", "", false
	}
	return parts[2], parts[4], true
}

func parseBool(payload []byte) (bool, error) {
	var v bool
	if err := json.Unmarshal(payload, &v); err != nil {
		return false, fmt.Errorf("platform: expected boolean payload: %w", err)
	}
	return v, nil
}

func parseNumber(payload []byte) (float64, error) {
	var v float64
	if err := json.Unmarshal(payload, &v); err != nil {
		return 0, fmt.Errorf("platform: expected numeric payload: %w", err)
	}
	return v, nil
}

func parseColor(payload []byte) (codec.Color, error) {
	var v struct {
		R *uint8 `json:"r"`
		G *uint8 `json:"g"`
		B *uint8 `json:"b"`
		W uint8  `json:"w"`
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return codec.Color{}, fmt.Errorf("platform: expected color payload: %w", err)
	}
	if v.R == nil || v.G == nil || v.B == nil {
		return codec.Color{}, errors.New("platform: color payload requires r, g and b")
	}
	return codec.Color{R: *v.R, G: *v.G, B: *v.B, W: v.W}, nil
}

// scheduleBody is the MQTT shape of one schedule slot; operation is
// carried explicitly since the canonical type keeps it off the wire.
type scheduleBody struct {
	ID        int    `json:"id"`
	GroupID   int    `json:"groupId"`
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Operation int    `json:"operation"`
}

func parseSchedules(payload []byte) ([]codec.Schedule, error) {
	var bodies []scheduleBody
	if err := json.Unmarshal(payload, &bodies); err != nil {
		return nil, fmt.Errorf("platform: expected schedule list payload: %w", err)
	}
	schedules := make([]codec.Schedule, 0, len(bodies))
	for _, body := range bodies {
		// Bus payloads use the local day convention (Sunday=0); the
		// vendor wants Sunday=7.
		schedules = append(schedules, codec.Schedule{
			ID:        body.ID,
			GroupID:   body.GroupID,
			Enabled:   body.Enabled,
			StartTime: codec.ConvertDaysLocalToRemote(body.StartTime),
			EndTime:   codec.ConvertDaysLocalToRemote(body.EndTime),
			Operation: body.Operation,
		})
	}
	return schedules, nil
}
