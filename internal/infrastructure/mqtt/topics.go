package mqtt

import "fmt"

// Topic prefixes for the PoolSync MQTT surface.
//
// All topics use the flat scheme: poolsync/{category}/{id}/{suffix}
// matching what the platform bridge publishes and subscribes to.
const (
	// TopicPrefix is the base for all PoolSync topics.
	TopicPrefix = "poolsync"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "poolsync/system"
)

// Topics provides builders for PoolSync MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("E30500883")
//	// Returns: "poolsync/device/E30500883/state"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceState returns the topic where a device's reconciled state is
// published (retained).
//
// Example: poolsync/device/E30500883/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, deviceID)
}

// DeviceCommand returns the topic commands for a device arrive on.
//
// Example: poolsync/device/E30500883/command/power
func (Topics) DeviceCommand(deviceID, command string) string {
	return fmt.Sprintf("%s/device/%s/command/%s", TopicPrefix, deviceID, command)
}

// DeviceAck returns the topic where a command outcome is published.
//
// Example: poolsync/device/E30500883/ack/power
func (Topics) DeviceAck(deviceID, command string) string {
	return fmt.Sprintf("%s/device/%s/ack/%s", TopicPrefix, deviceID, command)
}

// =============================================================================
// Pool Topics
// =============================================================================

// PoolState returns the topic where pool-level status is published
// (retained).
//
// Example: poolsync/pool/pool-1/state
func (Topics) PoolState(poolID string) string {
	return fmt.Sprintf("%s/pool/%s/state", TopicPrefix, poolID)
}

// PoolWaterQuality returns the topic where a pool's chemistry report is
// published (retained).
//
// Example: poolsync/pool/pool-1/water_quality
func (Topics) PoolWaterQuality(poolID string) string {
	return fmt.Sprintf("%s/pool/%s/water_quality", TopicPrefix, poolID)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic. Used for Last Will and
// Testament, so other services can detect when the core goes offline.
//
// Example: poolsync/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemCycle returns the topic where each reconciliation cycle summary
// is published.
//
// Example: poolsync/system/cycle
func (Topics) SystemCycle() string {
	return fmt.Sprintf("%s/cycle", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceCommands returns a pattern matching every device command
// topic. The platform bridge holds this single subscription.
//
// Pattern: poolsync/device/+/command/+
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/device/+/command/+", TopicPrefix)
}

// AllDeviceStates returns a pattern matching all published device
// states.
//
// Pattern: poolsync/device/+/state
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/device/+/state", TopicPrefix)
}

// AllTopics returns a pattern matching all PoolSync topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: poolsync/#
func (Topics) AllTopics() string {
	return "poolsync/#"
}
