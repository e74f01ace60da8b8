// Package platform bridges reconciled pool state onto the MQTT bus and
// accepts device commands back off it.
//
// The bridge publishes after every reconciliation cycle:
//
//   - poolsync/device/{id}/state — decoded feature values (retained)
//   - poolsync/pool/{id}/state — pool status (retained)
//   - poolsync/pool/{id}/water_quality — chemistry report (retained)
//   - poolsync/system/cycle — cycle summary
//
// and holds one wildcard subscription for commands:
//
//	poolsync/device/{id}/command/{command}
//
// The command payload is the bare JSON value for the command (true, 65,
// an RGBW object, a schedule list). Every command is acknowledged on
// the matching ack topic with its outcome, so automation platforms can
// surface failures without waiting a poll cycle.
//
// # Usage
//
//	bridge := platform.New(client, eng, platform.Config{QoS: 1})
//	if err := bridge.Start(ctx); err != nil {
//		return err
//	}
//	eng.AddListener(bridge.OnCycle)
package platform
