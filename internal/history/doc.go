// Package history persists reconciliation snapshots and command
// outcomes to SQLite so trends survive restarts.
//
// Live state lives in the in-memory store; this package is the local
// audit trail behind it. Three tables are maintained:
//
//   - device_state_history: one JSON snapshot per device per cycle
//   - water_quality_history: one row per pool chemistry report
//   - command_log: every write issued through the engine, with outcome
//
// # Usage
//
// Construct a Recorder over an open database and register it with the
// engine so every completed cycle is captured:
//
//	recorder := history.NewRecorder(db.DB)
//	eng.AddListener(func(result engine.CycleResult) {
//		recorder.RecordCycle(context.Background(), result, eng.Snapshot())
//	})
//
// Query methods return rows newest first and clamp limits to sane
// bounds, so they can be exposed directly over the API.
package history
