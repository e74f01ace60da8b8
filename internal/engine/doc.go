// Package engine drives the periodic reconciliation of cloud state
// into the local pool store, and executes device commands on top of
// the remote gateway.
//
// # Poll Cycle
//
// One cycle walks the account's pools, merges pool details, status and
// water quality, discovers devices, classifies new ones, then scans
// each device's profile-determined component set, decodes the records
// and replaces the device's state atomically. Cycles never overlap.
//
// Failures are contained at the narrowest scope that can absorb them:
// a missing component is skipped, a failing device keeps its last
// known state and is retried next cycle, and only an authentication
// failure aborts the whole cycle.
//
// # Optimistic State
//
// Commands register an optimistic entry for the written component.
// While a device holds an unexpired entry the engine skips it for the
// whole cycle, so a slow cloud echo cannot overwrite what the user
// just set. Entries clear on confirmation, expiry, or command failure.
package engine
