// Package pool holds the domain model for pools and their equipment,
// plus the thread-safe in-memory store the polling engine writes into
// and every read surface (API, platform bridge, history) reads from.
//
// # Model
//
// A Pool groups devices at one site and carries site-level readings
// (status, water quality). A Device is one piece of equipment with its
// resolved capability profile, the raw component records last fetched
// from the cloud, and the decoded values derived from them.
//
// # Concurrency
//
// Store is safe for concurrent use. All reads return deep copies so
// callers can never mutate cached state; all writes replace whole
// snapshots under the write lock.
package pool
