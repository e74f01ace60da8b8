package fluidra

import "github.com/poolsync/poolsync-core/internal/codec"

// PoolSummary is one entry from the account pool listing.
type PoolSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PoolDetails is the full pool record.
type PoolDetails struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address struct {
		City       string `json:"city"`
		Country    string `json:"country"`
		PostalCode string `json:"postalCode"`
		TimeZone   string `json:"timeZone"`
	} `json:"address"`
}

// PoolStatus is the pool connectivity/status record.
type PoolStatus struct {
	Online bool   `json:"online"`
	Status string `json:"status"`
}

// DeviceInfo is one discovered device, flattened out of the vendor's
// device tree. Bridge aggregates are split: each child becomes its own
// DeviceInfo with ParentID set, and the bridge itself is dropped.
type DeviceInfo struct {
	ID       string
	Name     string
	Family   string
	Model    string
	Type     string
	Serial   string
	Firmware string

	// ParentID is the bridge's device id for synthetic children.
	ParentID string

	// Components holds any component records the discovery payload
	// already carried, keyed by component id. The classifier uses
	// these for in-band signature checks.
	Components map[int]codec.Record
}

// WaterQualityReport is the site-level chemistry assessment from the
// telemetry water-quality job endpoint.
type WaterQualityReport struct {
	Temperature  *float64 `json:"temperature"`
	PH           *float64 `json:"ph"`
	ORP          *float64 `json:"orp"`
	FreeChlorine *float64 `json:"freeChlorine"`
	Status       string   `json:"status"`
}

// deviceNode is the raw discovery tree node.
type deviceNode struct {
	DeviceID     string          `json:"deviceId"`
	Name         string          `json:"name"`
	Family       string          `json:"family"`
	Model        string          `json:"model"`
	Type         string          `json:"type"`
	SerialNumber string          `json:"serialNumber"`
	Firmware     string          `json:"firmwareVersion"`
	Components   []componentNode `json:"components"`
	Children     []deviceNode    `json:"children"`
}

// componentNode is a component record as discovery reports it.
type componentNode struct {
	ID       int   `json:"componentId"`
	Reported any   `json:"reportedValue"`
	Desired  any   `json:"desiredValue"`
	TS       int64 `json:"ts"`
}

// waterQualityJobs is the telemetry job listing envelope; the newest
// job carries the current assessment.
type waterQualityJobs struct {
	Jobs []struct {
		Output WaterQualityReport `json:"output"`
	} `json:"jobs"`
}

// desiredValueBody is the component write envelope.
type desiredValueBody struct {
	DesiredValue any `json:"desiredValue"`
}
