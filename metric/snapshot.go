package metric

import (
	"maps"
	"time"
)

// ValidationSnapshot mirrors the validator's running report.
type ValidationSnapshot struct {
	Total            int64            `json:"total_processed"`
	Valid            int64            `json:"valid_records"`
	Empty            int64            `json:"empty_records"`
	Invalid          int64            `json:"invalid_records"`
	ValidityRate     float64          `json:"validity_rate"`
	EmptyRate        float64          `json:"empty_rate"`
	RejectionReasons map[string]int64 `json:"rejection_reasons"`
}

// Snapshot is a point-in-time copy of the collector state.
type Snapshot struct {
	StartedAt     time.Time `json:"started_at"`
	Uptime        string    `json:"uptime"`
	LastProcessed time.Time `json:"last_processed,omitempty"`

	Received int64            `json:"received"`
	ByKind   map[string]int64 `json:"received_by_kind"`
	Acked    int64            `json:"acked"`
	Rejected int64            `json:"rejected"`
	Requeued int64            `json:"requeued"`
	Poison   int64            `json:"poison"`
	Dropped  int64            `json:"dropped"`

	Validation ValidationSnapshot `json:"validation"`

	DurableWrites   int64 `json:"durable_writes"`
	DurableFailures int64 `json:"durable_failures"`
	CacheWrites     int64 `json:"cache_writes"`
	CacheFailures   int64 `json:"cache_failures"`

	AlertsCreated    int64            `json:"alerts_created"`
	AlertsBySeverity map[string]int64 `json:"alerts_by_severity"`

	ConnectionErrors int64 `json:"connection_errors"`
}

func newSnapshot(started time.Time) Snapshot {
	return Snapshot{
		StartedAt:        started,
		ByKind:           map[string]int64{},
		AlertsBySeverity: map[string]int64{},
		Validation:       ValidationSnapshot{RejectionReasons: map[string]int64{}},
	}
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.ByKind = maps.Clone(s.ByKind)
	out.AlertsBySeverity = maps.Clone(s.AlertsBySeverity)
	out.Validation.RejectionReasons = maps.Clone(s.Validation.RejectionReasons)
	return out
}

// Errors sums every failure counter; used by the periodic log line.
func (s Snapshot) Errors() int64 {
	return s.Poison + s.Requeued + s.DurableFailures + s.CacheFailures + s.ConnectionErrors
}
