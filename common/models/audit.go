package models

import "time"

// AuditStatus is the analyzer outcome for one run
type AuditStatus string

const (
	AuditStatusClean   AuditStatus = "clean"
	AuditStatusFlagged AuditStatus = "flagged"
	AuditStatusSkipped AuditStatus = "skipped"
)

// FlagReason explains why an audit needs human review
type FlagReason string

const (
	FlagGapDetected       FlagReason = "gap_detected"
	FlagDuplicateBox      FlagReason = "duplicate_box"
	FlagTimeTraveler      FlagReason = "time_traveler"
	FlagNoHistory         FlagReason = "no_history"
	FlagMultipleCustomers FlagReason = "multiple_customers"
)

// SequenceEvent is one subscription line item found in the order history
type SequenceEvent struct {
	Sequence    int       `json:"sequence"`
	OrderedAt   time.Time `json:"ordered_at"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	SKU         string    `json:"sku"`
	ProductName string    `json:"product_name"`
}

// AuditResult is the output of the analyzer
type AuditResult struct {
	Status            AuditStatus     `json:"status"`
	FlagReasons       []FlagReason    `json:"flag_reasons"`
	DetectedSequences []int           `json:"detected_sequences"`
	SequenceEvents    []SequenceEvent `json:"sequence_events"`
	ProposedNextBox   int             `json:"proposed_next_box"`
	RawOrders         []Order         `json:"raw_orders"`
}

// HasFlag reports whether reason is present on the result
func (r *AuditResult) HasFlag(reason FlagReason) bool {
	for _, f := range r.FlagReasons {
		if f == reason {
			return true
		}
	}
	return false
}

// AddFlag records reason once and marks the result flagged
func (r *AuditResult) AddFlag(reason FlagReason) {
	if !r.HasFlag(reason) {
		r.FlagReasons = append(r.FlagReasons, reason)
	}
	r.Status = AuditStatusFlagged
}
