// Package audit reconstructs a subscriber's box position from order history.
//
// Analyze is pure: it performs no I/O and holds no shared state, so it can run
// on any goroutine without locking.
package audit

import (
	"sort"

	"github.com/boxops/portal/common/models"
)

// Analyze extracts sequence events from orders, detects anomalies and proposes
// the next box the subscriber should receive.
func Analyze(orders []models.Order, skuMap SkuMap) *models.AuditResult {
	events := extractEvents(orders, skuMap)

	if len(events) == 0 {
		return &models.AuditResult{
			Status:            models.AuditStatusFlagged,
			FlagReasons:       []models.FlagReason{models.FlagNoHistory},
			DetectedSequences: []int{},
			SequenceEvents:    []models.SequenceEvent{},
			ProposedNextBox:   1,
			RawOrders:         orders,
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OrderedAt.Before(events[j].OrderedAt)
	})

	sequences := make([]int, len(events))
	for i, e := range events {
		sequences[i] = e.Sequence
	}

	var flags []models.FlagReason
	if hasDuplicate(sequences) {
		flags = append(flags, models.FlagDuplicateBox)
	}

	unique := uniqueSorted(sequences)
	if hasGap(unique) {
		flags = append(flags, models.FlagGapDetected)
	}

	if hasTimeTraveler(events) {
		flags = append(flags, models.FlagTimeTraveler)
	}

	status := models.AuditStatusClean
	if len(flags) > 0 {
		status = models.AuditStatusFlagged
	}

	return &models.AuditResult{
		Status:            status,
		FlagReasons:       dedupeFlags(flags),
		DetectedSequences: sequences,
		SequenceEvents:    events,
		ProposedNextBox:   unique[len(unique)-1] + 1,
		RawOrders:         orders,
	}
}

// extractEvents emits one event per line item whose SKU is mapped
func extractEvents(orders []models.Order, skuMap SkuMap) []models.SequenceEvent {
	events := make([]models.SequenceEvent, 0)
	for _, order := range orders {
		for _, item := range order.LineItems {
			if item.SKU == "" {
				continue
			}
			seq, ok := skuMap.Lookup(item.SKU)
			if !ok {
				continue
			}
			events = append(events, models.SequenceEvent{
				Sequence:    seq,
				OrderedAt:   order.CreatedAt,
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				SKU:         item.SKU,
				ProductName: item.Name,
			})
		}
	}
	return events
}

func hasDuplicate(sequences []int) bool {
	counts := make(map[int]int, len(sequences))
	for _, s := range sequences {
		counts[s]++
		if counts[s] > 1 {
			return true
		}
	}
	return false
}

// uniqueSorted returns the distinct sequence values in ascending order
func uniqueSorted(sequences []int) []int {
	seen := make(map[int]struct{}, len(sequences))
	unique := make([]int, 0, len(sequences))
	for _, s := range sequences {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		unique = append(unique, s)
	}
	sort.Ints(unique)
	return unique
}

// hasGap reports a missing integer between the smallest and largest sequence.
// unique must be sorted and free of duplicates.
func hasGap(unique []int) bool {
	if len(unique) == 0 {
		return false
	}
	return unique[len(unique)-1]-unique[0]+1 != len(unique)
}

// hasTimeTraveler finds a lower box received strictly after a higher one.
// Equal timestamps never count, so multi-box orders placed together are not flagged.
func hasTimeTraveler(events []models.SequenceEvent) bool {
	for i := 1; i < len(events); i++ {
		prev, curr := events[i-1], events[i]
		if curr.Sequence < prev.Sequence && curr.Sequence != prev.Sequence && curr.OrderedAt.After(prev.OrderedAt) {
			return true
		}
	}
	return false
}

func dedupeFlags(flags []models.FlagReason) []models.FlagReason {
	out := make([]models.FlagReason, 0, len(flags))
	seen := make(map[models.FlagReason]struct{}, len(flags))
	for _, f := range flags {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
