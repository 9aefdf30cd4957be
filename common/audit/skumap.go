package audit

import (
	"strings"

	"github.com/boxops/portal/common/models"
)

// SkuMap maps a lowercased SKU to its box sequence number
type SkuMap map[string]int

// NewSkuMap builds a SkuMap from tenant aliases.
// When the same SKU appears twice the later alias wins.
func NewSkuMap(aliases []models.SkuAlias) SkuMap {
	m := make(SkuMap, len(aliases))
	for _, a := range aliases {
		key := normalizeSKU(a.SKU)
		if key == "" {
			continue
		}
		m[key] = a.SequenceNumber
	}
	return m
}

// Lookup resolves a SKU case-insensitively
func (m SkuMap) Lookup(sku string) (int, bool) {
	key := normalizeSKU(sku)
	if key == "" {
		return 0, false
	}
	seq, ok := m[key]
	return seq, ok
}

func normalizeSKU(sku string) string {
	return strings.ToLower(strings.TrimSpace(sku))
}
