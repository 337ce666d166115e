package storage

import (
	"sort"
	"strings"

	"iris-scraper/models"
)

// Changes returns the names of the fields that differ between the stored
// and incoming versions of a record. ObservedAt is deliberately ignored so
// that re-observing an identical card counts as unchanged.
func Changes(stored, incoming *models.CatalogRecord) []string {
	var changed []string

	if stored.DisplayName != incoming.DisplayName {
		changed = append(changed, "display_name")
	}
	if !eqPtr(stored.Zone, incoming.Zone) {
		changed = append(changed, "zone")
	}
	if !eqPtr(stored.DeliveryInfo, incoming.DeliveryInfo) {
		changed = append(changed, "delivery_info")
	}
	if !eqPtr(stored.Status, incoming.Status) {
		changed = append(changed, "status")
	}
	if !eqPtr(stored.PriceFrom, incoming.PriceFrom) {
		changed = append(changed, "price_from")
	}
	if !eqPtr(stored.IssuerName, incoming.IssuerName) {
		changed = append(changed, "issuer_name")
	}
	if !eqPtr(stored.Commission, incoming.Commission) {
		changed = append(changed, "commission")
	}
	if flagKey(stored.Flags) != flagKey(incoming.Flags) {
		changed = append(changed, "flags")
	}
	if !eqPtr(stored.ImageRef, incoming.ImageRef) {
		changed = append(changed, "image_ref")
	}
	if stored.DetailRef != incoming.DetailRef {
		changed = append(changed, "detail_ref")
	}
	return changed
}

func eqPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// flagKey canonicalizes a flag set so order never counts as a change.
func flagKey(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	sorted := append([]string(nil), flags...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
