package storage

import (
	"testing"
	"time"

	"iris-scraper/models"
)

func TestChangesIdenticalRecords(t *testing.T) {
	a := sampleRecord("proyecto/1")
	b := sampleRecord("proyecto/1")
	if changed := Changes(a, b); len(changed) != 0 {
		t.Errorf("Changes on identical records = %v; want none", changed)
	}
}

func TestChangesIgnoresObservedAt(t *testing.T) {
	a := sampleRecord("proyecto/1")
	b := sampleRecord("proyecto/1")
	b.ObservedAt = a.ObservedAt.Add(48 * time.Hour)
	if changed := Changes(a, b); len(changed) != 0 {
		t.Errorf("Changes = %v; re-observation time must not count", changed)
	}
}

func TestChangesDetectsFieldDiffs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *models.CatalogRecord)
		want   string
	}{
		{"display name", func(r *models.CatalogRecord) { r.DisplayName = "Otro Nombre" }, "display_name"},
		{"zone set to new value", func(r *models.CatalogRecord) { r.Zone = strPtr("Malvín") }, "zone"},
		{"zone dropped", func(r *models.CatalogRecord) { r.Zone = nil }, "zone"},
		{"status", func(r *models.CatalogRecord) { r.Status = strPtr("Entrega inmediata") }, "status"},
		{"price", func(r *models.CatalogRecord) { r.PriceFrom = strPtr("U$S 140.000") }, "price_from"},
		{"commission appears", func(r *models.CatalogRecord) { r.Commission = strPtr("4%") }, "commission"},
		{"flag added", func(r *models.CatalogRecord) { r.Flags = append(r.Flags, "destacado") }, "flags"},
		{"detail ref", func(r *models.CatalogRecord) { r.DetailRef = "https://iris.example.test/proyecto/1?v=2" }, "detail_ref"},
	}

	for _, tt := range tests {
		stored := sampleRecord("proyecto/1")
		incoming := sampleRecord("proyecto/1")
		tt.mutate(incoming)

		changed := Changes(stored, incoming)
		if len(changed) != 1 || changed[0] != tt.want {
			t.Errorf("%s: Changes = %v; want [%s]", tt.name, changed, tt.want)
		}
	}
}

func TestChangesFlagOrderInsensitive(t *testing.T) {
	stored := sampleRecord("proyecto/1")
	stored.Flags = []string{"ley-vp", "destacado"}
	incoming := sampleRecord("proyecto/1")
	incoming.Flags = []string{"destacado", "ley-vp"}

	if changed := Changes(stored, incoming); len(changed) != 0 {
		t.Errorf("Changes = %v; flag order must not count", changed)
	}
}

func TestChangesReportsMultipleFields(t *testing.T) {
	stored := sampleRecord("proyecto/1")
	incoming := sampleRecord("proyecto/1")
	incoming.Zone = strPtr("Centro")
	incoming.PriceFrom = nil

	changed := Changes(stored, incoming)
	if len(changed) != 2 {
		t.Fatalf("Changes = %v; want two entries", changed)
	}
	got := map[string]bool{changed[0]: true, changed[1]: true}
	if !got["zone"] || !got["price_from"] {
		t.Errorf("Changes = %v; want zone and price_from", changed)
	}
}
