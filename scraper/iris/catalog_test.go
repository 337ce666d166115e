package iris

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"iris-scraper/models"
)

// catalogSim plays the catalog page: a fixed sequence of card batches where
// each answered reveal-more click renders one more batch. After maxClicks
// answered clicks the control disappears, as the real site does at the end.
type catalogSim struct {
	batches   [][]int
	revealed  int
	clicks    int
	maxClicks int
	location  string
}

var _ Accessor = (*catalogSim)(nil)

func newCatalogSim(batches [][]int, maxClicks int) *catalogSim {
	return &catalogSim{batches: batches, revealed: 1, maxClicks: maxClicks}
}

func (s *catalogSim) visibleIDs() []int {
	var ids []int
	for _, batch := range s.batches[:s.revealed] {
		ids = append(ids, batch...)
	}
	return ids
}

func (s *catalogSim) Navigate(_ context.Context, url string) error {
	s.location = url
	return nil
}

func (s *catalogSim) Location(context.Context) (string, error) { return s.location, nil }

func (s *catalogSim) WaitVisible(context.Context, string, time.Duration) error { return nil }

func (s *catalogSim) Fill(context.Context, string, string) error { return nil }

func (s *catalogSim) Click(context.Context, string) error { return nil }

func (s *catalogSim) Trigger(_ context.Context, req TriggerRequest) (TriggerResult, error) {
	if len(req.Selectors) > 0 {
		// List view toggle probe; the sim has no such control.
		return TriggerResult{}, nil
	}
	if s.clicks >= s.maxClicks {
		return TriggerResult{}, nil
	}
	s.clicks++
	if s.revealed < len(s.batches) {
		s.revealed++
	}
	return TriggerResult{Found: true, Visible: true, Enabled: true, Clicked: true, Label: "Cargar más"}, nil
}

func (s *catalogSim) Count(_ context.Context, selector string) (int, error) {
	if selector == ".ant-table-row" {
		return len(s.visibleIDs()), nil
	}
	return 0, nil
}

func (s *catalogSim) Text(context.Context, string) (string, error) { return "", nil }

func (s *catalogSim) Hrefs(context.Context, string) ([]string, error) {
	var hrefs []string
	for _, id := range s.visibleIDs() {
		hrefs = append(hrefs, fmt.Sprintf("https://iris.example.test/proyecto/%d", id))
	}
	return hrefs, nil
}

func (s *catalogSim) OuterHTML(context.Context, string) (string, error) {
	var b strings.Builder
	b.WriteString(`<html><body><table><tbody class="ant-table-tbody">`)
	for _, id := range s.visibleIDs() {
		fmt.Fprintf(&b, `<tr class="ant-table-row">`+
			`<td><img src="/img/%d.jpg"/></td>`+
			`<td class="project-name">Proyecto %d</td>`+
			`<td class="project-zone">Zona %d</td>`+
			`<td></td><td></td><td></td><td></td><td></td><td></td>`+
			`<td><a href="/proyecto/%d">Ver</a></td>`+
			`</tr>`, id, id, id%3, id)
	}
	b.WriteString(`</tbody></table></body></html>`)
	return b.String(), nil
}

func (s *catalogSim) ScrollToBottom(context.Context, string) error { return nil }

func (s *catalogSim) PressEscape(context.Context) error { return nil }

func (s *catalogSim) Screenshot(context.Context) ([]byte, error) { return []byte("png"), nil }

// batchesOf builds n sequential batches of size per, ids counting from 1.
func batchesOf(n, per int) [][]int {
	batches := make([][]int, n)
	id := 1
	for i := range batches {
		batch := make([]int, per)
		for j := range batch {
			batch[j] = id
			id++
		}
		batches[i] = batch
	}
	return batches
}

// drain runs RevealNext until the traversal reports terminal, returning all
// fresh records in the order they were revealed.
func drain(t *testing.T, p *Paginator, acc Accessor) ([]*models.CatalogRecord, PaginationState) {
	t.Helper()
	ctx := context.Background()
	state := NewPaginationState()
	var all []*models.CatalogRecord
	for i := 0; !state.Terminal; i++ {
		if i > 1000 {
			t.Fatal("traversal did not terminate within 1000 cycles")
		}
		fresh, next, err := p.RevealNext(ctx, acc, state)
		if err != nil {
			t.Fatalf("RevealNext cycle %d: %v", state.CycleIndex, err)
		}
		if next.CycleIndex != state.CycleIndex+1 {
			t.Fatalf("cycle index went %d to %d; want one step", state.CycleIndex, next.CycleIndex)
		}
		if next.KnownKeys.Size() < state.KnownKeys.Size() {
			t.Fatalf("known keys shrank from %d to %d", state.KnownKeys.Size(), next.KnownKeys.Size())
		}
		all = append(all, fresh...)
		state = next
	}
	return all, state
}

func TestPaginatorExhaustsCatalog(t *testing.T) {
	// Ten batches of twelve. Clicks 1-9 reveal the remaining batches, clicks
	// 10 and 11 are answered but grow nothing, then the control disappears.
	sim := newCatalogSim(batchesOf(10, 12), 11)
	p, err := NewPaginator(testConfig(), newTestLogger())
	if err != nil {
		t.Fatalf("NewPaginator: %v", err)
	}
	if err := p.Open(context.Background(), sim); err != nil {
		t.Fatalf("Open: %v", err)
	}

	records, state := drain(t, p, sim)

	if len(records) != 120 {
		t.Fatalf("extracted %d records; want 120", len(records))
	}
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if seen[rec.IdentityKey] {
			t.Errorf("duplicate record %q emitted", rec.IdentityKey)
		}
		seen[rec.IdentityKey] = true
	}
	if !state.Terminal {
		t.Error("state not terminal after drain")
	}
	if state.KnownKeys.Size() != 120 {
		t.Errorf("known keys = %d; want 120", state.KnownKeys.Size())
	}
	if sim.clicks != 11 {
		t.Errorf("sim answered %d clicks; want 11", sim.clicks)
	}
	if state.CycleIndex != 12 {
		t.Errorf("terminated at cycle %d; want 12", state.CycleIndex)
	}
}

func TestPaginatorStopsOnEmptyCycleLimit(t *testing.T) {
	// Control never disappears but nothing new ever renders after batch two.
	cfg := testConfig()
	cfg.EmptyCycleLimit = 2
	sim := newCatalogSim(batchesOf(2, 3), 1000)
	p, err := NewPaginator(cfg, newTestLogger())
	if err != nil {
		t.Fatalf("NewPaginator: %v", err)
	}

	records, state := drain(t, p, sim)

	if len(records) != 6 {
		t.Errorf("extracted %d records; want 6", len(records))
	}
	if !state.Terminal {
		t.Error("state not terminal")
	}
	if state.EmptyCycles < cfg.EmptyCycleLimit {
		t.Errorf("EmptyCycles = %d; want at least %d", state.EmptyCycles, cfg.EmptyCycleLimit)
	}
}

func TestPaginatorSuppressesRerenderedDuplicates(t *testing.T) {
	// The second batch re-renders two cards from the first; only the one
	// genuinely new card may be emitted again.
	sim := newCatalogSim([][]int{{1, 2, 3}, {2, 3, 4}}, 1)
	p, err := NewPaginator(testConfig(), newTestLogger())
	if err != nil {
		t.Fatalf("NewPaginator: %v", err)
	}

	records, _ := drain(t, p, sim)

	if len(records) != 4 {
		t.Fatalf("extracted %d records; want 4 unique", len(records))
	}
	want := map[string]bool{"proyecto/1": true, "proyecto/2": true, "proyecto/3": true, "proyecto/4": true}
	for _, rec := range records {
		if !want[rec.IdentityKey] {
			t.Errorf("unexpected record %q", rec.IdentityKey)
		}
		delete(want, rec.IdentityKey)
	}
	if len(want) != 0 {
		t.Errorf("missing records: %v", want)
	}
}

func TestPaginatorStopsAtCycleCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCycles = 5
	sim := newCatalogSim(batchesOf(50, 1), 1000)
	p, err := NewPaginator(cfg, newTestLogger())
	if err != nil {
		t.Fatalf("NewPaginator: %v", err)
	}

	records, state := drain(t, p, sim)

	if state.CycleIndex != 5 {
		t.Errorf("terminated at cycle %d; want 5", state.CycleIndex)
	}
	if len(records) != 5 {
		t.Errorf("extracted %d records; want 5", len(records))
	}
}

func TestPaginatorSnapshotFailureCountsAsEmptyCycle(t *testing.T) {
	cfg := testConfig()
	cfg.EmptyCycleLimit = 2
	acc := newFakeAccessor()
	acc.outerHTMLErr = errors.New("render gone")
	p, err := NewPaginator(cfg, newTestLogger())
	if err != nil {
		t.Fatalf("NewPaginator: %v", err)
	}

	records, state := drain(t, p, acc)

	if len(records) != 0 {
		t.Errorf("extracted %d records from a broken page; want 0", len(records))
	}
	if !state.Terminal {
		t.Error("broken page must still terminate via the empty cycle limit")
	}
	if state.CycleIndex != 2 {
		t.Errorf("terminated at cycle %d; want 2", state.CycleIndex)
	}
}

func TestPaginatorTerminalStateIsAbsorbing(t *testing.T) {
	sim := newCatalogSim(batchesOf(1, 2), 0)
	p, err := NewPaginator(testConfig(), newTestLogger())
	if err != nil {
		t.Fatalf("NewPaginator: %v", err)
	}

	_, state := drain(t, p, sim)
	clicksAtEnd := sim.clicks

	fresh, next, err := p.RevealNext(context.Background(), sim, state)
	if err != nil {
		t.Fatalf("RevealNext on terminal state: %v", err)
	}
	if len(fresh) != 0 {
		t.Errorf("terminal RevealNext returned %d records; want 0", len(fresh))
	}
	if next.CycleIndex != state.CycleIndex {
		t.Errorf("terminal RevealNext advanced the cycle to %d", next.CycleIndex)
	}
	if sim.clicks != clicksAtEnd {
		t.Error("terminal RevealNext still touched the page")
	}
}

func TestPaginatorReturnsContextError(t *testing.T) {
	sim := newCatalogSim(batchesOf(2, 2), 10)
	p, err := NewPaginator(testConfig(), newTestLogger())
	if err != nil {
		t.Fatalf("NewPaginator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = p.RevealNext(ctx, sim, NewPaginationState())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RevealNext with cancelled ctx returned %v; want context.Canceled", err)
	}
}
