package iris

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"iris-scraper/config"
	"iris-scraper/models"
	"iris-scraper/utils"
)

// PaginationState carries the progress of one catalog traversal between
// cycles. KnownKeys only ever grows and Terminal is absorbing: once set,
// RevealNext becomes a no-op.
type PaginationState struct {
	KnownKeys   *utils.KeySet
	CycleIndex  int
	EmptyCycles int
	Terminal    bool
}

// NewPaginationState returns the starting state for a fresh traversal.
func NewPaginationState() PaginationState {
	return PaginationState{KnownKeys: utils.NewKeySet()}
}

type revealOutcome int

const (
	revealGrew revealOutcome = iota
	revealStalled
	revealControlGone
)

// Paginator drives the catalog's reveal-more pagination. It never trusts a
// click to have worked: growth is confirmed by polling the set of
// addressable detail links, and a traversal always terminates through the
// empty-cycle threshold or the cycle ceiling even on a hostile page.
type Paginator struct {
	cfg    *config.Config
	logger *utils.Logger
	cards  *CardExtractor
	base   *url.URL
}

func NewPaginator(cfg *config.Config, logger *utils.Logger) (*Paginator, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse base url %q: %w", cfg.BaseURL, err)
	}
	return &Paginator{
		cfg:    cfg,
		logger: logger,
		cards:  NewCardExtractor(logger),
		base:   base,
	}, nil
}

// Open navigates to the catalog and switches it to the list rendering the
// card extractor is tuned for. A missing list toggle is not an error.
func (p *Paginator) Open(ctx context.Context, acc Accessor) error {
	if err := acc.Navigate(ctx, p.cfg.CatalogURL); err != nil {
		return fmt.Errorf("catalog: navigate: %w", err)
	}
	budget := time.Duration(p.cfg.VisibilityTimeoutMs) * time.Millisecond
	if err := acc.WaitVisible(ctx, detailLinkSelector, budget); err != nil {
		p.logger.Warn("[catalog] No project links visible after load: %v", err)
	}
	p.ensureListView(ctx, acc)
	return nil
}

func (p *Paginator) ensureListView(ctx context.Context, acc Accessor) {
	res, err := acc.Trigger(ctx, listViewTrigger)
	if err != nil {
		p.logger.Debug("[catalog] List view toggle errored: %v", err)
		return
	}
	if !res.Clicked {
		p.logger.Debug("[catalog] No list view toggle found, staying on default rendering")
		return
	}
	p.logger.Info("[catalog] Switched to list view via %q", res.Label)
	p.settle(ctx)
}

// settle gives the renderer a beat after a view-mutating click.
func (p *Paginator) settle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(p.cfg.PollIntervalMs) * time.Millisecond):
	}
}

// RevealNext performs one pagination cycle: extract the cards currently
// visible that are not yet known, then try to reveal the next batch for the
// following cycle. The returned state supersedes the input. Accessor
// failures inside a cycle are logged and count as an empty cycle; only
// context cancellation is returned as an error.
func (p *Paginator) RevealNext(ctx context.Context, acc Accessor, state PaginationState) ([]*models.CatalogRecord, PaginationState, error) {
	if state.Terminal {
		return nil, state, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, state, err
	}

	fresh, err := p.collectNew(ctx, acc, state)
	if err != nil {
		if ctx.Err() != nil {
			return nil, state, ctx.Err()
		}
		p.logger.Warn("[catalog] Cycle %d snapshot failed: %v", state.CycleIndex, err)
		state.EmptyCycles++
		return nil, p.advance(state), nil
	}

	switch p.revealMore(ctx, acc) {
	case revealControlGone:
		p.logger.Info("[catalog] Reveal-more control gone after cycle %d — catalog exhausted", state.CycleIndex)
		state.Terminal = true
	case revealStalled:
		state.EmptyCycles++
		p.logger.Info("[catalog] Cycle %d revealed nothing (%d/%d empty cycles)",
			state.CycleIndex, state.EmptyCycles, p.cfg.EmptyCycleLimit)
	case revealGrew:
		state.EmptyCycles = 0
	}

	if ctx.Err() != nil {
		return fresh, state, ctx.Err()
	}
	return fresh, p.advance(state), nil
}

// advance moves the cycle counter and applies the two termination
// thresholds that bound every traversal.
func (p *Paginator) advance(state PaginationState) PaginationState {
	state.CycleIndex++
	if !state.Terminal && state.EmptyCycles >= p.cfg.EmptyCycleLimit {
		p.logger.Info("[catalog] %d consecutive empty cycles — treating catalog as exhausted", state.EmptyCycles)
		state.Terminal = true
	}
	if !state.Terminal && state.CycleIndex >= p.cfg.MaxCycles {
		p.logger.Warn("[catalog] Cycle ceiling %d reached — stopping traversal", p.cfg.MaxCycles)
		state.Terminal = true
	}
	return state
}

// collectNew snapshots the page and extracts every card whose identity key
// has not been seen in this traversal. Keys are registered here, so a card
// re-rendered by a later cycle can never produce a duplicate record.
func (p *Paginator) collectNew(ctx context.Context, acc Accessor, state PaginationState) ([]*models.CatalogRecord, error) {
	pageHTML, err := acc.OuterHTML(ctx, "body")
	if err != nil {
		return nil, fmt.Errorf("catalog: page snapshot: %w", err)
	}
	doc, err := parseSnapshot(pageHTML)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse snapshot: %w", err)
	}

	all := p.cards.ExtractAll(doc, p.base)
	fresh := make([]*models.CatalogRecord, 0, len(all))
	for _, rec := range all {
		if state.KnownKeys.Add(rec.IdentityKey) {
			fresh = append(fresh, rec)
		}
	}
	return fresh, nil
}

// revealMore locates and clicks the reveal-more control, then waits for the
// page to actually grow. A dispatched click that produces no growth is
// retried a bounded number of times with a scroll nudge in between.
func (p *Paginator) revealMore(ctx context.Context, acc Accessor) revealOutcome {
	beforeKeys, beforeRows := p.addressable(ctx, acc)

	for attempt := 1; attempt <= p.cfg.ClickRetries; attempt++ {
		res, err := acc.Trigger(ctx, loadMoreTrigger)
		if err != nil {
			p.logger.Warn("[catalog] Reveal-more trigger failed: %v", err)
			return revealStalled
		}
		if !res.Found {
			return revealControlGone
		}
		if !res.Visible || !res.Enabled {
			p.logger.Info("[catalog] Reveal-more control present but inactive — end of catalog")
			return revealControlGone
		}
		if !res.Clicked {
			return revealStalled
		}

		grew, err := p.waitForGrowth(ctx, acc, beforeKeys, beforeRows)
		if err != nil && ctx.Err() != nil {
			return revealStalled
		}
		if grew {
			return revealGrew
		}
		p.logger.Debug("[catalog] No growth after click (attempt %d/%d)", attempt, p.cfg.ClickRetries)
		if err := acc.ScrollToBottom(ctx, ""); err != nil {
			p.logger.Debug("[catalog] Scroll nudge failed: %v", err)
		}
	}
	return revealStalled
}

// addressable snapshots the current set of identity keys and the card row
// count. Errors degrade to empty values; the poll probe tolerates both.
func (p *Paginator) addressable(ctx context.Context, acc Accessor) (map[string]struct{}, int) {
	keys := make(map[string]struct{})
	hrefs, err := acc.Hrefs(ctx, detailLinkSelector)
	if err != nil {
		p.logger.Debug("[catalog] Reading detail links failed: %v", err)
	}
	for _, h := range hrefs {
		if k, _, ok := identityKey(h, p.base); ok {
			keys[k] = struct{}{}
		}
	}
	_, rows, _ := resolveSelector(ctx, acc, cardSelectors, 1)
	return keys, rows
}

// waitForGrowth polls until the page exposes an identity key that was not
// addressable before the click, or more card rows, or the attempt budget
// runs out. Key comparison is by set membership, not count, so a re-render
// that swaps links without growing them still registers.
func (p *Paginator) waitForGrowth(ctx context.Context, acc Accessor, beforeKeys map[string]struct{}, beforeRows int) (bool, error) {
	interval := time.Duration(p.cfg.PollIntervalMs) * time.Millisecond
	return utils.PollUntil(ctx, interval, p.cfg.PollMaxAttempts, func(ctx context.Context) (bool, error) {
		keys, rows := p.addressable(ctx, acc)
		for k := range keys {
			if _, known := beforeKeys[k]; !known {
				return true, nil
			}
		}
		if beforeRows > 0 && rows > beforeRows {
			return true, nil
		}
		return false, nil
	})
}
