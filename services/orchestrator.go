package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"iris-scraper/config"
	"iris-scraper/models"
	"iris-scraper/scraper/iris"
	"iris-scraper/storage"
	"iris-scraper/utils"
)

// Orchestrator sequences the two phases of a run: catalog traversal, then
// detail enrichment. It owns the politeness budget between page loads, the
// failure report, and the rule that one bad record never stops the run.
type Orchestrator struct {
	cfg       *config.Config
	logger    *utils.Logger
	sink      storage.RecordSink
	paginator *iris.Paginator
	pipeline  *iris.DetailPipeline
	limiter   *rate.Limiter
	retry     *utils.RetryConfig
	runID     string

	mu      sync.Mutex
	details []*models.DetailRecord
}

func NewOrchestrator(cfg *config.Config, logger *utils.Logger, sink storage.RecordSink) (*Orchestrator, error) {
	paginator, err := iris.NewPaginator(cfg, logger)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if cfg.RateLimitMs > 0 {
		limit = rate.Every(time.Duration(cfg.RateLimitMs) * time.Millisecond)
	}

	return &Orchestrator{
		cfg:       cfg,
		logger:    logger,
		sink:      sink,
		paginator: paginator,
		pipeline:  iris.NewDetailPipeline(cfg, logger),
		limiter:   rate.NewLimiter(limit, 1),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   time.Second,
			Logger:      logger,
		},
		runID: uuid.NewString(),
	}, nil
}

// RunID identifies this run in logs, artifacts and the summary.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Details returns the detail records extracted so far.
func (o *Orchestrator) Details() []*models.DetailRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*models.DetailRecord(nil), o.details...)
}

// CollectCatalog runs phase one: traverse the paginated catalog until it is
// exhausted, persisting every newly revealed record as it appears. Partial
// results survive cancellation; the error is non-nil only when the context
// died or the catalog could not be opened at all.
func (o *Orchestrator) CollectCatalog(ctx context.Context, acc iris.Accessor) ([]*models.CatalogRecord, error) {
	if err := o.paginator.Open(ctx, acc); err != nil {
		return nil, err
	}

	state := iris.NewPaginationState()
	var collected []*models.CatalogRecord

	for !state.Terminal {
		fresh, next, err := o.paginator.RevealNext(ctx, acc, state)
		if err != nil {
			return collected, err
		}
		state = next

		var inserted, updated, unchanged int
		for _, rec := range fresh {
			status, err := o.sink.SaveRecord(ctx, rec)
			if err != nil {
				o.logger.Error("[orchestrator] Saving %s failed: %v", rec.IdentityKey, err)
				continue
			}
			switch status {
			case storage.StatusInserted:
				inserted++
			case storage.StatusUpdated:
				updated++
			case storage.StatusUnchanged:
				unchanged++
			}
			collected = append(collected, rec)
		}
		if len(fresh) > 0 || state.Terminal {
			o.logger.Info("[orchestrator] Cycle %d: %d new cards (total %d) — %d inserted, %d updated, %d unchanged",
				state.CycleIndex, len(fresh), state.KnownKeys.Size(), inserted, updated, unchanged)
		}
		o.saveArtifacts(ctx, acc, state.CycleIndex)
	}

	o.logger.Info("[orchestrator] Catalog traversal finished after %d cycles with %d records",
		state.CycleIndex, len(collected))
	return collected, nil
}

// EnrichDetails runs phase two: visit each record's detail page and extract
// the full structure. Records that already have a stored detail are skipped,
// which is what makes an interrupted run resumable. Pages are tabs of one
// authenticated browser; each in-flight record holds exactly one.
func (o *Orchestrator) EnrichDetails(ctx context.Context, pages []iris.Accessor, records []*models.CatalogRecord) *models.RunSummary {
	start := time.Now()
	summary := &models.RunSummary{RunID: o.runID}

	if len(pages) == 0 {
		o.logger.Error("[orchestrator] No pages available for detail extraction")
		return summary
	}

	processed, err := o.sink.ProcessedKeys(ctx)
	if err != nil {
		o.logger.Warn("[orchestrator] Loading processed keys failed, re-extracting everything: %v", err)
		processed = map[string]bool{}
	}

	queue := make([]*models.CatalogRecord, 0, len(records))
	for _, rec := range records {
		if processed[rec.IdentityKey] {
			summary.Skipped++
			continue
		}
		queue = append(queue, rec)
	}
	if o.cfg.DetailLimit > 0 && len(queue) > o.cfg.DetailLimit {
		o.logger.Info("[orchestrator] Detail limit %d active, trimming queue from %d", o.cfg.DetailLimit, len(queue))
		queue = queue[:o.cfg.DetailLimit]
	}
	o.logger.Info("[orchestrator] Extracting %d detail pages on %d tab(s), %d already stored",
		len(queue), len(pages), summary.Skipped)

	pageCh := make(chan iris.Accessor, len(pages))
	for _, p := range pages {
		pageCh <- p
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(pages))
	for _, rec := range queue {
		rec := rec
		g.Go(func() error {
			if gctx.Err() != nil {
				o.noteAbandoned(summary, rec)
				return gctx.Err()
			}
			acc := <-pageCh
			defer func() { pageCh <- acc }()

			if err := o.limiter.Wait(gctx); err != nil {
				o.noteAbandoned(summary, rec)
				return err
			}
			o.processRecord(gctx, acc, rec, summary)
			return nil
		})
	}
	_ = g.Wait()

	summary.Elapsed = time.Since(start)
	return summary
}

// processRecord handles one detail page end to end. Failures are recorded in
// the summary, never propagated; a panic escaping an extractor is downgraded
// to a failed record the same way.
func (o *Orchestrator) processRecord(ctx context.Context, acc iris.Accessor, rec *models.CatalogRecord, summary *models.RunSummary) {
	defer func() {
		if r := recover(); r != nil {
			o.noteFailure(summary, rec, fmt.Sprintf("panic: %v", r))
		}
	}()

	err := o.retry.Do(ctx, fmt.Sprintf("navigate %s", rec.IdentityKey), func() error {
		return acc.Navigate(ctx, rec.DetailRef)
	})
	if err != nil {
		if ctx.Err() != nil {
			o.noteAbandoned(summary, rec)
			return
		}
		o.noteFailure(summary, rec, err.Error())
		return
	}

	detail := o.pipeline.ExtractAll(ctx, acc, rec)
	if ctx.Err() != nil {
		o.noteAbandoned(summary, rec)
		return
	}

	if err := o.sink.SaveDetail(ctx, detail); err != nil {
		o.noteFailure(summary, rec, "sink: "+err.Error())
		return
	}

	o.mu.Lock()
	summary.Succeeded++
	o.details = append(o.details, detail)
	o.mu.Unlock()

	issuerNote := ""
	if detail.Issuer != nil {
		issuerNote = ", issuer found"
	}
	o.logger.Info("[orchestrator] %s: %d units, %d assets%s",
		rec.IdentityKey, len(detail.Units), len(detail.Assets), issuerNote)
}

// saveArtifacts captures a screenshot and the page HTML after a cycle, for
// offline debugging of selector drift. Disabled unless ARTIFACTS_DIR is set.
func (o *Orchestrator) saveArtifacts(ctx context.Context, acc iris.Accessor, cycle int) {
	if o.cfg.ArtifactsDir == "" {
		return
	}
	dir := filepath.Join(o.cfg.ArtifactsDir, o.runID[:8])
	if err := os.MkdirAll(dir, 0755); err != nil {
		o.logger.Debug("[orchestrator] Artifacts dir: %v", err)
		return
	}
	if shot, err := acc.Screenshot(ctx); err == nil {
		_ = os.WriteFile(filepath.Join(dir, fmt.Sprintf("cycle_%03d.png", cycle)), shot, 0644)
	} else {
		o.logger.Debug("[orchestrator] Screenshot failed: %v", err)
	}
	if pageHTML, err := acc.OuterHTML(ctx, "html"); err == nil {
		_ = os.WriteFile(filepath.Join(dir, fmt.Sprintf("cycle_%03d.html", cycle)), []byte(pageHTML), 0644)
	}
}

func (o *Orchestrator) noteFailure(summary *models.RunSummary, rec *models.CatalogRecord, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	summary.Failed++
	summary.Failures = append(summary.Failures, models.Failure{
		IdentityKey: rec.IdentityKey,
		Reason:      reason,
		At:          time.Now(),
	})
	o.logger.Error("[orchestrator] %s failed: %s", rec.IdentityKey, reason)
}

func (o *Orchestrator) noteAbandoned(summary *models.RunSummary, rec *models.CatalogRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	summary.Abandoned++
	o.logger.Warn("[orchestrator] %s abandoned, run cancelled", rec.IdentityKey)
}
