package iris

import (
	"context"
	"net/url"
	"sync"
	"time"

	"iris-scraper/config"
	"iris-scraper/models"
	"iris-scraper/utils"
)

// DetailPipeline turns one already-navigated detail page into a
// DetailRecord. The pipeline never fails a record outright: each
// sub-extractor degrades to empty output independently, so a page with a
// broken unit table still yields its metadata and assets.
type DetailPipeline struct {
	cfg    *config.Config
	logger *utils.Logger
}

func NewDetailPipeline(cfg *config.Config, logger *utils.Logger) *DetailPipeline {
	return &DetailPipeline{cfg: cfg, logger: logger}
}

// ExtractAll runs the four sub-extractors against the current page. The
// metadata, units and assets extractors are read-only and share one
// immutable snapshot, so they fan out concurrently; the issuer extractor
// mutates the page by opening a modal and therefore always runs last.
func (d *DetailPipeline) ExtractAll(ctx context.Context, acc Accessor, rec *models.CatalogRecord) *models.DetailRecord {
	detail := &models.DetailRecord{
		IdentityKey: rec.IdentityKey,
		ExtractedAt: time.Now(),
	}

	pageURL, err := url.Parse(rec.DetailRef)
	if err != nil {
		d.logger.Warn("[detail] %s: unparseable detail ref %q: %v", rec.IdentityKey, rec.DetailRef, err)
		return detail
	}

	pageHTML, err := acc.OuterHTML(ctx, "body")
	if err != nil {
		d.logger.Warn("[detail] %s: page snapshot failed: %v", rec.IdentityKey, err)
		return detail
	}
	doc, err := parseSnapshot(pageHTML)
	if err != nil {
		d.logger.Warn("[detail] %s: snapshot did not parse: %v", rec.IdentityKey, err)
		return detail
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		detail.Metadata = extractMetadata(doc)
	}()
	go func() {
		defer wg.Done()
		detail.Units, detail.NoUnitsDetected = extractUnits(doc, d.logger)
	}()
	go func() {
		defer wg.Done()
		detail.Assets = collectAssets(doc, pageURL)
	}()
	wg.Wait()

	detail.Issuer = d.extractIssuer(ctx, acc, doc, pageURL)

	d.logger.Debug("[detail] %s: %d units, %d assets, issuer=%v",
		rec.IdentityKey, len(detail.Units), len(detail.Assets), detail.Issuer != nil)
	return detail
}
