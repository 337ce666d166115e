package iris

import (
	"net/url"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"iris-scraper/models"
	"iris-scraper/normalize"
	"iris-scraper/utils"
)

var projectIDRegexp = regexp.MustCompile(`/proyecto/(\d+)`)

// identityKey derives the de-duplication key for a detail link. Links that
// carry a numeric project id key on the id, so the same project reached
// through different query strings still collapses to one record; anything
// else keys on the normalized absolute URL.
func identityKey(href string, base *url.URL) (key, detailURL string, ok bool) {
	abs, ok := normalize.AbsoluteURL(base, href)
	if !ok {
		return "", "", false
	}
	if m := projectIDRegexp.FindStringSubmatch(abs); m != nil {
		return "proyecto/" + m[1], abs, true
	}
	return abs, abs, true
}

// CardExtractor turns catalog card markup into CatalogRecords. Every field
// except the identity key and detail link is optional: a card that fails a
// field keeps the rest.
type CardExtractor struct {
	logger *utils.Logger
}

func NewCardExtractor(logger *utils.Logger) *CardExtractor {
	return &CardExtractor{logger: logger}
}

// ExtractAll locates every card in the snapshot and extracts each one.
// Cards with no usable detail link are dropped with a warning; order on the
// page is preserved.
func (e *CardExtractor) ExtractAll(doc *goquery.Document, base *url.URL) []*models.CatalogRecord {
	cards := e.findCards(doc)
	records := make([]*models.CatalogRecord, 0, cards.Length())
	cards.Each(func(i int, card *goquery.Selection) {
		rec, ok := e.Extract(card, base)
		if !ok {
			e.logger.Warn("[cards] Card %d has no usable detail link — dropped", i)
			return
		}
		records = append(records, rec)
	})
	return records
}

// findCards resolves the card container list against the snapshot, falling
// back to the nearest block ancestor of each detail link when no container
// selector matches.
func (e *CardExtractor) findCards(doc *goquery.Document) *goquery.Selection {
	if cards := firstMatch(doc.Selection, cardSelectors); cards != nil {
		return cards
	}
	seen := make(map[*html.Node]bool)
	var nodes *goquery.Selection
	doc.Find(detailLinkSelector).Each(func(_ int, link *goquery.Selection) {
		card := link.Closest(cardFallbackAncestors)
		if card.Length() == 0 {
			card = link
		}
		node := card.Get(0)
		if seen[node] {
			return
		}
		seen[node] = true
		if nodes == nil {
			nodes = card
		} else {
			nodes = nodes.AddSelection(card)
		}
	})
	if nodes == nil {
		return doc.Find(detailLinkSelector)
	}
	return nodes
}

// Extract reads one card. ok is false only when no detail link resolves,
// which makes the card unaddressable.
func (e *CardExtractor) Extract(card *goquery.Selection, base *url.URL) (*models.CatalogRecord, bool) {
	href, found := firstAttr(card, []string{detailLinkSelector}, "href")
	if !found {
		if h, hasSelf := card.Attr("href"); hasSelf && card.Is(detailLinkSelector) {
			href, found = h, true
		}
	}
	if !found {
		return nil, false
	}
	key, detailURL, ok := identityKey(href, base)
	if !ok {
		return nil, false
	}

	rec := &models.CatalogRecord{
		IdentityKey: key,
		DetailRef:   detailURL,
		ObservedAt:  time.Now(),
	}

	if name, ok := firstText(card, cardFieldSelectors["name"]); ok {
		rec.DisplayName = name
	} else {
		rec.DisplayName = key
	}
	if zone, ok := firstText(card, cardFieldSelectors["zone"]); ok {
		rec.Zone = &zone
	}
	if delivery, ok := firstText(card, cardFieldSelectors["delivery"]); ok {
		rec.DeliveryInfo = &delivery
	}
	if status, ok := firstText(card, cardFieldSelectors["status"]); ok {
		rec.Status = &status
	}
	if price, ok := firstText(card, cardFieldSelectors["price"]); ok {
		rec.PriceFrom = &price
	}
	if issuer, ok := firstText(card, cardFieldSelectors["issuer"]); ok {
		rec.IssuerName = &issuer
	}
	if commission, ok := firstText(card, cardFieldSelectors["commission"]); ok {
		rec.Commission = &commission
	}
	if e.hasVPFlag(card) {
		rec.Flags = append(rec.Flags, models.FlagLeyVP)
	}
	if src, ok := firstAttr(card, []string{"img"}, "src"); ok {
		if abs, valid := normalize.AbsoluteURL(base, src); valid {
			rec.ImageRef = &abs
		}
	}
	return rec, true
}

// hasVPFlag reports whether the promotional-housing column carries a truthy
// mark, either as text or as a check icon.
func (e *CardExtractor) hasVPFlag(card *goquery.Selection) bool {
	cell := firstMatch(card, cardFieldSelectors["vp"])
	if cell == nil {
		return false
	}
	if normalize.Bool(selText(cell.First())) {
		return true
	}
	return cell.First().Find(".anticon-check, .anticon-check-circle").Length() > 0
}
