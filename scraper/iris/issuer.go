package iris

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"iris-scraper/models"
	"iris-scraper/normalize"
	"iris-scraper/utils"
)

var (
	emailRegexp = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRegexp = regexp.MustCompile(`\+?\d[\d\s().\-]{6,}\d`)
)

// Hosts that are social or messaging surfaces, never the issuer's own site.
var socialHosts = []string{
	"facebook.com",
	"instagram.com",
	"twitter.com",
	"youtube.com",
	"linkedin.com",
	"wa.me",
	"api.whatsapp.com",
}

// issuerLabels pair a contact field with the label fragments that announce
// it inside the modal.
var issuerLabels = []struct {
	field     string
	fragments []string
}{
	{"name", []string{"nombre", "desarrollador", "empresa"}},
	{"email", []string{"email", "correo"}},
	{"phone", []string{"teléfono", "telefono", "tel."}},
	{"website", []string{"sitio web", "web"}},
}

// extractIssuer acquires issuer contact information for a detail page. It
// prefers the developer modal when a trigger exists, always dismissing it
// afterwards so the page is clean for whatever runs next, and falls back to
// scanning the page snapshot when no modal can be opened. A nil result means
// the page exposed nothing issuer-shaped.
func (d *DetailPipeline) extractIssuer(ctx context.Context, acc Accessor, pageDoc *goquery.Document, base *url.URL) *models.IssuerInfo {
	res, err := acc.Trigger(ctx, issuerModalTrigger)
	if err != nil || !res.Clicked {
		if err != nil {
			d.logger.Debug("[issuer] Modal trigger failed: %v", err)
		}
		return scanIssuer(issuerRegion(pageDoc), base, false)
	}
	defer d.dismissModal(ctx, acc)

	modalSel, ok := d.awaitModal(ctx, acc)
	if !ok {
		d.logger.Debug("[issuer] Modal never became visible after click")
		return scanIssuer(issuerRegion(pageDoc), base, false)
	}

	modalHTML, err := acc.OuterHTML(ctx, modalSel)
	if err != nil {
		d.logger.Warn("[issuer] Reading modal content failed: %v", err)
		return scanIssuer(issuerRegion(pageDoc), base, false)
	}
	modalDoc, err := parseSnapshot(modalHTML)
	if err != nil {
		d.logger.Warn("[issuer] Parsing modal content failed: %v", err)
		return scanIssuer(issuerRegion(pageDoc), base, false)
	}
	if info := scanIssuer(modalDoc.Selection, base, true); info != nil {
		return info
	}
	// Modal opened but carried nothing recognizable.
	return scanIssuer(issuerRegion(pageDoc), base, false)
}

// issuerRegion narrows a full-page scan to the developer section when the
// page has one, so footer contact data is not misattributed to the issuer.
func issuerRegion(doc *goquery.Document) *goquery.Selection {
	sectionSelectors := []string{
		"#desarrollador",
		"[class*='desarrollador']",
		"[class*='developer']",
	}
	if s := firstMatch(doc.Selection, sectionSelectors); s != nil {
		return s.First()
	}
	return doc.Selection
}

// awaitModal polls the modal container candidates until one appears.
func (d *DetailPipeline) awaitModal(ctx context.Context, acc Accessor) (string, bool) {
	interval := time.Duration(d.cfg.PollIntervalMs) * time.Millisecond
	attempts := d.cfg.ModalTimeoutMs / d.cfg.PollIntervalMs
	if attempts < 1 {
		attempts = 1
	}
	var matched string
	found, _ := utils.PollUntil(ctx, interval, attempts, func(ctx context.Context) (bool, error) {
		sel, _, ok := resolveSelector(ctx, acc, modalSelectors, 1)
		if ok {
			matched = sel
		}
		return ok, nil
	})
	return matched, found
}

// dismissModal closes whatever dialog is open, falling back to Escape when
// no close control resolves. Failures are logged, never propagated: a stuck
// overlay only degrades this one record.
func (d *DetailPipeline) dismissModal(ctx context.Context, acc Accessor) {
	res, err := acc.Trigger(ctx, modalCloseTrigger)
	if err == nil && res.Clicked {
		return
	}
	if err := acc.PressEscape(ctx); err != nil {
		d.logger.Warn("[issuer] Could not dismiss modal: %v", err)
	}
}

// scanIssuer reads issuer fields out of a region: the modal content when one
// opened, otherwise the whole page. mailto and tel anchors are the strongest
// signals; labeled fields and bare-text patterns fill the gaps.
func scanIssuer(region *goquery.Selection, base *url.URL, fromModal bool) *models.IssuerInfo {
	info := &models.IssuerInfo{FromModal: fromModal}
	populated := false

	if email, ok := anchorScheme(region, "mailto:"); ok {
		info.Email = &email
		populated = true
	}
	if phone, ok := anchorScheme(region, "tel:"); ok {
		info.Phone = &phone
		populated = true
	}

	labeled := issuerFields(region)
	if info.Email == nil {
		if v, ok := labeled["email"]; ok && emailRegexp.MatchString(v) {
			email := emailRegexp.FindString(v)
			info.Email = &email
			populated = true
		}
	}
	if info.Phone == nil {
		if v, ok := labeled["phone"]; ok {
			if m := phoneRegexp.FindString(v); m != "" {
				phone := normalize.Text(m)
				info.Phone = &phone
				populated = true
			}
		}
	}
	if v, ok := labeled["name"]; ok {
		info.Name = &v
		populated = true
	}
	if v, ok := labeled["website"]; ok {
		if abs, valid := normalize.AbsoluteURL(base, v); valid && externalHost(abs, base) {
			info.Website = &abs
			populated = true
		}
	}

	if info.Website == nil {
		if site, ok := externalLink(region, base); ok {
			info.Website = &site
			populated = true
		}
	}
	if fromModal {
		if info.Name == nil {
			if name, ok := firstText(region, []string{"h1", "h2", "h3", "h4", ".ant-modal-title"}); ok {
				info.Name = &name
				populated = true
			}
		}
		if src, ok := firstAttr(region, []string{"img"}, "src"); ok {
			if abs, valid := normalize.AbsoluteURL(base, src); valid {
				info.LogoURL = &abs
				populated = true
			}
		}
	}
	if info.Email == nil {
		if m := emailRegexp.FindString(selText(region)); m != "" {
			info.Email = &m
			populated = true
		}
	}

	if !populated {
		return nil
	}
	return info
}

// issuerFields runs the label scan with the issuer vocabulary.
func issuerFields(region *goquery.Selection) map[string]string {
	fields := make(map[string]string)
	region.Find("dt, th, strong, b, label, .ant-descriptions-item-label").Each(func(_ int, s *goquery.Selection) {
		label := strings.ToLower(selText(s))
		if label == "" || len([]rune(label)) > maxLabelChars {
			return
		}
		for _, entry := range issuerLabels {
			for _, fragment := range entry.fragments {
				if !strings.Contains(label, fragment) {
					continue
				}
				if _, done := fields[entry.field]; done {
					return
				}
				if val := adjacentValue(s, label); val != "" {
					fields[entry.field] = val
				}
				return
			}
		}
	})
	return fields
}

// anchorScheme finds the first anchor with the given scheme and returns its
// target with scheme and query stripped.
func anchorScheme(region *goquery.Selection, scheme string) (string, bool) {
	var out string
	region.Find("a[href^='" + scheme + "']").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		v := strings.TrimPrefix(href, scheme)
		if i := strings.IndexByte(v, '?'); i >= 0 {
			v = v[:i]
		}
		v = normalize.Text(v)
		if v == "" {
			return true
		}
		out = v
		return false
	})
	return out, out != ""
}

// externalLink finds the first http(s) anchor that leaves the catalog's own
// host and is not a social or messaging surface.
func externalLink(region *goquery.Selection, base *url.URL) (string, bool) {
	var out string
	region.Find("a[href^='http']").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		abs, ok := normalize.AbsoluteURL(base, href)
		if !ok || !externalHost(abs, base) {
			return true
		}
		out = abs
		return false
	})
	return out, out != ""
}

func externalHost(absURL string, base *url.URL) bool {
	u, err := url.Parse(absURL)
	if err != nil || u.Host == "" || strings.EqualFold(u.Host, base.Host) {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, social := range socialHosts {
		if host == social || strings.HasSuffix(host, "."+social) {
			return false
		}
	}
	return true
}
