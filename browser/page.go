package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"iris-scraper/scraper/iris"
	"iris-scraper/utils"
)

// Page is one browser tab implementing iris.Accessor. Every operation runs
// with its own deadline derived from the tab context and is additionally
// cut short when the caller's ctx is cancelled.
type Page struct {
	tab        context.Context
	logger     *utils.Logger
	navTimeout time.Duration
}

const opTimeout = 15 * time.Second

func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(p.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	err := p.run(ctx, p.navTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

func (p *Page) Location(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, opTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("browser: location: %w", err)
	}
	return loc, nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string, budget time.Duration) error {
	if budget <= 0 {
		budget = opTimeout
	}
	err := p.run(ctx, budget, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil {
		return fmt.Errorf("browser: wait visible %q: %w", selector, err)
	}
	return nil
}

func (p *Page) Fill(ctx context.Context, selector, value string) error {
	err := p.run(ctx, opTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("browser: fill %q: %w", selector, err)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, opTimeout, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("browser: click %q: %w", selector, err)
	}
	return nil
}

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	var n int
	js := fmt.Sprintf(`document.querySelectorAll(%q).length`, selector)
	if err := p.run(ctx, opTimeout, chromedp.Evaluate(js, &n)); err != nil {
		return 0, fmt.Errorf("browser: count %q: %w", selector, err)
	}
	return n, nil
}

func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	var out string
	js := fmt.Sprintf(`(function() {
		const el = document.querySelector(%q);
		return el ? (el.innerText || el.textContent || '') : '';
	})()`, selector)
	if err := p.run(ctx, opTimeout, chromedp.Evaluate(js, &out)); err != nil {
		return "", fmt.Errorf("browser: text %q: %w", selector, err)
	}
	return out, nil
}

func (p *Page) Hrefs(ctx context.Context, selector string) ([]string, error) {
	out := []string{}
	js := fmt.Sprintf(`Array.from(new Set(
		Array.from(document.querySelectorAll(%q))
			.map(a => a.href)
			.filter(Boolean)
	))`, selector)
	if err := p.run(ctx, opTimeout, chromedp.Evaluate(js, &out)); err != nil {
		return nil, fmt.Errorf("browser: hrefs %q: %w", selector, err)
	}
	return out, nil
}

func (p *Page) OuterHTML(ctx context.Context, selector string) (string, error) {
	if selector == "" {
		selector = "html"
	}
	var out string
	if err := p.run(ctx, opTimeout, chromedp.OuterHTML(selector, &out, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("browser: outer html %q: %w", selector, err)
	}
	return out, nil
}

func (p *Page) ScrollToBottom(ctx context.Context, selector string) error {
	var js string
	if selector == "" {
		js = `window.scrollTo(0, document.body.scrollHeight); true`
	} else {
		js = fmt.Sprintf(`(function() {
			const el = document.querySelector(%q);
			if (!el) return false;
			el.scrollTop = el.scrollHeight;
			return true;
		})()`, selector)
	}
	var ok bool
	if err := p.run(ctx, opTimeout, chromedp.Evaluate(js, &ok)); err != nil {
		return fmt.Errorf("browser: scroll: %w", err)
	}
	return nil
}

func (p *Page) PressEscape(ctx context.Context) error {
	if err := p.run(ctx, opTimeout, chromedp.KeyEvent(kb.Escape)); err != nil {
		return fmt.Errorf("browser: press escape: %w", err)
	}
	return nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, opTimeout, chromedp.FullScreenshot(&buf, 80)); err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return buf, nil
}

// triggerJS locates a control in the page from CSS candidates or a label
// scan and clicks the first one that is visible and enabled. It reports
// exactly what it saw so the caller can tell "gone" from "inert".
const triggerJS = `(function(req) {
	const res = {found: false, visible: false, enabled: false, clicked: false, label: ''};
	let cands = [];
	for (const sel of (req.selectors || [])) {
		try {
			document.querySelectorAll(sel).forEach(el => cands.push(el));
		} catch (e) { /* bad selector, skip */ }
	}
	if (cands.length === 0 && (req.labels || []).length > 0) {
		const tags = (req.tags && req.tags.length) ? req.tags.join(',') : 'button,a';
		const labels = req.labels.map(l => l.toLowerCase());
		document.querySelectorAll(tags).forEach(el => {
			const text = (el.innerText || el.textContent || '').trim().toLowerCase();
			if (!text || text.length > 80) return;
			if (labels.some(l => text.includes(l))) cands.push(el);
		});
	}
	if (cands.length === 0) return res;
	res.found = true;
	for (const el of cands) {
		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		if (style.display === 'none' || style.visibility === 'hidden' ||
			rect.width === 0 || rect.height === 0) continue;
		res.visible = true;
		if (el.disabled === true ||
			el.getAttribute('aria-disabled') === 'true' ||
			el.classList.contains('disabled') ||
			el.classList.contains('ant-btn-loading')) continue;
		res.enabled = true;
		res.label = (el.innerText || el.textContent || '').trim();
		el.scrollIntoView({block: 'center'});
		el.click();
		res.clicked = true;
		return res;
	}
	return res;
})(%s)`

func (p *Page) Trigger(ctx context.Context, req iris.TriggerRequest) (iris.TriggerResult, error) {
	var res iris.TriggerResult
	payload, err := json.Marshal(req)
	if err != nil {
		return res, fmt.Errorf("browser: encode trigger request: %w", err)
	}
	js := fmt.Sprintf(triggerJS, payload)
	if err := p.run(ctx, opTimeout, chromedp.Evaluate(js, &res)); err != nil {
		return res, fmt.Errorf("browser: trigger: %w", err)
	}
	return res, nil
}
