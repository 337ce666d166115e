package iris

import (
	"context"
	"sync"
	"time"

	"iris-scraper/config"
	"iris-scraper/utils"
)

func newTestLogger() *utils.Logger {
	return utils.NewLogger()
}

// testConfig returns a Config tuned for fast tests: single-attempt polls and
// millisecond intervals instead of the production budgets.
func testConfig() *config.Config {
	return &config.Config{
		BaseURL:             "https://iris.example.test",
		LoginURL:            "https://iris.example.test/iniciar-sesion",
		CatalogURL:          "https://iris.example.test/proyectos",
		NavTimeoutMs:        100,
		PollIntervalMs:      1,
		PollMaxAttempts:     2,
		VisibilityTimeoutMs: 20,
		MaxCycles:           200,
		EmptyCycleLimit:     3,
		ClickRetries:        1,
		ModalTimeoutMs:      10,
		MaxRetries:          1,
		MaxConcurrency:      1,
	}
}

// fakeAccessor is a scriptable Accessor. The zero maps behave like a blank
// page; tests populate counts, texts and page HTML, and hook clicks and
// triggers to script page reactions.
type fakeAccessor struct {
	mu          sync.Mutex
	location    string
	locationFor map[string]string
	pageHTML    string
	htmlBySel   map[string]string
	counts      map[string]int
	texts       map[string]string
	hrefs       []string
	filled      map[string]string
	clicks      []string
	escapes     int

	navigateErr  error
	outerHTMLErr error
	onClick      func(selector string)
	onTrigger    func(req TriggerRequest) (TriggerResult, error)
}

var _ Accessor = (*fakeAccessor)(nil)

func newFakeAccessor() *fakeAccessor {
	return &fakeAccessor{
		locationFor: make(map[string]string),
		htmlBySel:   make(map[string]string),
		counts:      make(map[string]int),
		texts:       make(map[string]string),
		filled:      make(map[string]string),
	}
}

func (f *fakeAccessor) Navigate(_ context.Context, url string) error {
	if f.navigateErr != nil {
		return f.navigateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if loc, ok := f.locationFor[url]; ok {
		f.location = loc
	} else {
		f.location = url
	}
	return nil
}

func (f *fakeAccessor) Location(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.location, nil
}

func (f *fakeAccessor) WaitVisible(context.Context, string, time.Duration) error {
	return nil
}

func (f *fakeAccessor) Fill(_ context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filled[selector] = value
	return nil
}

func (f *fakeAccessor) Click(_ context.Context, selector string) error {
	f.mu.Lock()
	f.clicks = append(f.clicks, selector)
	f.mu.Unlock()
	if f.onClick != nil {
		f.onClick(selector)
	}
	return nil
}

func (f *fakeAccessor) Trigger(_ context.Context, req TriggerRequest) (TriggerResult, error) {
	if f.onTrigger != nil {
		return f.onTrigger(req)
	}
	return TriggerResult{}, nil
}

func (f *fakeAccessor) Count(_ context.Context, selector string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[selector], nil
}

func (f *fakeAccessor) Text(_ context.Context, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.texts[selector], nil
}

func (f *fakeAccessor) Hrefs(context.Context, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hrefs...), nil
}

func (f *fakeAccessor) OuterHTML(_ context.Context, selector string) (string, error) {
	if f.outerHTMLErr != nil {
		return "", f.outerHTMLErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if html, ok := f.htmlBySel[selector]; ok {
		return html, nil
	}
	return f.pageHTML, nil
}

func (f *fakeAccessor) ScrollToBottom(context.Context, string) error {
	return nil
}

func (f *fakeAccessor) PressEscape(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escapes++
	return nil
}

func (f *fakeAccessor) Screenshot(context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func (f *fakeAccessor) setCount(selector string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[selector] = n
}
