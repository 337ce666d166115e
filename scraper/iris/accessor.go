package iris

import (
	"context"
	"time"
)

// TriggerRequest describes a control to locate and click. CSS selector
// candidates are tried first, then elements of the given tags are scanned
// for a visible label containing one of the accepted substrings.
type TriggerRequest struct {
	Selectors []string `json:"selectors,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Labels    []string `json:"labels,omitempty"`
}

// TriggerResult reports what the page observed while resolving a trigger.
// Found without Clicked means the control exists but was hidden or disabled.
type TriggerResult struct {
	Found   bool   `json:"found"`
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
	Clicked bool   `json:"clicked"`
	Label   string `json:"label"`
}

// Accessor is the capability surface the scraper needs from one live page.
// Every operation is blocking I/O against the renderer and must honour ctx.
type Accessor interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, selector string, budget time.Duration) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Trigger(ctx context.Context, req TriggerRequest) (TriggerResult, error)
	Count(ctx context.Context, selector string) (int, error)
	Text(ctx context.Context, selector string) (string, error)
	Hrefs(ctx context.Context, selector string) ([]string, error)
	OuterHTML(ctx context.Context, selector string) (string, error)
	ScrollToBottom(ctx context.Context, selector string) error
	PressEscape(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
}

// resolveSelector returns the first selector matching at least min nodes on
// the live page, with the matched count.
func resolveSelector(ctx context.Context, acc Accessor, selectors []string, min int) (string, int, bool) {
	for _, sel := range selectors {
		n, err := acc.Count(ctx, sel)
		if err != nil {
			continue
		}
		if n >= min {
			return sel, n, true
		}
	}
	return "", 0, false
}
