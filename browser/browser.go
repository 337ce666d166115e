package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"

	"iris-scraper/config"
	"iris-scraper/utils"
)

// Session owns the Chrome process shared by every page of one run. Tabs
// opened through NewPage share its cookies, so one login authenticates all
// of them.
type Session struct {
	cfg    *config.Config
	logger *utils.Logger

	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

// NewSession launches the browser. The first page is not opened here;
// callers get tabs from NewPage.
func NewSession(cfg *config.Config, logger *utils.Logger) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("lang", "es-UY"),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if bin := findChromeBinary(cfg.ChromeBin); bin != "" {
		logger.Info("[browser] Using browser binary: %s", bin)
		opts = append(opts, chromedp.ExecPath(bin))
	} else {
		logger.Info("[browser] No explicit browser binary found, letting chromedp decide")
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}),
	)

	// Start the process now so a broken binary fails here, not mid-run.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("browser: start: %w", err)
	}

	return &Session{
		cfg:           cfg,
		logger:        logger,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}, nil
}

// NewPage opens a fresh tab in the shared browser and returns its accessor.
// The returned cancel closes just that tab.
func (s *Session) NewPage() (*Page, context.CancelFunc) {
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	page := &Page{
		tab:        tabCtx,
		logger:     s.logger,
		navTimeout: time.Duration(s.cfg.NavTimeoutMs) * time.Millisecond,
	}
	return page, cancel
}

// Close shuts the whole browser down, tabs included.
func (s *Session) Close() {
	s.cancelBrowser()
	s.cancelAlloc()
}

// findChromeBinary resolves the browser executable: an explicit override
// first, then well-known names on PATH, then the usual install locations.
func findChromeBinary(override string) string {
	if override != "" {
		return override
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	fixed := []string{
		"/usr/bin/google-chrome",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/opt/google/chrome/chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, path := range fixed {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
