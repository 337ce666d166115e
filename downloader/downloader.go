// Package downloader fetches classified asset files over plain HTTP, outside
// the browser. Downloads land in per-project directories and go through a
// temporary .part file so an interrupted run never leaves a half-written
// file under a final name.
package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"iris-scraper/config"
	"iris-scraper/models"
	"iris-scraper/utils"
)

const downloadTimeout = 60 * time.Second

// Downloader pulls asset files concurrently with bounded parallelism.
type Downloader struct {
	client *resty.Client
	logger *utils.Logger
	pool   *utils.WorkerPool
	dir    string
}

func New(cfg *config.Config, logger *utils.Logger) *Downloader {
	client := resty.New().
		SetTimeout(downloadTimeout).
		SetRetryCount(cfg.RequestRetryCount).
		SetRetryWaitTime(time.Duration(cfg.RequestRetryBackoffMs) * time.Millisecond).
		SetHeader("User-Agent", cfg.UserAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Downloader{
		client: client,
		logger: logger,
		pool:   utils.NewWorkerPool(cfg.ConcurrentDownloads, 0),
		dir:    cfg.DownloadDir,
	}
}

// FetchAll downloads every asset of every detail record and reports how many
// files were saved. Individual failures are logged and skipped; an existing
// file is counted without re-fetching it.
func (d *Downloader) FetchAll(ctx context.Context, details []*models.DetailRecord) int {
	var saved int64
	for _, det := range details {
		for _, asset := range det.Assets {
			if asset.URL == "" {
				continue
			}
			det, asset := det, asset
			d.pool.Submit(func() {
				if ctx.Err() != nil {
					return
				}
				if err := d.fetch(ctx, det.IdentityKey, asset); err != nil {
					d.logger.Warn("[downloader] %s: %v", asset.URL, err)
					return
				}
				atomic.AddInt64(&saved, 1)
			})
		}
	}
	d.pool.Wait()
	return int(saved)
}

func (d *Downloader) fetch(ctx context.Context, key string, asset models.AssetLink) error {
	dir := filepath.Join(d.dir, sanitize(key))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("downloader: create dir: %w", err)
	}

	dest := filepath.Join(dir, fileName(asset))
	if _, err := os.Stat(dest); err == nil {
		d.logger.Debug("[downloader] Already present: %s", dest)
		return nil
	}

	part := dest + ".part"
	resp, err := d.client.R().
		SetContext(ctx).
		SetOutput(part).
		Get(asset.URL)
	if err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("downloader: get: %w", err)
	}
	if resp.IsError() {
		_ = os.Remove(part)
		return fmt.Errorf("downloader: get: status %s", resp.Status())
	}

	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("downloader: finalize: %w", err)
	}
	d.logger.Debug("[downloader] Saved %s", dest)
	return nil
}

// fileName derives a filesystem name from the asset URL, falling back to the
// classification when the path carries none.
func fileName(asset models.AssetLink) string {
	if u, err := url.Parse(asset.URL); err == nil {
		base := path.Base(u.Path)
		if base != "" && base != "." && base != "/" {
			return sanitize(base)
		}
	}
	name := asset.Classification
	if asset.MimeHint != "" {
		name += "." + asset.MimeHint
	}
	return sanitize(name)
}

// sanitize keeps names safe for every filesystem the output may land on.
func sanitize(name string) string {
	repl := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_",
		"?", "_", `"`, "_", "<", "_", ">", "_", "|", "_",
	)
	out := repl.Replace(name)
	if out == "" {
		return "_"
	}
	return out
}
