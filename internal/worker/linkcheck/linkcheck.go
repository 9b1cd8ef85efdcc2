// Package linkcheck は管理者が登録した画像URLの到達性を定期的に確認する。
// 結果はログとメトリクスに出力するのみで、カタログは変更しない。
package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/tipflix/internal/model"
)

// 画像が壊れていると判定した理由
var (
	ErrUnsafeURL = errors.New("unsafe url")
	ErrBadStatus = errors.New("unexpected status")
	ErrNotImage  = errors.New("not an image")
	ErrTooLarge  = errors.New("image too large")
)

// URLGuard はSSRF対策の検証とクライアント生成を行う。security.SSRFGuard が実装する。
type URLGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// MovieLister は全映画を返す。repository.MovieRepository が実装する。
type MovieLister interface {
	ListAll(ctx context.Context) ([]model.Movie, error)
}

// BannerLister は全バナーを返す。repository.BannerRepository が実装する。
type BannerLister interface {
	ListAll(ctx context.Context) ([]model.Banner, error)
}

// Recorder は確認結果を記録する。metrics.Collector が実装する。
type Recorder interface {
	SetBrokenImages(collection string, n int)
	RecordLinkCheckDuration(d time.Duration)
}

// Config はリンクチェックの設定。
type Config struct {
	Timeout       time.Duration
	MaxSize       int64
	MaxConcurrent int
}

// Broken は到達できなかった画像。
type Broken struct {
	Collection string
	ID         string
	URL        string
	Err        error
}

// Report は1回分の確認結果。
type Report struct {
	Checked int
	Broken  []Broken
}

// BrokenCount はコレクションごとの壊れた画像の件数を返す。
func (r Report) BrokenCount(collection string) int {
	n := 0
	for _, b := range r.Broken {
		if b.Collection == collection {
			n++
		}
	}
	return n
}

type target struct {
	collection string
	id         string
	url        string
}

// Checker は映画のサムネイルとバナー画像を確認する。
type Checker struct {
	movies   MovieLister
	banners  BannerLister
	guard    URLGuard
	client   *http.Client
	recorder Recorder
	logger   *slog.Logger
	config   Config
}

// NewChecker はCheckerを生成する。recorderはnilでもよい。
// MaxConcurrentが0以下の場合は5、MaxSizeが0以下の場合は5MBを使用する。
func NewChecker(movies MovieLister, banners BannerLister, guard URLGuard, recorder Recorder, logger *slog.Logger, config Config) *Checker {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 5
	}
	if config.MaxSize <= 0 {
		config.MaxSize = 5 * 1024 * 1024
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		movies:   movies,
		banners:  banners,
		guard:    guard,
		client:   guard.NewSafeClient(config.Timeout),
		recorder: recorder,
		logger:   logger,
		config:   config,
	}
}

// Start は起動直後に1回、その後intervalごとに確認を行う。ctxがキャンセルされるまでブロックする。
func (c *Checker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("link checker started",
		slog.Duration("interval", interval),
		slog.Int("max_concurrent", c.config.MaxConcurrent),
	)

	c.runAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("link checker stopped")
			return
		case <-ticker.C:
			c.runAndLog(ctx)
		}
	}
}

func (c *Checker) runAndLog(ctx context.Context) {
	if _, err := c.RunOnce(ctx); err != nil {
		c.logger.Error("link check cycle failed", slog.String("error", err.Error()))
	}
}

// RunOnce は全画像URLを並列に確認する。URLが空のものは対象外。
func (c *Checker) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()

	movies, err := c.movies.ListAll(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list movies: %w", err)
	}
	banners, err := c.banners.ListAll(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list banners: %w", err)
	}

	var targets []target
	for _, m := range movies {
		if m.ThumbnailURL != "" {
			targets = append(targets, target{collection: model.CollectionMovies, id: m.ID, url: m.ThumbnailURL})
		}
	}
	for _, b := range banners {
		if b.ImageURL != "" {
			targets = append(targets, target{collection: model.CollectionBanners, id: b.ID, url: b.ImageURL})
		}
	}

	report := Report{Checked: len(targets)}
	var mu sync.Mutex

	sem := make(chan struct{}, c.config.MaxConcurrent)
	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		sem <- struct{}{}

		go func(t target) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := c.Probe(ctx, t.url); err != nil {
				c.logger.Warn("broken image",
					slog.String("collection", t.collection),
					slog.String("id", t.id),
					slog.String("url", t.url),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				report.Broken = append(report.Broken, Broken{Collection: t.collection, ID: t.id, URL: t.url, Err: err})
				mu.Unlock()
			}
		}(t)
	}
	wg.Wait()

	duration := time.Since(start)
	if c.recorder != nil {
		c.recorder.SetBrokenImages(model.CollectionMovies, report.BrokenCount(model.CollectionMovies))
		c.recorder.SetBrokenImages(model.CollectionBanners, report.BrokenCount(model.CollectionBanners))
		c.recorder.RecordLinkCheckDuration(duration)
	}

	c.logger.Info("link check completed",
		slog.Int("checked", report.Checked),
		slog.Int("broken", len(report.Broken)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return report, nil
}

// Probe は1つの画像URLを取得し、画像として配信されているかを確認する。
func (c *Checker) Probe(ctx context.Context, rawURL string) error {
	if err := c.guard.ValidateURL(rawURL); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	req.Header.Set("User-Agent", "Tipflix/1.0 LinkCheck")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	if mediaType := extractMediaType(resp.Header.Get("Content-Type")); !strings.HasPrefix(mediaType, "image/") {
		return fmt.Errorf("%w: %q", ErrNotImage, mediaType)
	}

	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, c.config.MaxSize+1))
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if n > c.config.MaxSize {
		return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, c.config.MaxSize)
	}
	return nil
}

// extractMediaType はContent-Typeヘッダーからパラメータを除いたメディアタイプを返す。
func extractMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mediaType
}
