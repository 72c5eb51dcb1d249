package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RajVeer36399/tmdb-proxy/pkg/cache"
	"github.com/RajVeer36399/tmdb-proxy/pkg/client"
	"github.com/RajVeer36399/tmdb-proxy/pkg/ratelimit"
	"github.com/RajVeer36399/tmdb-proxy/pkg/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// MaxPages is the highest page the popular endpoint serves.
const MaxPages = 500

// Job names the collection run in reports, manifests and metrics.
const Job = "pages"

var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tmdb_pages_total",
		Help: "Collection pages handled by result (fetched, skipped, failed)",
	}, []string{"result"})

	pagesEndPage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tmdb_pages_end_page",
		Help: "Effective last page of the most recent collection run",
	})
)

// Source fetches one page of the popular collection.
// *client.Client implements it.
type Source interface {
	FetchPopularPage(ctx context.Context, page int, policy client.RetryPolicy, check client.Check) ([]byte, int, error)
}

// pageCheck rejects bodies that are not Page Entries and keeps the parsed
// entry of the accepted one in *dst.
func pageCheck(dst **cache.PageEntry) client.Check {
	return func(body []byte) error {
		entry, err := cache.ParsePage(body)
		if err != nil {
			return err
		}
		*dst = entry
		return nil
	}
}

// Config holds collection fetcher configuration.
type Config struct {
	// StartPage is the first page walked after page 1 (default 1).
	StartPage int

	// EndPage overrides the upper bound when > 0. It is still clamped to
	// total_pages and MaxPages.
	EndPage int

	// Delay is the pause after every request and between attempts.
	Delay time.Duration

	// Retries is the number of attempts per page.
	Retries int
}

// DefaultConfig returns the default collection settings.
func DefaultConfig() Config {
	return Config{
		StartPage: 1,
		Delay:     250 * time.Millisecond,
		Retries:   3,
	}
}

// Fetcher writes Page Entries for a range of popular pages.
type Fetcher struct {
	source Source
	store  cache.Store
	pacer  *ratelimit.Pacer
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a collection fetcher.
func NewFetcher(source Source, store cache.Store, cfg Config, logger zerolog.Logger) *Fetcher {
	if cfg.StartPage < 1 {
		cfg.StartPage = 1
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	return &Fetcher{
		source: source,
		store:  store,
		pacer:  ratelimit.NewPacer(Job, cfg.Delay),
		config: cfg,
		logger: logger,
	}
}

// WithPacer replaces the inter-request pacer.
func (f *Fetcher) WithPacer(p *ratelimit.Pacer) *Fetcher {
	f.pacer = p
	return f
}

// EffectiveEndPage returns min(total, limit, override), ignoring override
// when it is not positive. A non-positive total counts as one page.
func EffectiveEndPage(total, limit, override int) int {
	end := total
	if end < 1 {
		end = 1
	}
	if limit > 0 && end > limit {
		end = limit
	}
	if override > 0 && end > override {
		end = override
	}
	return end
}

// Run fetches page 1 and every missing page of the effective range. Per-page
// failures end up in the report; the returned error is set only when page 1
// is unavailable, the store fails or ctx ends. The report is nil when the run
// stopped before any page was handled.
func (f *Fetcher) Run(ctx context.Context) (*report.Report, error) {
	rep := report.New(Job)
	policy := client.RetryPolicy{Attempts: f.config.Retries, Delay: f.config.Delay}

	f.logger.Info().
		Int("start_page", f.config.StartPage).
		Int("end_page_override", f.config.EndPage).
		Int("retries", f.config.Retries).
		Dur("delay", f.config.Delay).
		Msg("Starting collection fetch")

	totalPages, err := f.firstPage(ctx, rep, policy)
	if err != nil {
		if rep.Done() == 0 {
			return nil, err
		}
		rep.Finish()
		return rep, err
	}

	end := EffectiveEndPage(totalPages, MaxPages, f.config.EndPage)
	first := max(f.config.StartPage, 2)
	rep.Total = 1 + max(0, end-first+1)
	pagesEndPage.Set(float64(end))

	f.logger.Info().
		Int("total_pages", totalPages).
		Int("end_page", end).
		Msg("Resolved page range")

	for page := first; page <= end; page++ {
		if err := ctx.Err(); err != nil {
			rep.Finish()
			return rep, fmt.Errorf("collection fetch interrupted at page %d: %w", page, err)
		}
		if err := f.fetchPage(ctx, rep, policy, page); err != nil {
			rep.Finish()
			return rep, err
		}
	}

	rep.Finish()
	return rep, nil
}

// firstPage requests page 1 and returns its total_pages. When the request
// fails, a cached page 1 supplies the value instead.
func (f *Fetcher) firstPage(ctx context.Context, rep *report.Report, policy client.RetryPolicy) (int, error) {
	key := cache.PageKey(1)
	logger := f.logger.With().Int("page", 1).Str("key", key).Logger()
	pageCtx := logger.WithContext(ctx)

	var entry *cache.PageEntry
	data, attempts, err := f.source.FetchPopularPage(pageCtx, 1, policy, pageCheck(&entry))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("fetch page 1: %w", ctxErr)
		}
		return f.cachedFirstPage(ctx, rep, logger, attempts, err)
	}

	cached, err := f.store.Has(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("check %s: %w", key, err)
	}
	if cached {
		rep.AddSkipped()
		pagesTotal.WithLabelValues("skipped").Inc()
		logger.Info().
			Int("total_pages", entry.TotalPages).
			Msg("Page already cached, keeping existing entry")
	} else {
		if err := f.store.Put(ctx, key, data); err != nil {
			return 0, fmt.Errorf("write %s: %w", key, err)
		}
		rep.AddFetched()
		pagesTotal.WithLabelValues("fetched").Inc()
		logger.Info().
			Int("results", entry.Results).
			Int("total_pages", entry.TotalPages).
			Int("attempts", attempts).
			Msg("Saved page")
	}

	if err := f.pacer.Pause(ctx); err != nil {
		return 0, fmt.Errorf("pause after page 1: %w", err)
	}
	return entry.TotalPages, nil
}

func (f *Fetcher) cachedFirstPage(ctx context.Context, rep *report.Report, logger zerolog.Logger, attempts int, fetchErr error) (int, error) {
	data, err := f.store.Get(ctx, cache.PageKey(1))
	if errors.Is(err, cache.ErrCacheMiss) {
		return 0, fmt.Errorf("fetch page 1: %w", fetchErr)
	}
	if err != nil {
		return 0, fmt.Errorf("fetch page 1: %w (reading cached copy: %v)", fetchErr, err)
	}

	entry, err := cache.ParsePage(data)
	if err != nil {
		return 0, fmt.Errorf("fetch page 1: %w (cached copy unusable: %v)", fetchErr, err)
	}

	rep.AddSkipped()
	pagesTotal.WithLabelValues("skipped").Inc()
	logger.Warn().
		Err(fetchErr).
		Int("attempts", attempts).
		Int("total_pages", entry.TotalPages).
		Msg("Page 1 unavailable, using total_pages from cached entry")

	if attempts > 0 {
		if err := f.pacer.Pause(ctx); err != nil {
			return 0, fmt.Errorf("pause after page 1: %w", err)
		}
	}
	return entry.TotalPages, nil
}

// fetchPage handles one page after page 1. Only store and context errors
// are returned.
func (f *Fetcher) fetchPage(ctx context.Context, rep *report.Report, policy client.RetryPolicy, page int) error {
	key := cache.PageKey(page)
	logger := f.logger.With().Int("page", page).Str("key", key).Logger()

	cached, err := f.store.Has(ctx, key)
	if err != nil {
		return fmt.Errorf("check %s: %w", key, err)
	}
	if cached {
		rep.AddSkipped()
		pagesTotal.WithLabelValues("skipped").Inc()
		logger.Debug().
			Int("done", rep.Done()).
			Int("total", rep.Total).
			Msg("Page cached, skipping")
		return nil
	}

	var entry *cache.PageEntry
	data, attempts, err := f.source.FetchPopularPage(logger.WithContext(ctx), page, policy, pageCheck(&entry))

	switch {
	case err != nil && ctx.Err() != nil:
		return fmt.Errorf("fetch page %d: %w", page, ctx.Err())
	case err != nil:
		rep.AddFailure(key, attempts, err)
		pagesTotal.WithLabelValues("failed").Inc()
		logger.Error().
			Err(err).
			Int("attempts", attempts).
			Int("done", rep.Done()).
			Int("total", rep.Total).
			Msg("Giving up on page")
	default:
		if err := f.store.Put(ctx, key, data); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		rep.AddFetched()
		pagesTotal.WithLabelValues("fetched").Inc()
		logger.Info().
			Int("results", entry.Results).
			Int("attempts", attempts).
			Int("done", rep.Done()).
			Int("total", rep.Total).
			Msg("Saved page")
	}

	if err := f.pacer.Pause(ctx); err != nil {
		return fmt.Errorf("pause after page %d: %w", page, err)
	}
	return nil
}
