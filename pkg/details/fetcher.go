package details

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/RajVeer36399/tmdb-proxy/pkg/cache"
	"github.com/RajVeer36399/tmdb-proxy/pkg/client"
	"github.com/RajVeer36399/tmdb-proxy/pkg/ratelimit"
	"github.com/RajVeer36399/tmdb-proxy/pkg/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Job names the detail run in reports, manifests and metrics.
const Job = "details"

// ErrNoPageEntries is returned when the store holds no collection pages.
var ErrNoPageEntries = errors.New("no cached collection pages found")

var (
	detailsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tmdb_details_total",
		Help: "Movie details handled by result (fetched, skipped, failed)",
	}, []string{"result"})

	pagesUnreadable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tmdb_details_unreadable_pages_total",
		Help: "Cached collection pages skipped while collecting movie ids",
	})
)

// Source fetches one movie detail record.
// *client.Client implements it.
type Source interface {
	FetchMovie(ctx context.Context, id int64, policy client.RetryPolicy, check client.Check) ([]byte, int, error)
}

// detailCheck rejects bodies that are not the Detail Entry of id.
func detailCheck(id int64) client.Check {
	return func(body []byte) error {
		got, err := cache.ValidateDetail(body)
		if err != nil {
			return err
		}
		if got != id {
			return fmt.Errorf("%w: requested movie %d, payload has id %d", cache.ErrInvalidEntry, id, got)
		}
		return nil
	}
}

// Config holds detail fetcher configuration. It is independent of the
// collection settings.
type Config struct {
	// Delay is the pause after every request and between attempts.
	Delay time.Duration

	// Retries is the number of attempts per movie.
	Retries int
}

// DefaultConfig returns the default detail settings.
func DefaultConfig() Config {
	return Config{
		Delay:   250 * time.Millisecond,
		Retries: 3,
	}
}

// IDSet is the deduplicated set of movie ids found in the Page Entries.
type IDSet struct {
	// IDs in ascending order.
	IDs []int64

	// Pages is the number of Page Entries found.
	Pages int

	// Unreadable lists the Page Entry keys that were skipped.
	Unreadable []string
}

// CollectIDs reads every Page Entry in store and returns the unique ids
// of their results. Entries that cannot be read or fail the shape check are
// logged and skipped.
func CollectIDs(ctx context.Context, store cache.Store, logger zerolog.Logger) (*IDSet, error) {
	pages, err := cache.PageKeys(ctx, store)
	if err != nil {
		return nil, err
	}

	set := &IDSet{Pages: len(pages)}
	seen := make(map[int64]struct{})

	for _, page := range pages {
		key := cache.PageKey(page)
		data, err := store.Get(ctx, key)
		if err == nil {
			var entry *cache.PageEntry
			entry, err = cache.ParsePage(data)
			if err == nil {
				for _, id := range entry.IDs {
					seen[id] = struct{}{}
				}
				if skipped := entry.Results - len(entry.IDs); skipped > 0 {
					logger.Debug().
						Str("key", key).
						Int("skipped_items", skipped).
						Msg("Ignoring results without a numeric id")
				}
				continue
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		set.Unreadable = append(set.Unreadable, key)
		pagesUnreadable.Inc()
		logger.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to parse cached page, skipping")
	}

	set.IDs = make([]int64, 0, len(seen))
	for id := range seen {
		set.IDs = append(set.IDs, id)
	}
	slices.Sort(set.IDs)
	return set, nil
}

// Fetcher writes Detail Entries for the movies listed in the Page Entries.
type Fetcher struct {
	source Source
	store  cache.Store
	pacer  *ratelimit.Pacer
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a detail fetcher.
func NewFetcher(source Source, store cache.Store, cfg Config, logger zerolog.Logger) *Fetcher {
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

// Run derives the identifier set and fetches every missing movie. It fails
// with ErrNoPageEntries and a nil report when there is nothing to derive ids
// from; per-movie failures are recorded in the report.
func (f *Fetcher) Run(ctx context.Context) (*report.Report, error) {
	set, err := CollectIDs(ctx, f.store, f.logger)
	if err != nil {
		return nil, fmt.Errorf("collect movie ids: %w", err)
	}
	if set.Pages == 0 {
		return nil, ErrNoPageEntries
	}

	rep := report.New(Job)

	rep.Total = len(set.IDs)
	f.logger.Info().
		Int("pages", set.Pages).
		Int("unreadable_pages", len(set.Unreadable)).
		Int("ids", len(set.IDs)).
		Int("retries", f.config.Retries).
		Dur("delay", f.config.Delay).
		Msg("Found unique movie ids in cached pages")

	policy := client.RetryPolicy{Attempts: f.config.Retries, Delay: f.config.Delay}
	for _, id := range set.IDs {
		if err := ctx.Err(); err != nil {
			rep.Finish()
			return rep, fmt.Errorf("detail fetch interrupted at movie %d: %w", id, err)
		}
		if err := f.fetchMovie(ctx, rep, policy, id); err != nil {
			rep.Finish()
			return rep, err
		}
	}

	rep.Finish()
	return rep, nil
}

// fetchMovie handles one identifier. Only store and context errors are
// returned.
func (f *Fetcher) fetchMovie(ctx context.Context, rep *report.Report, policy client.RetryPolicy, id int64) error {
	key := cache.DetailKey(id)
	logger := f.logger.With().Int64("movie_id", id).Str("key", key).Logger()

	cached, err := f.store.Has(ctx, key)
	if err != nil {
		return fmt.Errorf("check %s: %w", key, err)
	}
	if cached {
		rep.AddSkipped()
		detailsTotal.WithLabelValues("skipped").Inc()
		logger.Debug().
			Int("done", rep.Done()).
			Int("total", rep.Total).
			Msg("Details cached, skipping")
		return nil
	}

	data, attempts, err := f.source.FetchMovie(logger.WithContext(ctx), id, policy, detailCheck(id))

	switch {
	case err != nil && ctx.Err() != nil:
		return fmt.Errorf("fetch movie %d: %w", id, ctx.Err())
	case err != nil:
		rep.AddFailure(key, attempts, err)
		detailsTotal.WithLabelValues("failed").Inc()
		logger.Error().
			Err(err).
			Int("attempts", attempts).
			Int("done", rep.Done()).
			Int("total", rep.Total).
			Msg("Giving up on movie")
	default:
		if err := f.store.Put(ctx, key, data); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		rep.AddFetched()
		detailsTotal.WithLabelValues("fetched").Inc()
		logger.Info().
			Int("attempts", attempts).
			Int("done", rep.Done()).
			Int("total", rep.Total).
			Msg("Saved details")
	}

	if err := f.pacer.Pause(ctx); err != nil {
		return fmt.Errorf("pause after movie %d: %w", id, err)
	}
	return nil
}
