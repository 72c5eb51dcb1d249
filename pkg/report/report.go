// Package report records the outcome of one fetch run: how many keys were
// fetched or skipped and which ones failed after all attempts.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RajVeer36399/tmdb-proxy/pkg/cache"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Failure is a key that could not be fetched.
type Failure struct {
	Key      string `json:"key"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// Report summarizes one run of a fetcher. It is written to the store as the
// run manifest. A Report is not safe for concurrent use.
type Report struct {
	RunID      string    `json:"run_id"`
	Job        string    `json:"job"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Fetched    int       `json:"fetched"`
	Skipped    int       `json:"skipped"`
	Failed     []Failure `json:"failed"`
}

// New starts a report for job.
func New(job string) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Job:       job,
		StartedAt: time.Now().UTC(),
		Failed:    []Failure{},
	}
}

// AddFetched records a persisted key.
func (r *Report) AddFetched() {
	r.Fetched++
}

// AddSkipped records a key that was already cached.
func (r *Report) AddSkipped() {
	r.Skipped++
}

// AddFailure records a key that failed after attempts tries.
func (r *Report) AddFailure(key string, attempts int, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.Failed = append(r.Failed, Failure{Key: key, Attempts: attempts, Error: msg})
}

// Done returns the number of keys handled so far.
func (r *Report) Done() int {
	return r.Fetched + r.Skipped + len(r.Failed)
}

// Finish stamps the end time.
func (r *Report) Finish() {
	r.FinishedAt = time.Now().UTC()
}

// Complete reports whether nothing failed.
func (r *Report) Complete() bool {
	return len(r.Failed) == 0
}

// Changed reports whether the run wrote an entry or left a key missing.
// A run that only skipped cached keys has nothing to add to a manifest.
func (r *Report) Changed() bool {
	return r.Fetched > 0 || len(r.Failed) > 0
}

// Log writes the summary line and one warning per failed key.
func (r *Report) Log(logger zerolog.Logger) {
	for _, f := range r.Failed {
		logger.Warn().
			Str("key", f.Key).
			Int("attempts", f.Attempts).
			Str("error", f.Error).
			Msg("Key missing from cache after run")
	}

	level := zerolog.InfoLevel
	if len(r.Failed) > 0 {
		level = zerolog.WarnLevel
	}
	logger.WithLevel(level).
		Str("run_id", r.RunID).
		Str("job", r.Job).
		Int("total", r.Total).
		Int("fetched", r.Fetched).
		Int("skipped", r.Skipped).
		Int("failed", len(r.Failed)).
		Dur("duration", r.FinishedAt.Sub(r.StartedAt)).
		Msg(r.summary())
}

func (r *Report) summary() string {
	if len(r.Failed) == 0 {
		return "Run complete"
	}
	return fmt.Sprintf("Run complete with %d omissions", len(r.Failed))
}

// Save writes the report as the run manifest of its job and returns the key
// it was stored under.
func (r *Report) Save(ctx context.Context, store cache.Store) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	key := cache.ManifestKey(r.Job)
	if err := store.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("write manifest %s: %w", key, err)
	}
	return key, nil
}

// Load reads the last manifest written for job.
func Load(ctx context.Context, store cache.Store, job string) (*Report, error) {
	data, err := store.Get(ctx, cache.ManifestKey(job))
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &r, nil
}
