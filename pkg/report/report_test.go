package report

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/RajVeer36399/tmdb-proxy/pkg/cache"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestReport_Counters(t *testing.T) {
	r := New("pages")
	r.Total = 4
	r.AddFetched()
	r.AddSkipped()
	r.AddSkipped()
	r.AddFailure("popular_page_4.json", 3, errors.New("HTTP 500"))

	if r.Done() != 4 {
		t.Errorf("Done() = %d, want 4", r.Done())
	}
	if r.Complete() {
		t.Error("Complete() = true with one failure")
	}
	if r.Failed[0].Key != "popular_page_4.json" || r.Failed[0].Attempts != 3 || r.Failed[0].Error != "HTTP 500" {
		t.Errorf("Failed[0] = %+v", r.Failed[0])
	}
}

func TestReport_Changed(t *testing.T) {
	tests := []struct {
		name   string
		record func(*Report)
		want   bool
	}{
		{name: "empty", record: func(*Report) {}, want: false},
		{name: "only skipped", record: func(r *Report) { r.AddSkipped(); r.AddSkipped() }, want: false},
		{name: "fetched", record: func(r *Report) { r.AddSkipped(); r.AddFetched() }, want: true},
		{name: "failed", record: func(r *Report) { r.AddFailure("movie_3.json", 3, errors.New("HTTP 404")) }, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New("details")
			tt.record(r)
			if got := r.Changed(); got != tt.want {
				t.Errorf("Changed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_RunID(t *testing.T) {
	a, b := New("pages"), New("pages")
	if _, err := uuid.Parse(a.RunID); err != nil {
		t.Errorf("RunID %q is not a UUID: %v", a.RunID, err)
	}
	if a.RunID == b.RunID {
		t.Error("two runs share a RunID")
	}
}

func TestReport_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	r := New("details")
	r.Total = 2
	r.AddFetched()
	r.AddFailure("movie_9.json", 2, errors.New("timeout"))
	r.Finish()

	key, err := r.Save(ctx, store)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if key != "manifest_details.json" {
		t.Errorf("key = %q", key)
	}

	got, err := Load(ctx, store, "details")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.RunID != r.RunID || got.Job != "details" || got.Total != 2 || got.Fetched != 1 || len(got.Failed) != 1 {
		t.Errorf("loaded report = %+v", got)
	}
	if got.Failed[0].Key != "movie_9.json" {
		t.Errorf("failed key = %q", got.Failed[0].Key)
	}
	if !got.FinishedAt.Equal(r.FinishedAt) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, r.FinishedAt)
	}
}

func TestReport_SaveEmptyFailedList(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	r := New("pages")
	r.Finish()
	if _, err := r.Save(ctx, store); err != nil {
		t.Fatal(err)
	}
	data, _ := store.Get(ctx, cache.ManifestKey("pages"))
	if !bytes.Contains(data, []byte(`"failed": []`)) {
		t.Errorf("manifest should list an empty failure array:\n%s", data)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(context.Background(), cache.NewMemoryStore(), "pages")
	if !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("Load() error = %v, want ErrCacheMiss", err)
	}
}

func TestReport_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := New("pages")
	r.Total = 3
	r.AddFetched()
	r.AddFailure("popular_page_2.json", 3, errors.New("HTTP 502"))
	r.AddFailure("popular_page_3.json", 3, errors.New("HTTP 502"))
	r.Finish()
	r.Log(logger)

	out := buf.String()
	if strings.Count(out, "Key missing from cache after run") != 2 {
		t.Errorf("expected one line per failed key:\n%s", out)
	}
	if !strings.Contains(out, "Run complete with 2 omissions") {
		t.Errorf("summary line missing:\n%s", out)
	}
	if !strings.Contains(out, `"failed":2`) || !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("summary fields missing:\n%s", out)
	}
}

func TestReport_LogComplete(t *testing.T) {
	var buf bytes.Buffer
	r := New("details")
	r.Finish()
	r.Log(zerolog.New(&buf))

	if !strings.Contains(buf.String(), `"level":"info"`) || !strings.Contains(buf.String(), "Run complete") {
		t.Errorf("unexpected summary: %s", buf.String())
	}
}
