// Package cache is the append-only entry store shared by the fetchers and the
// cache server.
//
// Entries are opaque JSON blobs addressed by a file-name style key:
//
//	popular_page_<n>.json   one page of the popular collection
//	movie_<id>.json         one movie detail record (with credits)
//	manifest_<job>.json     summary of the last run of a fetcher
//
// Presence of a key is the "already fetched" marker. Nothing in this package
// expires or invalidates entries.
//
// # Backends
//
//   - FileStore: one file per key in a directory (default)
//   - RedisStore: one string value per key under a prefix
//   - MemoryStore: map-backed, for tests
//
// # Basic Usage
//
//	store, err := cache.NewFileStore("cache")
//	if err != nil {
//		return err
//	}
//
//	ok, err := store.Has(ctx, cache.PageKey(3))
//	if !ok {
//		// fetch, then:
//		err = store.Put(ctx, cache.PageKey(3), body)
//	}
//
// # Metrics
//
//   - tmdb_cache_operations_total{backend, operation}
//   - tmdb_cache_errors_total{backend, operation}
//   - tmdb_cache_written_bytes_total{backend}
package cache
