// Package pagination walks the popular movie collection page by page and
// stores every page as a Page Entry.
//
// Page 1 is always requested because it carries the authoritative
// total_pages value; it is only written when no Page Entry for page 1
// exists yet. The remaining pages are fetched in ascending order up to
//
//	min(total_pages, MaxPages, Config.EndPage if set)
//
// skipping any page already in the store. A page that still fails after
// Config.Retries attempts is recorded in the run report and the walk carries
// on with the next page.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(tmdbClient, store, pagination.DefaultConfig(), logger)
//	rep, err := fetcher.Run(ctx)
//
// The fetcher is strictly sequential: one outstanding request at a time and
// a fixed pause (Config.Delay) after every request made.
package pagination
