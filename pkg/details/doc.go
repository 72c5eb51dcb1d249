// Package details fetches one movie record, credits included, for every
// movie referenced by the cached collection pages.
//
// The identifier set is rebuilt on every run from the Page Entries in the
// store (see CollectIDs) and walked in ascending order. Movies that already
// have a Detail Entry are skipped; the rest are fetched with the same
// retry policy as the collection pages and written as soon as they arrive.
package details
