package cache

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	pagePrefix     = "popular_page_"
	detailPrefix   = "movie_"
	manifestPrefix = "manifest_"
	keySuffix      = ".json"
)

var (
	pageKeyPattern   = regexp.MustCompile(`^popular_page_([1-9]\d*)\.json$`)
	detailKeyPattern = regexp.MustCompile(`^movie_([1-9]\d*)\.json$`)
)

// PageKey returns the key of the Page Entry for page n.
func PageKey(page int) string {
	return fmt.Sprintf("%s%d%s", pagePrefix, page, keySuffix)
}

// DetailKey returns the key of the Detail Entry for a movie identifier.
func DetailKey(id int64) string {
	return fmt.Sprintf("%s%d%s", detailPrefix, id, keySuffix)
}

// ManifestKey returns the key of the run manifest for a job name.
func ManifestKey(job string) string {
	return manifestPrefix + job + keySuffix
}

// ParsePageKey extracts the page number from a Page Entry key.
func ParsePageKey(key string) (int, bool) {
	m := pageKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// ParseDetailKey extracts the movie identifier from a Detail Entry key.
func ParseDetailKey(key string) (int64, bool) {
	m := detailKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// ValidKey reports whether key is a single, non-hidden path element.
// Stores reject anything else so a key can never escape the cache directory.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, ".") {
		return false
	}
	if strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return false
	}
	return true
}
