package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// PageEntry is the part of a collection page the pipeline consumes.
type PageEntry struct {
	// Page is the page number reported by the payload (0 if absent).
	Page int

	// TotalPages is the remote total page count (0 if absent or malformed).
	TotalPages int

	// IDs holds the well-formed identifiers of the results, in payload order.
	IDs []int64

	// Results is the number of items in the results list, including the ones
	// without a usable identifier.
	Results int
}

type rawPage struct {
	Page       json.RawMessage   `json:"page"`
	TotalPages json.RawMessage   `json:"total_pages"`
	Results    []json.RawMessage `json:"results"`
}

type rawItem struct {
	ID json.RawMessage `json:"id"`
}

// ParsePage validates the minimal shape of a collection page: a JSON object
// with a results array. Items that are not objects or lack a positive integer
// id are counted but contribute no identifier.
func ParsePage(data []byte) (*PageEntry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: page payload is not a JSON object", ErrInvalidEntry)
	}

	var raw rawPage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if raw.Results == nil {
		return nil, fmt.Errorf("%w: page payload has no results array", ErrInvalidEntry)
	}

	entry := &PageEntry{
		Page:       jsonInt(raw.Page),
		TotalPages: jsonInt(raw.TotalPages),
		Results:    len(raw.Results),
		IDs:        make([]int64, 0, len(raw.Results)),
	}

	for _, item := range raw.Results {
		if id, ok := ItemID(item); ok {
			entry.IDs = append(entry.IDs, id)
		}
	}

	return entry, nil
}

// ItemID extracts a positive integer "id" field from a JSON object.
// Quoted numbers, fractions and non-object items are rejected.
func ItemID(item json.RawMessage) (int64, bool) {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return 0, false
	}
	var it rawItem
	if err := json.Unmarshal(trimmed, &it); err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(string(bytes.TrimSpace(it.ID)), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// ValidateDetail checks that a detail payload is a JSON object carrying a
// usable id.
func ValidateDetail(data []byte) (int64, error) {
	id, ok := ItemID(data)
	if !ok {
		return 0, fmt.Errorf("%w: detail payload has no numeric id", ErrInvalidEntry)
	}
	return id, nil
}

// jsonInt reads an integer JSON number, returning 0 for anything else.
func jsonInt(raw json.RawMessage) int {
	n, err := strconv.Atoi(string(bytes.TrimSpace(raw)))
	if err != nil {
		return 0
	}
	return n
}
