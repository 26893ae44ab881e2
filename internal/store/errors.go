package store

import "errors"

// ErrNotFound is returned when a page lookup by id or url, or a page_info
// lookup by (snapshot_id, extractor_version), matches no row.
var ErrNotFound = errors.New("store: not found")
