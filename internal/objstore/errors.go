package objstore

import "errors"

// ErrNotFound is returned by Store.Get when no blob exists at the given key.
var ErrNotFound = errors.New("objstore: not found")
