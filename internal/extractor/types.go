package extractor

import (
	"context"
	"encoding/json"
)

// Artifacts bundles the four blobs a snapshot carries in the Object Store,
// downloaded once per extraction attempt (spec §4.4 step 2).
type Artifacts struct {
	CleanedDOM []byte
	RawHTML    []byte
	MHTML      []byte
	Screenshot []byte
}

// Func is a pluggable extraction routine: given a snapshot's artifacts, it
// produces the structured document persisted as PageInfo.data. Extractors
// are versioned by name (spec §3, PageInfo.extractor_version) so that
// re-running a changed extractor over old snapshots does not collide with
// prior output.
type Func func(ctx context.Context, artifacts Artifacts) (json.RawMessage, error)
