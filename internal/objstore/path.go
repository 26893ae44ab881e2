package objstore

import (
	"crypto/sha1"
	"fmt"
	"time"
)

// Artifact names written per snapshot (spec §4.3 step 5B).
const (
	ArtifactCleanedDOM  = "dom.html"
	ArtifactRawHTML     = "source.html"
	ArtifactMHTML       = "page.mhtml"
	ArtifactScreenshot  = "screenshot.png"
)

// URLHash returns the 40-character lowercase hex SHA-1 of a URL, the
// `url_hash` path segment (spec §6).
func URLHash(url string) string {
	sum := sha1.Sum([]byte(url))
	return fmt.Sprintf("%x", sum)
}

// TimestampSegment formats a capture instant as the `YYMMDD.HHMMSS` path
// segment, always in UTC.
func TimestampSegment(t time.Time) string {
	return t.UTC().Format("060102.150405")
}

// SnapshotDir returns the directory a snapshot's four artifacts live
// under: `data/{url_hash}/{YYMMDD.HHMMSS}/`.
func SnapshotDir(urlHash string, capturedAt time.Time) string {
	return fmt.Sprintf("data/%s/%s/", urlHash, TimestampSegment(capturedAt))
}

// ArtifactKey returns the full key for one artifact within a snapshot
// directory.
func ArtifactKey(urlHash string, capturedAt time.Time, artifact string) string {
	return SnapshotDir(urlHash, capturedAt) + artifact
}
