// Package s3url parses s3:// URLs into bucket/prefix locations and
// derives destination keys for archive objects.
package s3url

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Location identifies a bucket and an optional key prefix within it.
// Prefix is opaque; no separator normalization is applied beyond what
// the caller wrote.
type Location struct {
	Bucket string
	Prefix string
}

// String renders the location back as an s3:// URL.
func (l Location) String() string {
	if l.Prefix == "" {
		return "s3://" + l.Bucket
	}
	return "s3://" + l.Bucket + "/" + l.Prefix
}

// Parse parses an s3://bucket/optional-prefix URL. Only the s3 scheme
// is accepted; anything else is a configuration error.
func Parse(raw string) (Location, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Location{}, fmt.Errorf("invalid URL %q: missing scheme", raw)
	}
	if scheme != "s3" {
		return Location{}, fmt.Errorf("unsupported scheme %q: only s3:// is accepted", scheme)
	}

	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, errors.New("invalid S3 URL: missing bucket name")
	}

	return Location{Bucket: bucket, Prefix: prefix}, nil
}

// archiveTimeLayout matches the timestamp embedded in archive keys,
// e.g. archive_20240101_000000.tar.zst.
const archiveTimeLayout = "20060102_150405"

// ArchiveKey derives the destination object key for an archive run.
// The cutoff timestamp is embedded so consecutive runs never collide.
// If the prefix ends in a separator the filename is appended directly,
// otherwise a separator is inserted; an empty prefix yields a root key.
func ArchiveKey(prefix string, cutoff time.Time, ext string) string {
	name := "archive_" + cutoff.UTC().Format(archiveTimeLayout) + ext
	switch {
	case prefix == "":
		return name
	case strings.HasSuffix(prefix, "/"):
		return prefix + name
	default:
		return prefix + "/" + name
	}
}
