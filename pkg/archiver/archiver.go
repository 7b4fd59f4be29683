// Package archiver drives one archive run end to end: enumerate aging
// objects, stream them into a compressed tar uploaded in chunks, and
// delete the originals once the archive is durably committed.
package archiver

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/eunmann/s3-archive/pkg/archive"
	"github.com/eunmann/s3-archive/pkg/humanfmt"
	"github.com/eunmann/s3-archive/pkg/logging"
	"github.com/eunmann/s3-archive/pkg/s3url"
	"github.com/eunmann/s3-archive/pkg/scan"
	"github.com/eunmann/s3-archive/pkg/upload"
	"github.com/rs/zerolog"
)

// DefaultPartSize is the upload part threshold when none is given.
const DefaultPartSize = 100 * 1024 * 1024

// Store is the full set of store capabilities one run needs. The
// concrete store.Client satisfies it; tests substitute fakes.
type Store interface {
	scan.Lister
	upload.Uploader
	Deleter
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Options configures one archive run.
type Options struct {
	// Source is the bucket/prefix to archive out of.
	Source s3url.Location
	// Dest is the bucket/prefix the archive object is written under;
	// the object key is derived from the prefix and the cutoff.
	Dest s3url.Location
	// Cutoff makes objects modified strictly before it eligible. Zero
	// means now minus a small safety margin.
	Cutoff time.Time
	// PartSize is the upload part threshold in bytes (default 100 MiB,
	// floor 5 MiB).
	PartSize int
	// Compression selects the transform around the tar stream.
	Compression archive.CompressionSpec
	// Delete bounds the post-commit deletion step.
	Delete DeleteOptions
}

// Result describes a successful run.
type Result struct {
	// ArchiveKey is the destination object that now holds the archive.
	ArchiveKey string
	// Archived are the source keys embedded in the archive, in archive
	// order. Exactly these were handed to deletion.
	Archived []string
	// Skipped counts eligible objects whose fetch failed; they stay in
	// the source bucket untouched.
	Skipped int
	// BytesIn is the total uncompressed bytes streamed into the
	// archive; BytesUploaded the compressed bytes sent to the store.
	BytesIn       int64
	BytesUploaded int64
	// Deletion is the best-effort deletion report for Archived.
	Deletion *DeleteReport
}

// Run executes one archive run. Any error return means the destination
// archive is not trustworthy and nothing was deleted.
func Run(ctx context.Context, st Store, opts Options) (*Result, error) {
	cutoff := opts.Cutoff
	if cutoff.IsZero() {
		cutoff = scan.DefaultCutoff(time.Now())
	}
	partSize := opts.PartSize
	if partSize <= 0 {
		partSize = DefaultPartSize
	}

	archiveKey := s3url.ArchiveKey(opts.Dest.Prefix, cutoff, opts.Compression.Ext())
	log := logging.WithPhase("archive").With().
		Str("source", opts.Source.String()).
		Str("dest", "s3://"+opts.Dest.Bucket+"/"+archiveKey).
		Time("cutoff", cutoff).
		Logger()

	sink, err := upload.NewSink(ctx, st, opts.Dest.Bucket, archiveKey, partSize)
	if err != nil {
		return nil, err
	}
	enc, err := archive.NewEncoder(sink, opts.Compression)
	if err != nil {
		sink.Abort()
		return nil, err
	}

	result := &Result{ArchiveKey: archiveKey}
	scanner := scan.New(st, opts.Source.Bucket, opts.Source.Prefix, cutoff)

	if err := embedObjects(ctx, st, scanner, enc, opts.Source.Bucket, result, log); err != nil {
		sink.Abort()
		return nil, err
	}

	// From here every failure leaves the archive untrustworthy, so the
	// run aborts without deleting anything.
	if err := enc.Close(); err != nil {
		sink.Abort()
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	if err := sink.Close(); err != nil {
		return nil, fmt.Errorf("commit archive: %w", err)
	}
	result.BytesUploaded = sink.BytesWritten()

	log.Info().
		Int("archived", len(result.Archived)).
		Int("skipped", result.Skipped).
		Str("bytes_in_h", humanfmt.Bytes(result.BytesIn)).
		Str("bytes_uploaded_h", humanfmt.Bytes(result.BytesUploaded)).
		Msg("archive committed")

	if len(result.Archived) == 0 {
		result.Deletion = &DeleteReport{}
		return result, nil
	}

	// Only keys actually embedded in the committed archive are ever
	// deleted. Partial deletion failures are reported, never fatal.
	result.Deletion = DeleteKeys(ctx, st, opts.Source.Bucket, result.Archived, opts.Delete)
	log.Info().
		Int("deleted", len(result.Deletion.Deleted)).
		Int("delete_failures", len(result.Deletion.Failures)).
		Int("failed_batches", len(result.Deletion.BatchErrors)).
		Msg("source objects deleted")

	return result, nil
}

// embedObjects streams every eligible object into the encoder. A fetch
// failure skips that object; listing and encoding failures are fatal.
func embedObjects(ctx context.Context, st Store, scanner *scan.Scanner, enc *archive.Encoder, bucket string, result *Result, log zerolog.Logger) error {
	for {
		obj, ok, err := scanner.Next(ctx)
		if err != nil {
			return fmt.Errorf("enumerate source objects: %w", err)
		}
		if !ok {
			return nil
		}

		body, err := st.Get(ctx, bucket, obj.Key)
		if err != nil {
			// The object stays in the source bucket and is never
			// handed to deletion.
			log.Warn().Err(err).Str("key", obj.Key).Msg("skipping object: fetch failed")
			result.Skipped++
			continue
		}

		err = enc.Append(obj.Key, obj.Size, obj.LastModified, body)
		body.Close()
		if err != nil {
			return fmt.Errorf("encode object %q: %w", obj.Key, err)
		}

		result.Archived = append(result.Archived, obj.Key)
		result.BytesIn += obj.Size
		log.Debug().Str("key", obj.Key).Str("size_h", humanfmt.Bytes(obj.Size)).Msg("object embedded")
	}
}
