// Package cli implements the command-line interface for s3archive.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/eunmann/s3-archive/pkg/archive"
	"github.com/eunmann/s3-archive/pkg/archiver"
	"github.com/eunmann/s3-archive/pkg/humanfmt"
	"github.com/eunmann/s3-archive/pkg/logging"
	"github.com/eunmann/s3-archive/pkg/s3url"
	"github.com/eunmann/s3-archive/pkg/store"
)

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: s3archive <command> [options]\ncommands: archive")
	}

	switch args[0] {
	case "archive":
		return runArchive(args[1:])
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// archiveConfig is everything the archive command resolves from flags.
type archiveConfig struct {
	run   archiver.Options
	store store.Options
	debug bool
	human bool
}

func parseArchive(args []string) (*archiveConfig, error) {
	fs := flag.NewFlagSet("archive", flag.ContinueOnError)
	src := fs.String("src", "", "source s3://bucket/prefix to archive out of")
	dst := fs.String("dst", "", "destination s3://bucket/prefix for the archive object")
	cutoffStr := fs.String("cutoff", "", "archive objects modified strictly before this RFC3339 instant (default: now minus 1s)")
	partSize := fs.Int("part-size", archiver.DefaultPartSize, "upload part size in bytes (min 5 MiB)")
	compression := fs.String("compression", "zstd", "compression algorithm: zstd or gzip")
	level := fs.String("level", "fastest", "compression level: fastest, default, or best")
	endpoint := fs.String("endpoint", "", "custom S3-compatible endpoint URL")
	region := fs.String("region", "", "AWS region override")
	maxAttempts := fs.Int("max-attempts", 0, "max attempts per store call, including retries (default: SDK standard)")
	deleteBatch := fs.Int("delete-batch-size", archiver.DefaultDeleteBatchSize, "keys per delete call")
	deleteConc := fs.Int("delete-concurrency", 1, "delete batches in flight")
	debug := fs.Bool("debug", false, "enable debug logging")
	human := fs.Bool("human", false, "human-friendly console log output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *src == "" {
		return nil, errors.New("--src is required")
	}
	if *dst == "" {
		return nil, errors.New("--dst is required")
	}

	srcLoc, err := s3url.Parse(*src)
	if err != nil {
		return nil, fmt.Errorf("parse --src: %w", err)
	}
	dstLoc, err := s3url.Parse(*dst)
	if err != nil {
		return nil, fmt.Errorf("parse --dst: %w", err)
	}

	var cutoff time.Time
	if *cutoffStr != "" {
		cutoff, err = time.Parse(time.RFC3339, *cutoffStr)
		if err != nil {
			return nil, fmt.Errorf("parse --cutoff: %w", err)
		}
	}

	algorithm, err := archive.ParseAlgorithm(*compression)
	if err != nil {
		return nil, err
	}
	compLevel, err := archive.ParseLevel(*level)
	if err != nil {
		return nil, err
	}

	return &archiveConfig{
		run: archiver.Options{
			Source:      srcLoc,
			Dest:        dstLoc,
			Cutoff:      cutoff,
			PartSize:    *partSize,
			Compression: archive.CompressionSpec{Algorithm: algorithm, Level: compLevel},
			Delete: archiver.DeleteOptions{
				BatchSize:   *deleteBatch,
				Concurrency: *deleteConc,
			},
		},
		store: store.Options{
			Region:      *region,
			Endpoint:    *endpoint,
			MaxAttempts: *maxAttempts,
		},
		debug: *debug,
		human: *human,
	}, nil
}

func runArchive(args []string) error {
	cfg, err := parseArchive(args)
	if err != nil {
		return err
	}
	logging.Init(cfg.debug, cfg.human)

	ctx := context.Background()
	client, err := store.NewClient(ctx, cfg.store)
	if err != nil {
		return err
	}

	started := time.Now()
	result, err := archiver.Run(ctx, client, cfg.run)
	if err != nil {
		return fmt.Errorf("archive run failed: %w", err)
	}
	elapsed := time.Since(started)

	fmt.Printf("archived %s objects (%s) to s3://%s/%s in %s (%s uploaded, %s)\n",
		humanfmt.Count(int64(len(result.Archived))),
		humanfmt.Bytes(result.BytesIn),
		cfg.run.Dest.Bucket, result.ArchiveKey,
		humanfmt.Duration(elapsed),
		humanfmt.Bytes(result.BytesUploaded),
		humanfmt.Throughput(result.BytesUploaded, elapsed))
	if result.Skipped > 0 {
		fmt.Printf("skipped %d objects whose fetch failed; they remain in the source bucket\n", result.Skipped)
	}
	fmt.Printf("deleted %d source objects", len(result.Deletion.Deleted))
	if n := len(result.Deletion.Failures); n > 0 {
		fmt.Printf(", %d keys could not be deleted", n)
	}
	if n := len(result.Deletion.BatchErrors); n > 0 {
		fmt.Printf(", %d delete batches failed outright", n)
	}
	fmt.Println()

	return nil
}
