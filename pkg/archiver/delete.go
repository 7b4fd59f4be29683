package archiver

import (
	"context"
	"fmt"
	"sync"

	"github.com/eunmann/s3-archive/pkg/logging"
	"github.com/eunmann/s3-archive/pkg/store"
	"golang.org/x/sync/errgroup"
)

// DefaultDeleteBatchSize is the store's bulk-delete limit.
const DefaultDeleteBatchSize = 1000

// Deleter is the batch-delete capability the batcher needs.
type Deleter interface {
	DeleteBatch(ctx context.Context, bucket string, keys []string) (deleted []string, failures []store.KeyError, err error)
}

// DeleteReport sums up a best-effort batched deletion. A failing batch
// never stops the others, so all three fields can be populated at once.
type DeleteReport struct {
	// Deleted are the keys the store confirmed deleted.
	Deleted []string
	// Failures are per-key errors reported inside batch responses.
	Failures []store.KeyError
	// BatchErrors are transport-level failures of whole batches; the
	// keys of those batches are in neither Deleted nor Failures.
	BatchErrors []error
}

// DeleteOptions bounds the batcher.
type DeleteOptions struct {
	// BatchSize caps keys per delete call (default 1000).
	BatchSize int
	// Concurrency is the number of batches in flight (default 1,
	// sequential).
	Concurrency int
}

// DeleteKeys deletes keys from bucket in bounded batches. Keys the
// store cannot address (empty) are dropped with a warning rather than
// merged into another batch. Deletion is best-effort per batch: per-key
// failures and whole-batch transport errors are recorded in the report
// and do not abort the remaining batches.
func DeleteKeys(ctx context.Context, deleter Deleter, bucket string, keys []string, opts DeleteOptions) *DeleteReport {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultDeleteBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	log := logging.WithPhase("delete").With().Str("bucket", bucket).Logger()
	report := &DeleteReport{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for start := 0; start < len(keys); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(keys))
		batch := keys[start:end]
		batchIndex := start / opts.BatchSize

		valid := batch[:0:0]
		for _, key := range batch {
			if key == "" {
				log.Warn().Int("batch", batchIndex).Msg("dropping key that cannot be addressed for deletion")
				continue
			}
			valid = append(valid, key)
		}
		if len(valid) == 0 {
			log.Warn().Int("batch", batchIndex).Msg("skipping batch with no deletable keys")
			continue
		}

		g.Go(func() error {
			deleted, failures, err := deleter.DeleteBatch(ctx, bucket, valid)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.BatchErrors = append(report.BatchErrors,
					fmt.Errorf("batch %d (%d keys): %w", batchIndex, len(valid), err))
				log.Error().Err(err).Int("batch", batchIndex).Msg("delete batch failed")
				// Best-effort: the error is recorded, not returned, so
				// the group keeps running the remaining batches.
				return nil
			}
			report.Deleted = append(report.Deleted, deleted...)
			report.Failures = append(report.Failures, failures...)
			for _, f := range failures {
				log.Warn().Str("key", f.Key).Str("code", f.Code).Msg("key deletion rejected")
			}
			log.Debug().Int("batch", batchIndex).Int("deleted", len(deleted)).Msg("delete batch done")
			return nil
		})
	}

	g.Wait()
	return report
}
