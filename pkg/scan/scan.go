// Package scan enumerates bucket objects older than a cutoff, one
// listing page at a time.
package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/eunmann/s3-archive/pkg/logging"
	"github.com/eunmann/s3-archive/pkg/store"
)

// Lister is the listing capability the scanner needs from the store.
type Lister interface {
	ListPage(ctx context.Context, bucket, prefix string, token *string) (*store.Page, error)
}

// DefaultCutoff returns the cutoff used when none is given: now minus
// a one-second safety margin, so objects still being written never
// race into the archive.
func DefaultCutoff(now time.Time) time.Time {
	return now.Add(-time.Second)
}

// Scanner yields objects with LastModified strictly before the cutoff,
// in listing order. It is a single-pass iterator: continuation state is
// consumed per page and a failed or finished scanner cannot be reused.
type Scanner struct {
	lister Lister
	bucket string
	prefix string
	cutoff time.Time

	pending []store.Object
	token   *string
	started bool
	done    bool
	err     error
}

// New creates a scanner over bucket/prefix for the given cutoff.
func New(lister Lister, bucket, prefix string, cutoff time.Time) *Scanner {
	return &Scanner{
		lister: lister,
		bucket: bucket,
		prefix: prefix,
		cutoff: cutoff,
	}
}

// Next returns the next eligible object. ok is false when the listing
// is exhausted or an error occurred; a page fetch failure is fatal to
// the whole enumeration and is returned (and re-returned) as err.
func (s *Scanner) Next(ctx context.Context) (obj store.Object, ok bool, err error) {
	if s.err != nil {
		return store.Object{}, false, s.err
	}

	for {
		if len(s.pending) > 0 {
			obj = s.pending[0]
			s.pending = s.pending[1:]
			return obj, true, nil
		}
		if s.done {
			return store.Object{}, false, nil
		}

		if err := s.fetchPage(ctx); err != nil {
			s.err = err
			return store.Object{}, false, err
		}
	}
}

func (s *Scanner) fetchPage(ctx context.Context) error {
	if s.started && s.token == nil {
		s.done = true
		return nil
	}

	page, err := s.lister.ListPage(ctx, s.bucket, s.prefix, s.token)
	if err != nil {
		// A partial listing would silently under-archive, so the run
		// aborts instead of continuing with what was seen so far.
		return fmt.Errorf("list page: %w", err)
	}
	s.started = true
	s.token = page.NextToken
	if s.token == nil {
		s.done = true
	}

	eligible := page.Objects[:0:0]
	for _, obj := range page.Objects {
		if obj.LastModified.Before(s.cutoff) {
			eligible = append(eligible, obj)
		}
	}
	s.pending = eligible

	logging.L().Debug().
		Str("bucket", s.bucket).
		Str("prefix", s.prefix).
		Int("listed", len(page.Objects)).
		Int("eligible", len(eligible)).
		Bool("last_page", s.done).
		Msg("scanned listing page")

	return nil
}
