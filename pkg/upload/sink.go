// Package upload implements a byte sink that streams written data to
// the store in fixed-size parts, falling back to a single whole-object
// write when the total never reaches one part.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/eunmann/s3-archive/pkg/humanfmt"
	"github.com/eunmann/s3-archive/pkg/logging"
	"github.com/eunmann/s3-archive/pkg/store"
	"github.com/rs/zerolog"
)

// MinPartSize is the smallest part the store accepts for non-final
// parts of a chunked upload (S3: 5 MiB).
const MinPartSize = 5 * 1024 * 1024

// ErrClosed is returned by Write after the sink has completed.
var ErrClosed = errors.New("upload sink is closed")

// Uploader is the store capability the sink needs.
type Uploader interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
	CreateUpload(ctx context.Context, bucket, key string) (string, error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, data []byte) (string, error)
	CompleteUpload(ctx context.Context, bucket, key, uploadID string, parts []store.Part) error
	AbortUpload(ctx context.Context, bucket, key, uploadID string) error
}

// State is the sink's lifecycle position. The transitional states are
// observable while the corresponding store call is in flight.
type State int

const (
	StateIdle State = iota
	StateInitiatingUpload
	StateUploadingPart
	StateCompletingUpload
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitiatingUpload:
		return "initiating-upload"
	case StateUploadingPart:
		return "uploading-part"
	case StateCompletingUpload:
		return "completing-upload"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sink buffers written bytes and drains them to the store one part at
// a time. Writes are accepted only between store calls: a Write that
// crosses the part threshold completes the part upload before
// returning, so buffered data is bounded by one part plus one Write's
// payload. A failed store call is terminal: the sink sticks in
// StateFailed and returns the first error from every later call.
//
// A Sink is owned by a single caller and is not safe for concurrent
// use.
type Sink struct {
	ctx      context.Context
	api      Uploader
	bucket   string
	key      string
	partSize int

	buf          []byte
	uploadID     string
	nextPart     int32
	parts        []store.Part
	bytesWritten int64

	state State
	err   error
	log   zerolog.Logger
}

var _ io.WriteCloser = (*Sink)(nil)

// NewSink creates a sink writing to bucket/key in parts of partSize
// bytes. partSize below the store's minimum is rejected.
func NewSink(ctx context.Context, api Uploader, bucket, key string, partSize int) (*Sink, error) {
	if partSize < MinPartSize {
		return nil, fmt.Errorf("part size %d below store minimum %d", partSize, MinPartSize)
	}
	return newSink(ctx, api, bucket, key, partSize), nil
}

// newSink skips the part-size floor so tests can use small parts.
func newSink(ctx context.Context, api Uploader, bucket, key string, partSize int) *Sink {
	return &Sink{
		ctx:      ctx,
		api:      api,
		bucket:   bucket,
		key:      key,
		partSize: partSize,
		buf:      make([]byte, 0, partSize),
		nextPart: 1,
		state:    StateIdle,
		log: logging.WithPhase("upload").With().
			Str("bucket", bucket).
			Str("key", key).
			Logger(),
	}
}

// State reports the sink's current lifecycle position.
func (s *Sink) State() State { return s.state }

// BytesWritten reports the total bytes accepted so far.
func (s *Sink) BytesWritten() int64 { return s.bytesWritten }

// Write buffers p and drains any full parts to the store.
func (s *Sink) Write(p []byte) (int, error) {
	switch s.state {
	case StateFailed:
		return 0, s.err
	case StateCompleted:
		return 0, ErrClosed
	}

	s.buf = append(s.buf, p...)
	if err := s.advance(); err != nil {
		return 0, err
	}
	s.bytesWritten += int64(len(p))
	return len(p), nil
}

// Flush drains any buffered full parts. Sub-threshold remainders stay
// buffered until Close.
func (s *Sink) Flush() error {
	switch s.state {
	case StateFailed:
		return s.err
	case StateCompleted:
		return ErrClosed
	}
	return s.advance()
}

// advance makes progress while enough data is buffered: it creates the
// upload session on the first full part and drains one part per pass,
// re-checking the threshold after every completed sub-operation. Only
// one store call is ever in flight.
func (s *Sink) advance() error {
	for len(s.buf) >= s.partSize {
		if s.uploadID == "" {
			if err := s.initiateUpload(); err != nil {
				return err
			}
			continue
		}
		if err := s.uploadPart(s.partSize); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) initiateUpload() error {
	s.state = StateInitiatingUpload
	id, err := s.api.CreateUpload(s.ctx, s.bucket, s.key)
	if err != nil {
		return s.fail(fmt.Errorf("initiate upload: %w", err))
	}
	s.uploadID = id
	s.state = StateIdle
	s.log.Debug().Str("upload_id", id).Msg("chunked upload session created")
	return nil
}

// uploadPart drains the oldest limit bytes (or the whole buffer if
// shorter) as the next numbered part.
func (s *Sink) uploadPart(limit int) error {
	n := min(len(s.buf), limit)
	number := s.nextPart

	s.state = StateUploadingPart
	etag, err := s.api.UploadPart(s.ctx, s.bucket, s.key, s.uploadID, number, s.buf[:n])
	if err != nil {
		return s.fail(fmt.Errorf("upload part %d: %w", number, err))
	}

	s.buf = append(s.buf[:0], s.buf[n:]...)
	s.nextPart++
	s.parts = append(s.parts, store.Part{Number: number, ETag: etag})
	s.state = StateIdle

	s.log.Debug().
		Int32("part_number", number).
		Str("part_size_h", humanfmt.Bytes(int64(n))).
		Msg("part uploaded")
	return nil
}

// Close commits the object. With no session started the buffer goes up
// as one whole-object write; otherwise any remainder becomes a final
// sub-threshold part and the session is completed with the ordered
// parts list. Close after Close is a no-op.
func (s *Sink) Close() error {
	switch s.state {
	case StateFailed:
		return s.err
	case StateCompleted:
		return nil
	}

	if s.uploadID == "" {
		s.state = StateCompletingUpload
		if err := s.api.Put(s.ctx, s.bucket, s.key, s.buf); err != nil {
			return s.fail(fmt.Errorf("put whole object: %w", err))
		}
		s.buf = nil
		s.state = StateCompleted
		s.log.Info().
			Str("size_h", humanfmt.Bytes(s.bytesWritten)).
			Msg("object written in one put")
		return nil
	}

	if len(s.buf) > 0 {
		// The store's last-part rule permits one sub-threshold part.
		if err := s.uploadPart(len(s.buf)); err != nil {
			s.abort()
			return err
		}
	}

	s.state = StateCompletingUpload
	if err := s.api.CompleteUpload(s.ctx, s.bucket, s.key, s.uploadID, s.parts); err != nil {
		err = s.fail(fmt.Errorf("complete upload: %w", err))
		s.abort()
		return err
	}
	s.state = StateCompleted
	s.uploadID = ""
	s.log.Info().
		Int("parts", len(s.parts)).
		Str("size_h", humanfmt.Bytes(s.bytesWritten)).
		Msg("chunked upload completed")
	return nil
}

// Abort discards the sink without committing anything. Any open
// multipart session is best-effort aborted so the store does not
// accumulate orphaned parts. Aborting a completed sink is a no-op.
func (s *Sink) Abort() {
	if s.state == StateCompleted {
		return
	}
	s.abort()
	if s.state != StateFailed {
		s.fail(errors.New("upload aborted"))
	}
}

// abort discards the multipart session after a failed close so the
// store does not accumulate orphaned parts. Abort failures are only
// logged; the sink's sticky error is the original failure.
func (s *Sink) abort() {
	if s.uploadID == "" {
		return
	}
	if err := s.api.AbortUpload(s.ctx, s.bucket, s.key, s.uploadID); err != nil {
		s.log.Warn().Err(err).Str("upload_id", s.uploadID).Msg("abort of failed upload session failed")
	}
	s.uploadID = ""
}

func (s *Sink) fail(err error) error {
	s.state = StateFailed
	s.err = err
	return err
}
