// Package archive encodes object streams into a compressed tar archive
// written straight through to a byte sink, without buffering whole
// objects or the archive itself.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"time"
)

// entryMode is the fixed permission recorded for every archive entry.
// Source objects have no mode of their own.
const entryMode = 0o644

// ErrEntrySize reports an entry whose streamed byte count did not match
// the size declared in its header. The archive is unusable past this
// point.
var ErrEntrySize = errors.New("entry bytes do not match declared size")

// Encoder writes tar entries through a compression transform into an
// underlying sink. The sink is borrowed: Close finalizes the tar and
// compression trailers but leaves closing the sink to its owner.
type Encoder struct {
	comp io.WriteCloser
	tw   *tar.Writer
	err  error
}

// NewEncoder layers a tar writer and the given compression over sink.
func NewEncoder(sink io.Writer, spec CompressionSpec) (*Encoder, error) {
	comp, err := spec.newWriter(sink)
	if err != nil {
		return nil, err
	}
	return &Encoder{
		comp: comp,
		tw:   tar.NewWriter(comp),
	}, nil
}

// Append streams one object into the archive under its key. The header
// declares exactly size bytes; streaming more or fewer is a fatal
// encoding error and poisons the encoder.
func (e *Encoder) Append(key string, size int64, modTime time.Time, r io.Reader) error {
	if e.err != nil {
		return e.err
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     key,
		Size:     size,
		Mode:     entryMode,
		ModTime:  modTime,
	}
	if err := e.tw.WriteHeader(hdr); err != nil {
		return e.fail(fmt.Errorf("write header for %q: %w", key, err))
	}

	n, err := io.Copy(e.tw, r)
	if err != nil {
		return e.fail(fmt.Errorf("stream entry %q: %w", key, err))
	}
	if n != size {
		return e.fail(fmt.Errorf("entry %q: wrote %d of %d bytes: %w", key, n, size, ErrEntrySize))
	}
	return nil
}

// Close flushes the tar trailer and the compression trailer. It must
// succeed for the archive to be trustworthy.
func (e *Encoder) Close() error {
	if e.err != nil {
		return e.err
	}
	if err := e.tw.Close(); err != nil {
		return e.fail(fmt.Errorf("finalize tar stream: %w", err))
	}
	if err := e.comp.Close(); err != nil {
		return e.fail(fmt.Errorf("finalize compression stream: %w", err))
	}
	return nil
}

func (e *Encoder) fail(err error) error {
	e.err = err
	return err
}
