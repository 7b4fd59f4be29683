package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Algorithm selects the compression applied around the tar stream.
type Algorithm int

const (
	// AlgorithmZstd is the default: best speed/ratio tradeoff.
	AlgorithmZstd Algorithm = iota
	// AlgorithmGzip for consumers that cannot read zstd.
	AlgorithmGzip
)

// Level is the compression effort.
type Level int

const (
	LevelFastest Level = iota
	LevelDefault
	LevelBest
)

// CompressionSpec pairs an algorithm with an effort level.
type CompressionSpec struct {
	Algorithm Algorithm
	Level     Level
}

// ParseAlgorithm maps a flag value to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "zstd":
		return AlgorithmZstd, nil
	case "gzip":
		return AlgorithmGzip, nil
	default:
		return 0, fmt.Errorf("unknown compression algorithm %q (supported: zstd, gzip)", s)
	}
}

// ParseLevel maps a flag value to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "fastest":
		return LevelFastest, nil
	case "default":
		return LevelDefault, nil
	case "best":
		return LevelBest, nil
	default:
		return 0, fmt.Errorf("unknown compression level %q (supported: fastest, default, best)", s)
	}
}

// Ext returns the archive filename extension for the spec.
func (c CompressionSpec) Ext() string {
	switch c.Algorithm {
	case AlgorithmGzip:
		return ".tar.gz"
	default:
		return ".tar.zst"
	}
}

// newWriter layers the compression transform over w. The returned
// writer must be closed to emit the stream trailer.
func (c CompressionSpec) newWriter(w io.Writer) (io.WriteCloser, error) {
	switch c.Algorithm {
	case AlgorithmZstd:
		var level zstd.EncoderLevel
		switch c.Level {
		case LevelFastest:
			level = zstd.SpeedFastest
		case LevelBest:
			level = zstd.SpeedBestCompression
		default:
			level = zstd.SpeedDefault
		}
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level))
		if err != nil {
			return nil, fmt.Errorf("create zstd writer: %w", err)
		}
		return zw, nil

	case AlgorithmGzip:
		var level int
		switch c.Level {
		case LevelFastest:
			level = gzip.BestSpeed
		case LevelBest:
			level = gzip.BestCompression
		default:
			level = gzip.DefaultCompression
		}
		gw, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, fmt.Errorf("create gzip writer: %w", err)
		}
		return gw, nil

	default:
		return nil, fmt.Errorf("unknown compression algorithm %d", c.Algorithm)
	}
}
