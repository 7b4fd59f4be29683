package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/eunmann/s3-archive/pkg/archive"
)

func TestRunNoArgs(t *testing.T) {
	err := Run(nil)
	if err == nil {
		t.Fatal("expected error with no args")
	}
	if !strings.Contains(err.Error(), "usage") {
		t.Errorf("expected usage message, got: %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := Run([]string{"unknown"})
	if err == nil {
		t.Fatal("expected error with unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected 'unknown command' error, got: %v", err)
	}
}

func TestParseArchiveMissingSrc(t *testing.T) {
	_, err := parseArchive([]string{"--dst", "s3://dst/cold"})
	if err == nil || !strings.Contains(err.Error(), "--src") {
		t.Errorf("expected '--src' error, got: %v", err)
	}
}

func TestParseArchiveMissingDst(t *testing.T) {
	_, err := parseArchive([]string{"--src", "s3://src/logs"})
	if err == nil || !strings.Contains(err.Error(), "--dst") {
		t.Errorf("expected '--dst' error, got: %v", err)
	}
}

func TestParseArchiveRejectsNonS3URLs(t *testing.T) {
	_, err := parseArchive([]string{"--src", "gs://src/logs", "--dst", "s3://dst"})
	if err == nil || !strings.Contains(err.Error(), "--src") {
		t.Errorf("expected scheme error for --src, got: %v", err)
	}
}

func TestParseArchiveRejectsBadCutoff(t *testing.T) {
	_, err := parseArchive([]string{
		"--src", "s3://src", "--dst", "s3://dst",
		"--cutoff", "yesterday",
	})
	if err == nil || !strings.Contains(err.Error(), "--cutoff") {
		t.Errorf("expected '--cutoff' error, got: %v", err)
	}
}

func TestParseArchiveRejectsBadCompression(t *testing.T) {
	_, err := parseArchive([]string{
		"--src", "s3://src", "--dst", "s3://dst",
		"--compression", "brotli",
	})
	if err == nil || !strings.Contains(err.Error(), "algorithm") {
		t.Errorf("expected algorithm error, got: %v", err)
	}
}

func TestParseArchiveFull(t *testing.T) {
	cfg, err := parseArchive([]string{
		"--src", "s3://src-bucket/logs/",
		"--dst", "s3://dst-bucket/cold",
		"--cutoff", "2024-01-01T00:00:00Z",
		"--part-size", "8388608",
		"--compression", "gzip",
		"--level", "best",
		"--endpoint", "http://localhost:9000",
		"--region", "eu-west-1",
		"--max-attempts", "5",
		"--delete-batch-size", "500",
		"--delete-concurrency", "2",
		"--debug",
	})
	if err != nil {
		t.Fatalf("parseArchive failed: %v", err)
	}

	if cfg.run.Source.Bucket != "src-bucket" || cfg.run.Source.Prefix != "logs/" {
		t.Errorf("source = %+v", cfg.run.Source)
	}
	if cfg.run.Dest.Bucket != "dst-bucket" || cfg.run.Dest.Prefix != "cold" {
		t.Errorf("dest = %+v", cfg.run.Dest)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !cfg.run.Cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", cfg.run.Cutoff, want)
	}
	if cfg.run.PartSize != 8388608 {
		t.Errorf("part size = %d", cfg.run.PartSize)
	}
	if cfg.run.Compression.Algorithm != archive.AlgorithmGzip || cfg.run.Compression.Level != archive.LevelBest {
		t.Errorf("compression = %+v", cfg.run.Compression)
	}
	if cfg.run.Delete.BatchSize != 500 || cfg.run.Delete.Concurrency != 2 {
		t.Errorf("delete options = %+v", cfg.run.Delete)
	}
	if cfg.store.Endpoint != "http://localhost:9000" || cfg.store.Region != "eu-west-1" || cfg.store.MaxAttempts != 5 {
		t.Errorf("store options = %+v", cfg.store)
	}
	if !cfg.debug || cfg.human {
		t.Errorf("log flags = debug:%v human:%v", cfg.debug, cfg.human)
	}
}

func TestParseArchiveDefaults(t *testing.T) {
	cfg, err := parseArchive([]string{"--src", "s3://s", "--dst", "s3://d"})
	if err != nil {
		t.Fatalf("parseArchive failed: %v", err)
	}
	if !cfg.run.Cutoff.IsZero() {
		t.Error("cutoff should default to zero (resolved at run time)")
	}
	if cfg.run.Compression.Algorithm != archive.AlgorithmZstd || cfg.run.Compression.Level != archive.LevelFastest {
		t.Errorf("default compression = %+v, want zstd fastest", cfg.run.Compression)
	}
}
