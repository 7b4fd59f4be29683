package store

import (
	"context"
	"strings"
	"testing"
)

func TestNewClientRequiresPairedStaticCreds(t *testing.T) {
	_, err := NewClient(context.Background(), Options{AccessKey: "AKIA..."})
	if err == nil {
		t.Fatal("expected error for access key without secret key")
	}
	_, err = NewClient(context.Background(), Options{SecretKey: "secret"})
	if err == nil {
		t.Fatal("expected error for secret key without access key")
	}
}

func TestKeyErrorMessage(t *testing.T) {
	err := KeyError{Key: "logs/a", Code: "AccessDenied", Message: "no"}
	msg := err.Error()
	for _, want := range []string{"logs/a", "AccessDenied"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}
