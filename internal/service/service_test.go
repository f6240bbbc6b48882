package service

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/reconnoiter/reconnoiter/internal/store"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore("") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureLogger records log output so tests can assert that secrets never
// appear in it.
func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func newTestHasher(t *testing.T) *BcryptHasher {
	t.Helper()
	h, err := NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcryptHasher: %v", err)
	}
	return h
}

func newTestCredentials(t *testing.T, allowSystemKeys bool) (*CredentialService, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	svc := NewCredentialService(st, newTestHasher(t), CredentialOptions{
		AllowSystemKeys: allowSystemKeys,
		Logger:          discardLogger(),
	})
	return svc, st
}

func ptr[T any](v T) *T { return &v }
