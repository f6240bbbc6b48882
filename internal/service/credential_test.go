package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/reconnoiter/reconnoiter/internal/model"
	"github.com/reconnoiter/reconnoiter/internal/store"
)

func TestIssueAndVerify(t *testing.T) {
	svc, st := newTestCredentials(t, true)
	ctx := context.Background()

	raw, cred, err := svc.Issue(ctx, "CI", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(raw) != SecretLength {
		t.Fatalf("secret length = %d, want %d", len(raw), SecretLength)
	}
	if cred.Prefix != raw[:PrefixLength] {
		t.Errorf("prefix = %q, want %q", cred.Prefix, raw[:PrefixLength])
	}
	if cred.SecretHash == raw || strings.Contains(cred.SecretHash, raw) {
		t.Fatal("stored hash must not be the raw secret")
	}
	for _, ch := range raw {
		if !strings.ContainsRune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_", ch) {
			t.Fatalf("secret contains non url-safe character %q", ch)
		}
	}

	got, err := svc.Verify(ctx, raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.ID != cred.ID {
		t.Errorf("Verify returned id %d, want %d", got.ID, cred.ID)
	}
	if got.RequestCount != 1 {
		t.Errorf("RequestCount = %d, want 1", got.RequestCount)
	}
	if got.LastUsedAt == nil {
		t.Error("LastUsedAt should be set after use")
	}

	got, err = svc.Verify(ctx, raw)
	if err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if got.RequestCount != 2 {
		t.Errorf("RequestCount = %d, want 2", got.RequestCount)
	}

	stored, _ := st.GetCredential(ctx, cred.ID)
	if stored.RequestCount != 2 {
		t.Errorf("stored RequestCount = %d, want 2", stored.RequestCount)
	}
}

func TestVerifyRejectsWrongSuffix(t *testing.T) {
	svc, _ := newTestCredentials(t, true)
	ctx := context.Background()

	raw, _, err := svc.Issue(ctx, "CI", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for _, pos := range []int{PrefixLength, SecretLength / 2, SecretLength - 1} {
		b := []byte(raw)
		if b[pos] == 'A' {
			b[pos] = 'B'
		} else {
			b[pos] = 'A'
		}
		if _, err := svc.Verify(ctx, string(b)); !errors.Is(err, ErrCredentialNotFound) {
			t.Errorf("altered position %d: got %v, want ErrCredentialNotFound", pos, err)
		}
	}
}

func TestVerifyLengthShortCircuit(t *testing.T) {
	counting := &countingStore{}
	svc := NewCredentialService(counting, newTestHasher(t), CredentialOptions{Logger: discardLogger()})

	for _, raw := range []string{"", "short", strings.Repeat("a", SecretLength+1)} {
		if _, err := svc.Verify(context.Background(), raw); !errors.Is(err, ErrCredentialNotFound) {
			t.Errorf("Verify(%q): got %v, want ErrCredentialNotFound", raw, err)
		}
	}
	if counting.lookups != 0 {
		t.Errorf("store consulted %d times for wrong-length secrets", counting.lookups)
	}
}

func TestVerifyPrefixCollision(t *testing.T) {
	svc, st := newTestCredentials(t, true)
	ctx := context.Background()

	raw, cred, err := svc.Issue(ctx, "real", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// A second credential sharing the prefix but with a different secret.
	other := raw[:PrefixLength] + strings.Repeat("z", SecretLength-PrefixLength)
	hash, _ := newTestHasher(t).Hash(other)
	decoy := &model.ServiceCredential{Name: "decoy", SecretHash: hash, Prefix: raw[:PrefixLength]}
	if err := st.CreateCredential(ctx, decoy); err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}

	got, err := svc.Verify(ctx, raw)
	if err != nil || got.ID != cred.ID {
		t.Fatalf("Verify(real) = %v, %v", got, err)
	}
	got, err = svc.Verify(ctx, other)
	if err != nil || got.ID != decoy.ID {
		t.Fatalf("Verify(decoy) = %v, %v", got, err)
	}
}

func TestRevoke(t *testing.T) {
	svc, _ := newTestCredentials(t, true)
	ctx := context.Background()

	raw, cred, err := svc.Issue(ctx, "CI", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	ok, err := svc.Revoke(ctx, cred.ID)
	if err != nil || !ok {
		t.Fatalf("Revoke = %v, %v; want true", ok, err)
	}
	if _, err := svc.Verify(ctx, raw); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("Verify after revoke: got %v, want ErrCredentialNotFound", err)
	}

	ok, err = svc.Revoke(ctx, cred.ID)
	if err != nil || ok {
		t.Errorf("second Revoke = %v, %v; want false", ok, err)
	}
	ok, err = svc.Revoke(ctx, 12345)
	if err != nil || ok {
		t.Errorf("Revoke(missing) = %v, %v; want false", ok, err)
	}
}

func TestCleanup(t *testing.T) {
	svc, st := newTestCredentials(t, true)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now.AddDate(0, 0, -100) }
	_, old, _ := svc.Issue(ctx, "old", nil)
	svc.Revoke(ctx, old.ID)

	svc.now = func() time.Time { return now.AddDate(0, 0, -5) }
	_, recent, _ := svc.Issue(ctx, "recent", nil)
	svc.Revoke(ctx, recent.ID)

	svc.now = func() time.Time { return now }
	n, err := svc.Cleanup(ctx, 0) // default retention
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("Cleanup removed %d, want 1", n)
	}
	if _, err := st.GetCredential(ctx, old.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("credential revoked 100 days ago should be deleted")
	}

	n, _ = svc.Cleanup(ctx, 1)
	if n != 1 {
		t.Errorf("Cleanup(1) removed %d, want 1", n)
	}
}

func TestIssueOwnerPolicy(t *testing.T) {
	svc, st := newTestCredentials(t, false)
	ctx := context.Background()

	if _, _, err := svc.Issue(ctx, "system", nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("system key with policy off: got %v, want ErrInvalidArgument", err)
	}

	u := &model.User{Email: "owner@example.com"}
	if err := st.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	_, cred, err := svc.Issue(ctx, "personal", &u.ID)
	if err != nil {
		t.Fatalf("Issue with owner: %v", err)
	}
	if cred.OwnerUserID == nil || *cred.OwnerUserID != u.ID {
		t.Errorf("OwnerUserID = %v, want %d", cred.OwnerUserID, u.ID)
	}

	if _, _, err := svc.Issue(ctx, "   ", &u.ID); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("blank name: got %v, want ErrInvalidArgument", err)
	}
}

func TestSecretsNeverLogged(t *testing.T) {
	st := newTestStore(t)
	logger, buf := captureLogger()
	svc := NewCredentialService(st, newTestHasher(t), CredentialOptions{AllowSystemKeys: true, Logger: logger})
	ctx := context.Background()

	raw, cred, err := svc.Issue(ctx, "CI", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	svc.Verify(ctx, raw)
	svc.Verify(ctx, raw[:PrefixLength]+strings.Repeat("x", SecretLength-PrefixLength))
	svc.Revoke(ctx, cred.ID)

	if bytes.Contains(buf.Bytes(), []byte(raw)) {
		t.Fatal("raw secret appeared in logs")
	}
	if bytes.Contains(buf.Bytes(), []byte(cred.SecretHash)) {
		t.Fatal("secret hash appeared in logs")
	}
	if !bytes.Contains(buf.Bytes(), []byte(cred.Prefix)) {
		t.Error("expected the prefix to be logged for diagnostics")
	}
}

func TestListAndStats(t *testing.T) {
	svc, _ := newTestCredentials(t, true)
	ctx := context.Background()

	svc.Issue(ctx, "a", nil)
	_, b, _ := svc.Issue(ctx, "b", nil)
	svc.Revoke(ctx, b.ID)

	active, err := svc.List(ctx, store.CredentialFilter{})
	if err != nil || len(active) != 1 {
		t.Fatalf("List(active) = %d, %v", len(active), err)
	}
	all, _ := svc.List(ctx, store.CredentialFilter{IncludeRevoked: true})
	if len(all) != 2 {
		t.Errorf("List(all) = %d, want 2", len(all))
	}

	st, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 2 || st.Active != 1 || st.Revoked != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

// countingStore fails the test run if Verify reaches the store for
// wrong-length input.
type countingStore struct {
	CredentialStore
	lookups int
}

func (c *countingStore) ListActiveCredentialsByPrefix(context.Context, string) ([]model.ServiceCredential, error) {
	c.lookups++
	return nil, nil
}
