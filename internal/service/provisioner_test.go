package service

import (
	"context"
	"testing"
	"time"

	"github.com/reconnoiter/reconnoiter/internal/model"
	"github.com/reconnoiter/reconnoiter/internal/store"
)

// racingStore simulates a concurrent first login: lookups miss until the
// first CreateUser, which loses to a row inserted by "another request".
type racingStore struct {
	*store.Store
	raced bool
}

func (r *racingStore) CreateUser(ctx context.Context, u *model.User) error {
	if !r.raced {
		r.raced = true
		winner := *u
		winner.ID = 0
		if err := r.Store.CreateUser(ctx, &winner); err != nil {
			return err
		}
	}
	return r.Store.CreateUser(ctx, u)
}

func TestFindOrCreateConflictRefetches(t *testing.T) {
	st := &racingStore{Store: newTestStore(t)}
	p := NewUserProvisioner(st, discardLogger())
	ctx := context.Background()

	profile := &model.Profile{ID: 42, Login: "octocat", Email: "octocat@example.com"}
	u, err := p.FindOrCreate(ctx, profile)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if u.ID == 0 {
		t.Fatal("expected the winner's row")
	}

	users, _ := st.ListUsers(ctx)
	if len(users) != 1 {
		t.Errorf("user rows = %d, want 1", len(users))
	}
}

// deletingStore simulates an admin deleting the user between the lookup
// miss and the insert.
type deletingStore struct {
	*store.Store
}

func (d *deletingStore) CreateUser(ctx context.Context, u *model.User) error {
	other := *u
	if err := d.Store.CreateUser(ctx, &other); err != nil {
		return err
	}
	if err := d.Store.SoftDeleteUser(ctx, other.ID, time.Now()); err != nil {
		return err
	}
	return d.Store.CreateUser(ctx, u)
}

func TestFindOrCreateConflictWithDeletedUser(t *testing.T) {
	st := &deletingStore{Store: newTestStore(t)}
	p := NewUserProvisioner(st, discardLogger())

	_, err := p.FindOrCreate(context.Background(), &model.Profile{ID: 42, Login: "octocat", Email: "octocat@example.com"})
	ae, ok := AsAuthError(err)
	if !ok || ae.Code != CodeAccessDenied {
		t.Fatalf("got %v, want %s", err, CodeAccessDenied)
	}
}

func TestFindOrCreateConcurrent(t *testing.T) {
	st := newTestStore(t)
	p := NewUserProvisioner(st, discardLogger())
	ctx := context.Background()

	const workers = 8
	errs := make(chan error, workers)
	ids := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		go func() {
			u, err := p.FindOrCreate(ctx, &model.Profile{ID: 99, Login: "race", Email: "race@example.com"})
			if err != nil {
				errs <- err
				return
			}
			ids <- u.ID
			errs <- nil
		}()
	}

	var first int64
	for i := 0; i < workers; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("FindOrCreate: %v", err)
		}
	}
	close(ids)
	for id := range ids {
		if first == 0 {
			first = id
		}
		if id != first {
			t.Errorf("got user %d and %d for the same identity", first, id)
		}
	}

	users, _ := st.ListUsers(ctx)
	if len(users) != 1 {
		t.Errorf("user rows = %d, want 1", len(users))
	}
}

func TestFindOrCreateEmailTakenByOtherAccount(t *testing.T) {
	st := newTestStore(t)
	p := NewUserProvisioner(st, discardLogger())
	ctx := context.Background()

	a, err := p.FindOrCreate(ctx, &model.Profile{ID: 1, Login: "a", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("FindOrCreate(a): %v", err)
	}
	if _, err := p.FindOrCreate(ctx, &model.Profile{ID: 2, Login: "b", Email: "b@example.com"}); err != nil {
		t.Fatalf("FindOrCreate(b): %v", err)
	}

	// a now reports b's address; the refresh keeps a's own email.
	got, err := p.FindOrCreate(ctx, &model.Profile{ID: 1, Login: "a-renamed", Email: "b@example.com"})
	if err != nil {
		t.Fatalf("FindOrCreate(a again): %v", err)
	}
	if got.ID != a.ID || got.Email != "a@example.com" {
		t.Errorf("got %+v", got)
	}
	if got.ProviderLogin == nil || *got.ProviderLogin != "a-renamed" {
		t.Error("other profile fields should still refresh")
	}
}

func TestProfileEmail(t *testing.T) {
	tests := []struct {
		profile model.Profile
		want    string
	}{
		{model.Profile{Login: "x", Email: "x@example.com"}, "x@example.com"},
		{model.Profile{Login: "hidden"}, "hidden@users.noreply.github.com"},
	}
	for _, tt := range tests {
		if got := profileEmail(&tt.profile); got != tt.want {
			t.Errorf("profileEmail(%s) = %q, want %q", tt.profile.Login, got, tt.want)
		}
	}
}

