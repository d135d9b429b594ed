package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
)

// fakeUsers is a hand-written UserFinder. err, when set, is returned for
// every lookup.
type fakeUsers struct {
	users map[string]*model.User
	err   error
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return u, nil
}

func newTestGuard(t *testing.T, users *fakeUsers) (*Guard, *TokenService) {
	t.Helper()
	ts := newTestTokenService(t)
	respond := func(w http.ResponseWriter, _ *http.Request, err error) {
		status := http.StatusInternalServerError
		if errors.Is(err, apperror.ErrUnauthenticated) {
			status = http.StatusUnauthorized
		}
		http.Error(w, err.Error(), status)
	}
	return NewGuard(ts, users, respond), ts
}

func requestWithAuth(header string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return r
}

// =========================================================================
// AUTHENTICATE TESTS
// =========================================================================

func TestAuthenticate(t *testing.T) {
	alice := &model.User{ID: "alice-id", Username: "alice", Email: "a@x.io"}
	guard, ts := newTestGuard(t, &fakeUsers{users: map[string]*model.User{alice.ID: alice}})

	valid, _ := ts.Issue(alice.ID)
	expired, _ := ts.IssueWithTTL(alice.ID, -time.Minute)
	ghost, _ := ts.Issue("deleted-user")

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"no header", "", "no token provided"},
		{"wrong scheme", "Basic " + valid, "no token provided"},
		{"scheme only", "Bearer", "no token provided"},
		{"garbage token", "Bearer garbage", "invalid token"},
		{"expired token", "Bearer " + expired, "invalid token"},
		{"user gone", "Bearer " + ghost, "user not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := guard.Authenticate(requestWithAuth(tt.header))
			if !errors.Is(err, apperror.ErrUnauthenticated) {
				t.Fatalf("Authenticate() error = %v, want ErrUnauthenticated", err)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}

	t.Run("valid token", func(t *testing.T) {
		for _, header := range []string{"Bearer " + valid, "bearer " + valid} {
			user, err := guard.Authenticate(requestWithAuth(header))
			if err != nil {
				t.Fatalf("Authenticate(%q) error = %v", header[:7], err)
			}
			if user.ID != alice.ID {
				t.Errorf("user.ID = %q, want %q", user.ID, alice.ID)
			}
		}
	})
}

func TestAuthenticate_StoreFailureIsNotUnauthenticated(t *testing.T) {
	guard, ts := newTestGuard(t, &fakeUsers{err: errors.New("db down")})
	token, _ := ts.Issue("alice-id")

	_, err := guard.Authenticate(requestWithAuth("Bearer " + token))
	if err == nil {
		t.Fatal("Authenticate() should fail when the store fails")
	}
	if errors.Is(err, apperror.ErrUnauthenticated) {
		t.Error("store failure must not be reported as unauthenticated")
	}
}

// =========================================================================
// REQUIRE TESTS
// =========================================================================

func TestRequire_RejectsWithoutCallingHandler(t *testing.T) {
	guard, _ := newTestGuard(t, &fakeUsers{})

	called := false
	h := guard.Require(func(w http.ResponseWriter, r *http.Request, user *model.User) {
		called = true
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithAuth(""))

	if called {
		t.Error("protected handler ran without a token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequire_PassesResolvedUser(t *testing.T) {
	alice := &model.User{ID: "alice-id", Username: "alice"}
	guard, ts := newTestGuard(t, &fakeUsers{users: map[string]*model.User{alice.ID: alice}})
	token, _ := ts.Issue(alice.ID)

	var got *model.User
	h := guard.Require(func(w http.ResponseWriter, r *http.Request, user *model.User) {
		got = user
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithAuth("Bearer "+token))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got == nil || got.ID != alice.ID {
		t.Errorf("handler got user %+v, want alice", got)
	}
}
