package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
)

// UserFinder is the slice of the credential store the Guard needs.
type UserFinder interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// AuthedHandlerFunc is a handler that runs only for an authenticated user.
// The user is passed explicitly instead of through the request context, so
// a protected handler cannot be wired without its guard.
type AuthedHandlerFunc func(w http.ResponseWriter, r *http.Request, user *model.User)

// ErrorResponder writes err to the client. The handler package supplies it so
// the Guard answers with the same envelope as every other endpoint.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// Guard resolves the caller of a protected route.
type Guard struct {
	tokens  *TokenService
	users   UserFinder
	respond ErrorResponder
}

func NewGuard(tokens *TokenService, users UserFinder, respond ErrorResponder) *Guard {
	return &Guard{tokens: tokens, users: users, respond: respond}
}

// Authenticate reads "Authorization: Bearer <token>", verifies the token
// and loads the live user. The user must still exist: a valid token for a
// deleted account is rejected.
//
// Errors:
//   - no bearer token          → apperror.ErrUnauthenticated "no token provided"
//   - Verify fails             → apperror.ErrUnauthenticated "invalid token"
//   - user no longer exists    → apperror.ErrUnauthenticated "user not found"
//   - store failure            → wrapped, surfaces as 500
func (g *Guard) Authenticate(r *http.Request) (*model.User, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, apperror.Unauthenticated("no token provided")
	}

	userID, err := g.tokens.Verify(token)
	if err != nil {
		return nil, apperror.Unauthenticated("invalid token")
	}

	user, err := g.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("user not found")
		}
		return nil, fmt.Errorf("auth: loading user %s: %w", userID, err)
	}

	return user, nil
}

// Require adapts an AuthedHandlerFunc to a plain http.HandlerFunc. Requests
// that fail Authenticate never reach next.
func (g *Guard) Require(next AuthedHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := g.Authenticate(r)
		if err != nil {
			g.respond(w, r, err)
			return
		}
		next(w, r, user)
	}
}

// bearerToken extracts the token from the Authorization header. The scheme
// is matched case-insensitively; anything else yields "".
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
