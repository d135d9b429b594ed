package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/service"
)

// AuthHandler serves registration, login and the current-user endpoint.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → POST /auth/register
//   - HandleLogin    → POST /auth/login
//   - HandleMe       → GET  /auth/me (behind the Guard)
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse is the data payload of a successful register or login.
type authResponse struct {
	User  model.PublicUser `json:"user"`
	Token string           `json:"token"`
}

// HandleRegister creates an account.
//
// HTTP: POST /auth/register {"username","email","password"}
// 201 with {user, token}; 400 on bad input; 409 if username or email is taken.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, h.logger, http.StatusCreated, "user registered", authResponse{
		User:  result.User.Public(),
		Token: result.Token,
	})
}

// HandleLogin exchanges credentials for a token.
//
// HTTP: POST /auth/login {"email","password"}
// 200 with {user, token}; 401 "invalid email or password" for any bad credential.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, h.logger, http.StatusOK, "login successful", authResponse{
		User:  result.User.Public(),
		Token: result.Token,
	})
}

// HandleMe returns the caller's public profile. The mobile app calls it on
// start-up to check that a stored token is still good.
//
// HTTP: GET /auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request, user *model.User) {
	writeSuccess(w, h.logger, http.StatusOK, "", map[string]any{"user": user.Public()})
}
