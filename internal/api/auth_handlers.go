package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/inf/reelbox/internal/auth"
	"github.com/inf/reelbox/internal/store"
)

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Phone: u.Phone, Email: u.Email, Avatar: u.Avatar}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	u, err := s.deps.Auth.Register(r.Context(), req.Username, req.Phone, req.Password)
	switch {
	case errors.Is(err, auth.ErrBadUsername), errors.Is(err, auth.ErrWeakPassword):
		writeBadRequest(w, err)
	case err != nil:
		writeStoreError(w, err)
	default:
		writeJSON(w, http.StatusCreated, toUserResponse(u))
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	token, u, err := s.deps.Auth.Login(r.Context(), req.Login, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeUnauthorized(w)
		return
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": toUserResponse(u)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		s.deps.Auth.Logout(token)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUserResponse(currentUser(r)))
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	err := s.deps.Auth.ChangePassword(r.Context(), currentUser(r).ID, req.OldPassword, req.NewPassword)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusForbidden, "wrong password")
	case errors.Is(err, auth.ErrWeakPassword):
		writeBadRequest(w, err)
	case err != nil:
		writeStoreError(w, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone  string `json:"phone"`
		Email  string `json:"email"`
		Avatar string `json:"avatar"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.deps.Auth.UpdateProfile(r.Context(), currentUser(r).ID, req.Phone, req.Email, req.Avatar); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
