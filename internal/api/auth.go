package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/whatnow/internal/auth"
	"github.com/kalambet/whatnow/internal/storage"
)

const minPasswordLen = 8

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

func handleRegister(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if _, err := mail.ParseAddress(req.Email); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid email address")
			return
		}
		if len(req.Password) < minPasswordLen {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "password must be at least %d characters", minPasswordLen)
			return
		}

		if _, err := deps.Store.GetUserByEmail(req.Email); err == nil {
			httpError(w, http.StatusConflict, "invalid_request_error", "email already registered")
			return
		} else if !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to check email: %v", err)
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to hash password: %v", err)
			return
		}

		user := storage.User{
			ID:           uuid.New().String(),
			Email:        req.Email,
			PasswordHash: hash,
			CreatedAt:    time.Now().UTC(),
		}
		if err := deps.Store.CreateUser(user); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create user: %v", err)
			return
		}

		token, err := auth.GenerateToken(deps.JWTSecret, user.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to issue token: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, tokenResponse{Token: token, UserID: user.ID})
	}
}

func handleLogin(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		user, err := deps.Store.GetUserByEmail(req.Email)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && !auth.CheckPassword(user.PasswordHash, req.Password)) {
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid email or password")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to look up user: %v", err)
			return
		}

		token, err := auth.GenerateToken(deps.JWTSecret, user.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to issue token: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, tokenResponse{Token: token, UserID: user.ID})
	}
}
