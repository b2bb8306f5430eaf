// internal/api/auth.go
package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github-integration/internal/model"
)

const (
	stateCookie   = "github_oauth_state"
	stateLifetime = 10 * time.Minute
)

// login redirects to the GitHub consent screen.
// GET /auth/github/login
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/github",
		MaxAge:   int(stateLifetime.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.OAuth.LoginURL(state), http.StatusTemporaryRedirect)
}

type callbackResponse struct {
	Message string        `json:"message"`
	User    model.Profile `json:"user"`
	Status  string        `json:"status"`
}

// callback completes the authorization and stores the identity record.
// GET /auth/github/callback?code=&state=
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if ghErr := q.Get("error"); ghErr != "" {
		reason := q.Get("error_description")
		if reason == "" {
			reason = ghErr
		}
		respondWithError(w, http.StatusBadRequest, "GitHub authorization failed: "+reason)
		return
	}
	code := q.Get("code")
	if code == "" {
		respondWithError(w, http.StatusBadRequest, "Authorization code is required")
		return
	}
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != q.Get("state") {
		respondWithError(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/auth/github", MaxAge: -1})

	token, err := h.OAuth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("OAuth code exchange failed", "error", err)
		respondWithError(w, http.StatusBadRequest, "Failed to get access token")
		return
	}
	profile, err := h.FetchProfile(r.Context(), token)
	if err != nil {
		h.logger.Warn("Failed to fetch GitHub profile", "error", err)
		respondWithError(w, http.StatusBadRequest, "Failed to get user info from GitHub")
		return
	}
	if _, err := h.Integrations.Connect(r.Context(), token, profile); err != nil {
		h.respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, callbackResponse{
		Message: "GitHub integration successful",
		User:    profile,
		Status:  "connected",
	})
}
