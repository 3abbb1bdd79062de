// ABOUTME: Account endpoints: registration, token login, profile, and notification preferences
// ABOUTME: Credential checks are delegated to auth.Service

package api

import (
	"net/http"

	"github.com/2389/roster/internal/auth"
	"github.com/2389/roster/internal/notify"
	"github.com/2389/roster/internal/store"
)

// credentialsRequest is the body of /auth/register and /auth/token-json.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID       int64      `json:"id"`
	Username string     `json:"username"`
	Role     store.Role `json:"role"`
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
}

// prefsRequest is a partial update of notification preferences.
type prefsRequest struct {
	Email          *string `json:"email"`
	Telegram       *bool   `json:"telegram"`
	TelegramChatID *string `json:"telegram_chat_id"`
}

// NotifyTestResponse reports which channels a self-test reached.
type NotifyTestResponse struct {
	DryRun   bool             `json:"dry_run"`
	Channels []notify.Channel `json:"channels"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{ID: u.ID, Username: u.Username, Role: u.Role})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	writeJSON(w, http.StatusOK, UserResponse{ID: caller.UserID, Username: caller.Username, Role: caller.Role})
}

func (s *Server) handleUpdatePrefs(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	var req prefsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var updated store.Prefs
	err := s.store.Update(r.Context(), func(doc *store.Document) error {
		u, ok := doc.User(caller.UserID)
		if !ok {
			return errUserNotFound
		}
		prefs := store.Prefs{}
		if u.Prefs != nil {
			prefs = *u.Prefs
		}
		if req.Email != nil {
			prefs.Email = *req.Email
		}
		if req.Telegram != nil {
			prefs.Telegram = *req.Telegram
		}
		if req.TelegramChatID != nil {
			prefs.TelegramChatID = *req.TelegramChatID
		}
		u.Prefs = &prefs
		updated = prefs
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	doc, err := s.store.Load(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, ok := doc.User(caller.UserID)
	if !ok {
		s.writeError(w, r, errUserNotFound)
		return
	}

	deliveries, err := s.notifier.SendTest(r.Context(), *u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	channels := make([]notify.Channel, 0, len(deliveries))
	for _, d := range deliveries {
		channels = append(channels, d.Channel)
	}
	s.logger.Info("notification self-test", append(logAttrsForUser(caller), "channels", len(channels))...)
	writeJSON(w, http.StatusOK, NotifyTestResponse{DryRun: s.notifier.DryRun(), Channels: channels})
}
