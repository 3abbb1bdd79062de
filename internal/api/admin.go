// ABOUTME: Admin endpoints: user management, reset, backup download, restore, and archiving
// ABOUTME: Restores decode the whole envelope first and apply it with a single document write

package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/roster/internal/auth"
	"github.com/2389/roster/internal/backup"
	"github.com/2389/roster/internal/notify"
	"github.com/2389/roster/internal/rules"
	"github.com/2389/roster/internal/store"
)

// AdminUserResponse is the admin view of a user.
type AdminUserResponse struct {
	ID       int64      `json:"id"`
	Username string     `json:"username"`
	Role     store.Role `json:"role"`
	IsActive bool       `json:"is_active"`
}

func adminUser(u store.User) AdminUserResponse {
	return AdminUserResponse{ID: u.ID, Username: u.Username, Role: u.Role, IsActive: u.IsActive}
}

// userUpdateRequest is the body of PUT /admin/users/{id}.
type userUpdateRequest struct {
	Role     *store.Role `json:"role"`
	IsActive *bool       `json:"is_active"`
}

// OKResponse acknowledges a destructive admin action.
type OKResponse struct {
	OK bool `json:"ok"`
}

// ArchiveResponse names an archived backup.
type ArchiveResponse struct {
	Key string `json:"key"`
}

// DiagnosticResponse summarizes notification readiness.
type DiagnosticResponse struct {
	DryRun         bool `json:"dry_run"`
	UsersWithPrefs int  `json:"users_with_prefs"`
}

// DiagnosticTestResponse reports a notification fan-out test.
type DiagnosticTestResponse struct {
	DryRun bool `json:"dry_run"`
	Tested int  `json:"tested"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	p, err := parsePage(r.URL.Query(), 10)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))

	doc, err := s.store.Load(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	users := []AdminUserResponse{}
	for _, u := range doc.Users {
		if u.Lifecycle.IsDeleted() {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(u.Username), q) {
			continue
		}
		users = append(users, adminUser(u))
	}

	writeJSON(w, http.StatusOK, pageResponse[AdminUserResponse]{
		Items:   paginate(users, p),
		Page:    p.Page,
		PerPage: p.PerPage,
		Total:   len(users),
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.store.Load(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, ok := doc.User(id)
	if !ok {
		s.writeError(w, r, errUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, adminUser(*u))
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req userUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Role != nil {
		if err := rules.ValidateUserRole(*req.Role); err != nil {
			s.writeError(w, r, invalid("role must be admin or intermittent"))
			return
		}
	}

	var updated store.User
	err = s.store.Update(r.Context(), func(doc *store.Document) error {
		u, ok := doc.User(id)
		if !ok {
			return errUserNotFound
		}
		if req.Role != nil {
			u.Role = *req.Role
		}
		if req.IsActive != nil {
			u.IsActive = *req.IsActive
		}
		updated = *u
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("user updated",
		append(logAttrsForUser(auth.FromContext(r.Context())), "target_id", id, "role", updated.Role, "is_active", updated.IsActive)...)
	writeJSON(w, http.StatusOK, adminUser(updated))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.store.Update(r.Context(), func(doc *store.Document) error {
		u, ok := doc.User(id)
		if !ok {
			return errUserNotFound
		}
		u.Lifecycle = store.Deleted(s.now())
		u.IsActive = false
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("user deleted",
		append(logAttrsForUser(auth.FromContext(r.Context())), "target_id", id)...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Save(r.Context(), store.NewDocument()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Warn("document reset", logAttrsForUser(auth.FromContext(r.Context()))...)
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Load(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	env := backup.Export(doc, s.now())
	data, err := env.Encode()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", backup.Filename(env.CreatedAt)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	mode := backup.Wipe
	if v := r.URL.Query().Get("wipe"); v != "" {
		wipe, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, invalid("wipe must be true or false"))
			return
		}
		if !wipe {
			mode = backup.Merge
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, errBadRequest)
		return
	}
	data, err := backup.ReadArchive(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	env, err := backup.Decode(data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var opts []backup.Option
	if s.resetTokensOnMerge {
		opts = append(opts, backup.ResetTokensOnMerge())
	}

	err = s.store.Update(r.Context(), func(doc *store.Document) error {
		next, err := backup.Import(doc, env, mode, opts...)
		if err != nil {
			return err
		}
		*doc = *next
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Warn("document restored",
		append(logAttrsForUser(auth.FromContext(r.Context())),
			"mode", mode.String(),
			"users", len(env.Payload.Users),
			"missions", len(env.Payload.Missions),
			"assignments", len(env.Payload.Assignments),
		)...)
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if !s.archiver.Enabled() {
		s.writeError(w, r, backup.ErrNoSink)
		return
	}
	doc, err := s.store.Load(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	key, err := s.archiver.Archive(r.Context(), backup.Export(doc, s.now()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ArchiveResponse{Key: key})
}

func (s *Server) handleNotifyDiagnostic(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Load(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DiagnosticResponse{
		DryRun:         s.notifier.DryRun(),
		UsersWithPrefs: len(notify.UsersWithPrefs(doc)),
	})
}

func (s *Server) handleNotifyDiagnosticTest(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Load(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tested, err := s.notifier.TestAll(r.Context(), notify.UsersWithPrefs(doc))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DiagnosticTestResponse{DryRun: s.notifier.DryRun(), Tested: tested})
}
