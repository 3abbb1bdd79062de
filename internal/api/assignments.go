// ABOUTME: Assignment endpoints: capacity-checked assign, per-mission listing, and removal
// ABOUTME: The capacity count and the append happen in one critical section

package api

import (
	"cmp"
	"net/http"
	"strings"

	"github.com/2389/roster/internal/rules"
	"github.com/2389/roster/internal/store"
)

// assignRequest is the body of POST /missions/{id}/assign.
type assignRequest struct {
	RoleLabel string                 `json:"role_label"`
	UserID    int64                  `json:"user_id"`
	Status    store.AssignmentStatus `json:"status"`
}

// AssignmentList is the response of GET /missions/{id}/assignments.
type AssignmentList struct {
	Items []store.Assignment `json:"items"`
	Total int                `json:"total"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	missionID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req assignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.RoleLabel = strings.TrimSpace(req.RoleLabel)
	req.Status = cmp.Or(req.Status, store.AssignmentInvited)
	if err := rules.ValidateAssignmentStatus(req.Status); err != nil {
		s.writeError(w, r, invalid("status must be invited, confirmed, declined or tentative"))
		return
	}

	var created store.Assignment
	err = s.store.Update(r.Context(), func(doc *store.Document) error {
		count := rules.CountAssignments(doc, missionID, req.RoleLabel)
		if err := rules.ValidateAssignment(doc, missionID, req.RoleLabel, count); err != nil {
			return err
		}
		if err := rules.ValidateAssignee(doc, req.UserID); err != nil {
			return err
		}
		created = store.Assignment{
			ID:        rules.NextID(doc.Assignments),
			MissionID: missionID,
			UserID:    req.UserID,
			RoleLabel: req.RoleLabel,
			Status:    req.Status,
		}
		doc.Assignments = append(doc.Assignments, created)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("assignment created",
		"assignment_id", created.ID, "mission_id", missionID, "user_id", created.UserID, "role_label", created.RoleLabel)
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	missionID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.store.Load(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, ok := doc.Mission(missionID); !ok {
		s.writeError(w, r, rules.ErrMissionNotFound)
		return
	}
	items := doc.MissionAssignments(missionID)
	writeJSON(w, http.StatusOK, AssignmentList{Items: items, Total: len(items)})
}

func (s *Server) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	missionID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	aid, err := pathID(r, "aid")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	err = s.store.Update(r.Context(), func(doc *store.Document) error {
		if _, ok := doc.Mission(missionID); !ok {
			return rules.ErrMissionNotFound
		}
		if !doc.RemoveAssignment(missionID, aid) {
			return errAssignmentNotFound
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
