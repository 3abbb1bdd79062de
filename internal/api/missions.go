// ABOUTME: Mission endpoints: filtered listing, create, partial update, and cascading delete
// ABOUTME: Writes run inside Store.Update so ids and windows are validated against the live document

package api

import (
	"cmp"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/2389/roster/internal/auth"
	"github.com/2389/roster/internal/rules"
	"github.com/2389/roster/internal/store"
)

// missionCreateRequest is the body of POST /missions.
type missionCreateRequest struct {
	Title     string              `json:"title"`
	Start     *Timestamp          `json:"start"`
	End       *Timestamp          `json:"end"`
	Location  string              `json:"location"`
	Status    store.MissionStatus `json:"status"`
	Positions []store.Position    `json:"positions"`
}

// missionUpdateRequest is the body of PUT /missions/{id}. Absent fields are
// left unchanged.
type missionUpdateRequest struct {
	Title     *string              `json:"title"`
	Start     *Timestamp           `json:"start"`
	End       *Timestamp           `json:"end"`
	Location  *string              `json:"location"`
	Status    *store.MissionStatus `json:"status"`
	Positions *[]store.Position    `json:"positions"`
}

// missionFilter holds the parsed query of GET /missions.
type missionFilter struct {
	q        string
	status   store.MissionStatus
	dateFrom time.Time
	dateTo   time.Time
}

func parseMissionFilter(r *http.Request) (missionFilter, error) {
	q := r.URL.Query()
	f := missionFilter{
		q:      strings.ToLower(strings.TrimSpace(q.Get("q"))),
		status: store.MissionStatus(q.Get("status")),
	}
	if f.status != "" {
		if err := rules.ValidateMissionStatus(f.status); err != nil {
			return missionFilter{}, invalid("status must be draft or published")
		}
	}
	if v := q.Get("date_from"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return missionFilter{}, invalid("invalid date_from")
		}
		f.dateFrom = t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return missionFilter{}, invalid("invalid date_to")
		}
		f.dateTo = t
	}
	return f, nil
}

func (f missionFilter) match(m store.Mission) bool {
	if f.q != "" && !strings.Contains(strings.ToLower(m.Title+" "+m.Location), f.q) {
		return false
	}
	if f.status != "" && m.Status != f.status {
		return false
	}
	if !f.dateFrom.IsZero() && m.Start.Before(f.dateFrom) {
		return false
	}
	if !f.dateTo.IsZero() && m.End.After(f.dateTo) {
		return false
	}
	return true
}

// normalizePositions gives every position a non-nil skills map.
func normalizePositions(positions []store.Position) []store.Position {
	out := make([]store.Position, len(positions))
	for i, p := range positions {
		p.Label = strings.TrimSpace(p.Label)
		if p.Skills == nil {
			p.Skills = map[string]string{}
		}
		out[i] = p
	}
	return out
}

// validateMission checks a complete mission before it is stored.
func validateMission(m store.Mission) error {
	if strings.TrimSpace(m.Title) == "" {
		return invalid("title is required")
	}
	if err := rules.ValidateMissionWindow(m.Start, m.End); err != nil {
		return err
	}
	if err := rules.ValidateMissionStatus(m.Status); err != nil {
		return invalid("status must be draft or published")
	}
	return rules.ValidatePositions(m.Positions)
}

func (s *Server) handleListMissions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMissionFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := parsePage(r.URL.Query(), 20)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	doc, err := s.store.Load(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	matched := []store.Mission{}
	for _, m := range doc.Missions {
		if filter.match(m) {
			matched = append(matched, m)
		}
	}
	slices.SortStableFunc(matched, func(a, b store.Mission) int {
		return a.Start.Compare(b.Start)
	})

	writeJSON(w, http.StatusOK, pageResponse[store.Mission]{
		Items:   paginate(matched, p),
		Page:    p.Page,
		PerPage: p.PerPage,
		Total:   len(matched),
	})
}

func (s *Server) handleCreateMission(w http.ResponseWriter, r *http.Request) {
	var req missionCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Start == nil || req.End == nil {
		s.writeError(w, r, invalid("start and end are required"))
		return
	}

	mission := store.Mission{
		Title:     strings.TrimSpace(req.Title),
		Start:     req.Start.Time,
		End:       req.End.Time,
		Location:  req.Location,
		Status:    cmp.Or(req.Status, store.MissionDraft),
		Positions: normalizePositions(req.Positions),
	}
	if err := validateMission(mission); err != nil {
		s.writeError(w, r, err)
		return
	}

	err := s.store.Update(r.Context(), func(doc *store.Document) error {
		mission.ID = rules.NextID(doc.Missions)
		doc.Missions = append(doc.Missions, mission)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("mission created",
		append(logAttrsForUser(auth.FromContext(r.Context())), "mission_id", mission.ID)...)
	writeJSON(w, http.StatusOK, mission)
}

func (s *Server) handleGetMission(w http.ResponseWriter, r *http.Request) {
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
	m, ok := doc.Mission(id)
	if !ok {
		s.writeError(w, r, rules.ErrMissionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdateMission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req missionUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var updated store.Mission
	err = s.store.Update(r.Context(), func(doc *store.Document) error {
		current, ok := doc.Mission(id)
		if !ok {
			return rules.ErrMissionNotFound
		}
		next := *current
		if req.Title != nil {
			next.Title = strings.TrimSpace(*req.Title)
		}
		if req.Start != nil {
			next.Start = req.Start.Time
		}
		if req.End != nil {
			next.End = req.End.Time
		}
		if req.Location != nil {
			next.Location = *req.Location
		}
		if req.Status != nil {
			next.Status = *req.Status
		}
		if req.Positions != nil {
			next.Positions = normalizePositions(*req.Positions)
		}
		if err := validateMission(next); err != nil {
			return err
		}
		if err := rules.ValidatePositionsAgainstAssignments(doc, id, next.Positions); err != nil {
			return err
		}
		*current = next
		updated = next
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteMission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.store.Update(r.Context(), func(doc *store.Document) error {
		if !doc.RemoveMission(id) {
			return rules.ErrMissionNotFound
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("mission deleted",
		append(logAttrsForUser(auth.FromContext(r.Context())), "mission_id", id)...)
	w.WriteHeader(http.StatusNoContent)
}
