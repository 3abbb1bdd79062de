// ABOUTME: Tests for mission CRUD, list filters, pagination, and window validation
// ABOUTME: Covers naive timestamps, partial updates, and cascading deletes

package api

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/roster/internal/store"
)

func missionBody(title, start, end string) map[string]any {
	return map[string]any{
		"title":    title,
		"start":    start,
		"end":      end,
		"location": "Main hall",
		"positions": []map[string]any{
			{"label": "Son", "count": 1, "skills": map[string]string{"console": "yamaha"}},
			{"label": "Lumière", "count": 2},
		},
	}
}

func (e *testEnv) createMission(token string, body map[string]any) store.Mission {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/missions", token, body)
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	var m store.Mission
	decodeBody(e.t, rec, &m)
	return m
}

func TestMissionCRUD(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken("planner")

	m := env.createMission(token, missionBody("Concert", "2025-05-01T18:00:00", "2025-05-01T23:00:00"))
	assert.Equal(t, int64(1), m.ID)
	assert.Equal(t, store.MissionDraft, m.Status, "status defaults to draft")
	assert.Equal(t, time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC), m.Start, "naive timestamps are UTC")
	require.Len(t, m.Positions, 2)
	assert.Equal(t, map[string]string{}, m.Positions[1].Skills)

	rec := env.do(http.MethodGet, "/missions/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got store.Mission
	decodeBody(t, rec, &got)
	assert.Equal(t, m, got)

	rec = env.do(http.MethodPut, "/missions/1", token, map[string]any{"status": "published", "title": "Big concert"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &got)
	assert.Equal(t, store.MissionPublished, got.Status)
	assert.Equal(t, "Big concert", got.Title)
	assert.Equal(t, m.Start, got.Start, "absent fields are unchanged")
	assert.Equal(t, m.Positions, got.Positions)

	rec = env.do(http.MethodDelete, "/missions/1", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodGet, "/missions/1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "mission not found", errorMessage(t, rec))

	rec = env.do(http.MethodDelete, "/missions/1", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMissionWrites_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/missions", "", missionBody("x", "2025-05-01T18:00:00", "2025-05-01T19:00:00"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(http.MethodPut, "/missions/1", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(http.MethodDelete, "/missions/1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateMission_Validation(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken("planner")

	equal := missionBody("Equal", "2025-05-01T18:00:00", "2025-05-01T18:00:00")
	before := missionBody("Backwards", "2025-05-01T18:00:00", "2025-05-01T17:00:00")
	badStatus := missionBody("Status", "2025-05-01T18:00:00", "2025-05-01T19:00:00")
	badStatus["status"] = "archived"
	badPosition := missionBody("Position", "2025-05-01T18:00:00", "2025-05-01T19:00:00")
	badPosition["positions"] = []map[string]any{{"label": "Son", "count": 0}}
	noTitle := missionBody("  ", "2025-05-01T18:00:00", "2025-05-01T19:00:00")
	badTime := missionBody("Time", "tomorrow", "2025-05-01T19:00:00")
	noEnd := missionBody("NoEnd", "2025-05-01T18:00:00", "")
	delete(noEnd, "end")

	tests := []struct {
		name      string
		body      map[string]any
		wantError string
	}{
		{"end equals start", equal, "end must be after start"},
		{"end before start", before, "end must be after start"},
		{"unknown status", badStatus, "status must be draft or published"},
		{"zero count position", badPosition, "invalid position"},
		{"blank title", noTitle, "title is required"},
		{"unparseable time", badTime, "invalid datetime format"},
		{"missing end", noEnd, "start and end are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/missions", token, tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Equal(t, tt.wantError, errorMessage(t, rec))
		})
	}

	assert.Empty(t, env.doc().Missions, "rejected missions are never stored")
}

func TestUpdateMission_RevalidatesMergedWindow(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken("planner")
	env.createMission(token, missionBody("Concert", "2025-05-01T18:00:00", "2025-05-01T23:00:00"))

	rec := env.do(http.MethodPut, "/missions/1", token, map[string]any{"end": "2025-05-01T17:00:00"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "end must be after start", errorMessage(t, rec))

	rec = env.do(http.MethodPut, "/missions/1", token, map[string]any{"start": "2025-05-01T22:00:00+02:00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var m store.Mission
	decodeBody(t, rec, &m)
	assert.Equal(t, time.Date(2025, 5, 1, 20, 0, 0, 0, time.UTC), m.Start)

	rec = env.do(http.MethodPut, "/missions/42", token, map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	stored, _ := env.doc().Mission(1)
	assert.Equal(t, time.Date(2025, 5, 1, 23, 0, 0, 0, time.UTC), stored.End)
}

func TestUpdateMission_PositionsKeepAssignmentsValid(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken("planner")
	env.register("tech", "pw")
	env.createMission(token, missionBody("Concert", "2025-05-01T18:00:00", "2025-05-01T23:00:00"))
	for _, uid := range []int{1, 2} {
		rec := env.do(http.MethodPost, "/missions/1/assign", token, map[string]any{"role_label": "Lumière", "user_id": uid})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := env.do(http.MethodPut, "/missions/1", token, map[string]any{
		"positions": []map[string]any{{"label": "Lumière", "count": 1}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "capacity exceeded")

	rec = env.do(http.MethodPut, "/missions/1", token, map[string]any{
		"positions": []map[string]any{{"label": "Other", "count": 3}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "invalid position")

	stored, _ := env.doc().Mission(1)
	lumiere, ok := stored.Position("Lumière")
	require.True(t, ok, "rejected updates leave positions untouched")
	assert.Equal(t, 2, lumiere.Count)

	// Dropping the unused Son slot and keeping Lumière at capacity is fine.
	rec = env.do(http.MethodPut, "/missions/1", token, map[string]any{
		"positions": []map[string]any{{"label": "Lumière", "count": 2}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, _ = env.doc().Mission(1)
	assert.Len(t, stored.Positions, 1)
	assert.Len(t, env.doc().Assignments, 2)
}

func TestDeleteMission_CascadesAssignments(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken("planner")
	env.createMission(token, missionBody("A", "2025-05-01T18:00:00", "2025-05-01T23:00:00"))
	env.createMission(token, missionBody("B", "2025-05-02T18:00:00", "2025-05-02T23:00:00"))

	for _, mid := range []int{1, 2} {
		rec := env.do(http.MethodPost, fmt.Sprintf("/missions/%d/assign", mid), token, map[string]any{"role_label": "Son", "user_id": 1})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := env.do(http.MethodDelete, "/missions/1", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	doc := env.doc()
	require.Len(t, doc.Assignments, 1)
	assert.Equal(t, int64(2), doc.Assignments[0].MissionID)
}

func TestListMissions_FiltersAndPagination(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken("planner")

	// Created out of start order on purpose.
	env.createMission(token, missionBody("Festival jazz", "2025-06-10T10:00:00", "2025-06-10T20:00:00"))
	env.createMission(token, missionBody("Théâtre", "2025-06-01T10:00:00", "2025-06-01T20:00:00"))
	pub := missionBody("Jazz club", "2025-06-05T10:00:00", "2025-06-05T20:00:00")
	pub["status"] = "published"
	pub["location"] = "Cave"
	env.createMission(token, pub)

	list := func(query string) pageResponse[store.Mission] {
		t.Helper()
		rec := env.do(http.MethodGet, "/missions"+query, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp pageResponse[store.Mission]
		decodeBody(t, rec, &resp)
		return resp
	}
	titles := func(resp pageResponse[store.Mission]) []string {
		out := []string{}
		for _, m := range resp.Items {
			out = append(out, m.Title)
		}
		return out
	}

	all := list("")
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, 1, all.Page)
	assert.Equal(t, 20, all.PerPage)
	assert.Equal(t, []string{"Théâtre", "Jazz club", "Festival jazz"}, titles(all), "sorted by start")

	assert.Equal(t, []string{"Jazz club", "Festival jazz"}, titles(list("?q=JAZZ")))
	assert.Equal(t, []string{"Jazz club"}, titles(list("?q=cave")), "q also matches location")
	assert.Equal(t, []string{"Jazz club"}, titles(list("?status=published")))
	assert.Equal(t, []string{"Jazz club", "Festival jazz"}, titles(list("?date_from=2025-06-05T10:00:00")))
	assert.Equal(t, []string{"Théâtre", "Jazz club"}, titles(list("?date_to=2025-06-05T20:00:00")))

	page2 := list("?page=2&per_page=2")
	assert.Equal(t, 3, page2.Total)
	assert.Equal(t, []string{"Festival jazz"}, titles(page2))
	assert.Empty(t, list("?page=5").Items)

	for _, query := range []string{"?status=archived", "?page=0", "?per_page=101", "?per_page=x", "?date_from=soon"} {
		rec := env.do(http.MethodGet, "/missions"+query, "", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, query)
	}
}

func TestGetMission_BadID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/missions/abc", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid id", errorMessage(t, rec))
}
