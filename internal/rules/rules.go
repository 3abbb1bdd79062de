// ABOUTME: Pure identity and capacity rules over a roster document
// ABOUTME: ID allocation, assignment capacity, mission windows, and enum validation

package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2389/roster/internal/store"
)

var (
	// ErrMissionNotFound is returned when an assignment targets a missing mission.
	ErrMissionNotFound = errors.New("mission not found")
	// ErrInvalidRole is returned when the mission has no position with the requested label.
	ErrInvalidRole = errors.New("invalid role_label")
	// ErrCapacityExceeded is returned when every slot of a position is taken.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrInvalidWindow is returned when a mission does not end strictly after it starts.
	ErrInvalidWindow = errors.New("end must be after start")
	// ErrUsernameTaken is returned when a non-deleted user already has the username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidStatus is returned for an unknown role or status value.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidPosition is returned for a position without a label or with count < 1.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrUserNotFound is returned when an assignee is missing or soft-deleted.
	ErrUserNotFound = errors.New("user not found")
)

// Identified is implemented by every record kept in an id-keyed collection.
type Identified interface {
	EntityID() int64
}

// NextID returns one more than the largest id in items, or 1 when items is
// empty. Deleted records still count, so ids are never reused.
func NextID[T Identified](items []T) int64 {
	var highest int64
	for _, item := range items {
		if id := item.EntityID(); id > highest {
			highest = id
		}
	}
	return highest + 1
}

// CountAssignments returns how many assignments fill roleLabel in a mission.
func CountAssignments(doc *store.Document, missionID int64, roleLabel string) int {
	n := 0
	for _, a := range doc.Assignments {
		if a.MissionID == missionID && a.RoleLabel == roleLabel {
			n++
		}
	}
	return n
}

// ValidateAssignment checks whether one more assignment may be created for
// roleLabel in missionID given currentCount existing ones. Checks run in a
// fixed order: mission, then role, then capacity.
func ValidateAssignment(doc *store.Document, missionID int64, roleLabel string, currentCount int) error {
	mission, ok := doc.Mission(missionID)
	if !ok {
		return ErrMissionNotFound
	}
	position, ok := mission.Position(roleLabel)
	if !ok {
		return ErrInvalidRole
	}
	if currentCount >= position.Count {
		return ErrCapacityExceeded
	}
	return nil
}

// ValidateAssignee requires userID to reference a non-deleted user.
func ValidateAssignee(doc *store.Document, userID int64) error {
	if _, ok := doc.User(userID); !ok {
		return ErrUserNotFound
	}
	return nil
}

// ValidateMissionWindow requires end to be strictly after start.
func ValidateMissionWindow(start, end time.Time) error {
	if !end.After(start) {
		return ErrInvalidWindow
	}
	return nil
}

// ValidatePositions requires every position to have a label and a count of at least 1.
func ValidatePositions(positions []store.Position) error {
	for _, p := range positions {
		if strings.TrimSpace(p.Label) == "" || p.Count < 1 {
			return ErrInvalidPosition
		}
	}
	return nil
}

// ValidatePositionsAgainstAssignments checks replacement positions for a
// mission against the assignments it already holds. Every label in use must
// survive and keep a count no lower than its current assignments.
func ValidatePositionsAgainstAssignments(doc *store.Document, missionID int64, positions []store.Position) error {
	next := store.Mission{Positions: positions}
	seen := make(map[string]bool)
	for _, a := range doc.Assignments {
		if a.MissionID != missionID || seen[a.RoleLabel] {
			continue
		}
		seen[a.RoleLabel] = true

		used := CountAssignments(doc, missionID, a.RoleLabel)
		p, ok := next.Position(a.RoleLabel)
		if !ok {
			return fmt.Errorf("%w: %q still has %d assignments", ErrInvalidPosition, a.RoleLabel, used)
		}
		if p.Count < used {
			return fmt.Errorf("%w: %q has %d assignments, count %d", ErrCapacityExceeded, a.RoleLabel, used, p.Count)
		}
	}
	return nil
}

// ValidateUsername rejects a username held by any non-deleted user.
func ValidateUsername(doc *store.Document, username string) error {
	if _, ok := doc.UserByUsername(username); ok {
		return ErrUsernameTaken
	}
	return nil
}

// ValidateUserRole accepts admin and intermittent.
func ValidateUserRole(role store.Role) error {
	switch role {
	case store.RoleAdmin, store.RoleIntermittent:
		return nil
	}
	return ErrInvalidStatus
}

// ValidateMissionStatus accepts draft and published.
func ValidateMissionStatus(status store.MissionStatus) error {
	switch status {
	case store.MissionDraft, store.MissionPublished:
		return nil
	}
	return ErrInvalidStatus
}

// ValidateAssignmentStatus accepts invited, confirmed, declined and tentative.
func ValidateAssignmentStatus(status store.AssignmentStatus) error {
	switch status {
	case store.AssignmentInvited, store.AssignmentConfirmed, store.AssignmentDeclined, store.AssignmentTentative:
		return nil
	}
	return ErrInvalidStatus
}
