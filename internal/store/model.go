// ABOUTME: Record types for the four collections held in the roster document
// ABOUTME: Users, tokens, missions with positions, and assignments with their enums

package store

import (
	"encoding/json"
	"time"
)

// Role is a user's access level.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleIntermittent Role = "intermittent"
)

// MissionStatus is the publication state of a mission.
type MissionStatus string

const (
	MissionDraft     MissionStatus = "draft"
	MissionPublished MissionStatus = "published"
)

// AssignmentStatus tracks a user's answer to an assignment.
type AssignmentStatus string

const (
	AssignmentInvited   AssignmentStatus = "invited"
	AssignmentConfirmed AssignmentStatus = "confirmed"
	AssignmentDeclined  AssignmentStatus = "declined"
	AssignmentTentative AssignmentStatus = "tentative"
)

// Lifecycle is a user's soft-delete state. The zero value is active.
type Lifecycle struct {
	deleted   bool
	deletedAt time.Time
}

// Active returns the lifecycle of a live user.
func Active() Lifecycle {
	return Lifecycle{}
}

// Deleted returns the lifecycle of a user soft-deleted at the given time.
func Deleted(at time.Time) Lifecycle {
	return Lifecycle{deleted: true, deletedAt: at.UTC()}
}

// IsDeleted reports whether the user has been soft-deleted.
func (l Lifecycle) IsDeleted() bool {
	return l.deleted
}

// DeletedAt returns the deletion time and true for deleted users.
func (l Lifecycle) DeletedAt() (time.Time, bool) {
	return l.deletedAt, l.IsDeleted()
}

// Prefs holds a user's notification preferences.
type Prefs struct {
	Email          string `json:"email,omitempty"`
	Telegram       bool   `json:"telegram"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
}

// User is an account able to authenticate and be assigned to missions.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	IsActive     bool
	Lifecycle    Lifecycle
	Prefs        *Prefs
}

// userJSON is the on-disk shape of a User. deleted_at is omitted for active users.
type userJSON struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"password_hash"`
	Role         Role       `json:"role"`
	IsActive     bool       `json:"is_active"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	Prefs        *Prefs     `json:"prefs,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (u User) MarshalJSON() ([]byte, error) {
	out := userJSON{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		IsActive:     u.IsActive,
		Prefs:        u.Prefs,
	}
	if at, ok := u.Lifecycle.DeletedAt(); ok {
		out.DeletedAt = &at
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *User) UnmarshalJSON(data []byte) error {
	var in struct {
		userJSON
		DeletedAt *looseTime `json:"deleted_at"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*u = User{
		ID:           in.ID,
		Username:     in.Username,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		IsActive:     in.IsActive,
		Lifecycle:    Active(),
		Prefs:        in.Prefs,
	}
	if in.DeletedAt != nil {
		u.Lifecycle = Deleted(time.Time(*in.DeletedAt))
	}
	return nil
}

// EntityID returns the user's id.
func (u User) EntityID() int64 { return u.ID }

// Token is an opaque bearer credential bound to a user.
type Token struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Token) UnmarshalJSON(data []byte) error {
	type plain Token
	var in struct {
		plain
		CreatedAt looseTime `json:"created_at"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = Token(in.plain)
	t.CreatedAt = time.Time(in.CreatedAt)
	return nil
}

// Expired reports whether the token is older than ttl at now.
// A non-positive ttl means tokens never expire.
func (t Token) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(t.CreatedAt) > ttl
}

// Position is a role slot within a mission with a fixed capacity.
type Position struct {
	Label  string            `json:"label"`
	Count  int               `json:"count"`
	Skills map[string]string `json:"skills"`
}

// Mission is a scheduled event with role positions to fill.
type Mission struct {
	ID        int64         `json:"id"`
	Title     string        `json:"title"`
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Location  string        `json:"location,omitempty"`
	Status    MissionStatus `json:"status"`
	Positions []Position    `json:"positions"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Mission) UnmarshalJSON(data []byte) error {
	type plain Mission
	var in struct {
		plain
		Start looseTime `json:"start"`
		End   looseTime `json:"end"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = Mission(in.plain)
	m.Start = time.Time(in.Start)
	m.End = time.Time(in.End)
	return nil
}

// EntityID returns the mission's id.
func (m Mission) EntityID() int64 { return m.ID }

// Position returns the position with the given label.
func (m Mission) Position(label string) (Position, bool) {
	for _, p := range m.Positions {
		if p.Label == label {
			return p, true
		}
	}
	return Position{}, false
}

// Assignment binds a user to a labelled position in a mission.
type Assignment struct {
	ID        int64            `json:"id"`
	MissionID int64            `json:"mission_id"`
	UserID    int64            `json:"user_id"`
	RoleLabel string           `json:"role_label"`
	Status    AssignmentStatus `json:"status"`
}

// EntityID returns the assignment's id.
func (a Assignment) EntityID() int64 { return a.ID }
