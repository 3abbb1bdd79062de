// ABOUTME: The roster document: four ordered collections persisted as one JSON value
// ABOUTME: Includes deep copy, lookups, and in-place removal helpers used inside Update

package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Document is the whole persisted state. Collection order is insertion order.
type Document struct {
	Users       []User       `json:"users"`
	Tokens      []Token      `json:"tokens"`
	Missions    []Mission    `json:"missions"`
	Assignments []Assignment `json:"assignments"`
}

// NewDocument returns a document with four empty collections.
func NewDocument() *Document {
	return &Document{
		Users:       []User{},
		Tokens:      []Token{},
		Missions:    []Mission{},
		Assignments: []Assignment{},
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{
		Users:       make([]User, len(d.Users)),
		Tokens:      make([]Token, len(d.Tokens)),
		Missions:    make([]Mission, len(d.Missions)),
		Assignments: make([]Assignment, len(d.Assignments)),
	}
	for i, u := range d.Users {
		if u.Prefs != nil {
			p := *u.Prefs
			u.Prefs = &p
		}
		out.Users[i] = u
	}
	copy(out.Tokens, d.Tokens)
	for i, m := range d.Missions {
		out.Missions[i] = cloneMission(m)
	}
	copy(out.Assignments, d.Assignments)
	return out
}

func cloneMission(m Mission) Mission {
	positions := make([]Position, len(m.Positions))
	for i, p := range m.Positions {
		if p.Skills != nil {
			p.Skills = maps.Clone(p.Skills)
		}
		positions[i] = p
	}
	m.Positions = positions
	return m
}

// normalize replaces missing collections with empty ones.
func (d *Document) normalize() {
	if d.Users == nil {
		d.Users = []User{}
	}
	if d.Tokens == nil {
		d.Tokens = []Token{}
	}
	if d.Missions == nil {
		d.Missions = []Mission{}
	}
	if d.Assignments == nil {
		d.Assignments = []Assignment{}
	}
}

// User returns the non-deleted user with the given id.
func (d *Document) User(id int64) (*User, bool) {
	for i := range d.Users {
		if d.Users[i].ID == id && !d.Users[i].Lifecycle.IsDeleted() {
			return &d.Users[i], true
		}
	}
	return nil, false
}

// UserByUsername returns the non-deleted user with the given username.
func (d *Document) UserByUsername(username string) (*User, bool) {
	for i := range d.Users {
		if d.Users[i].Username == username && !d.Users[i].Lifecycle.IsDeleted() {
			return &d.Users[i], true
		}
	}
	return nil, false
}

// Token returns the record for an opaque token string.
func (d *Document) Token(token string) (*Token, bool) {
	for i := range d.Tokens {
		if d.Tokens[i].Token == token {
			return &d.Tokens[i], true
		}
	}
	return nil, false
}

// Mission returns the mission with the given id.
func (d *Document) Mission(id int64) (*Mission, bool) {
	for i := range d.Missions {
		if d.Missions[i].ID == id {
			return &d.Missions[i], true
		}
	}
	return nil, false
}

// MissionAssignments returns the assignments of a mission in insertion order.
func (d *Document) MissionAssignments(missionID int64) []Assignment {
	out := []Assignment{}
	for _, a := range d.Assignments {
		if a.MissionID == missionID {
			out = append(out, a)
		}
	}
	return out
}

// RemoveMission hard-deletes a mission together with its assignments.
// It returns false when no such mission exists.
func (d *Document) RemoveMission(id int64) bool {
	idx := -1
	for i := range d.Missions {
		if d.Missions[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	d.Missions = append(d.Missions[:idx], d.Missions[idx+1:]...)

	kept := d.Assignments[:0]
	for _, a := range d.Assignments {
		if a.MissionID != id {
			kept = append(kept, a)
		}
	}
	d.Assignments = kept
	return true
}

// RemoveAssignment hard-deletes assignment aid of mission missionID.
func (d *Document) RemoveAssignment(missionID, aid int64) bool {
	for i := range d.Assignments {
		if d.Assignments[i].ID == aid && d.Assignments[i].MissionID == missionID {
			d.Assignments = append(d.Assignments[:i], d.Assignments[i+1:]...)
			return true
		}
	}
	return false
}

// Encode serializes the document in its persisted form.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return data, nil
}

// DecodeDocument parses persisted bytes. Anything that is not a JSON object
// with the expected record shapes is reported as ErrStorageCorrupt.
func DecodeDocument(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: document is not a JSON object", ErrStorageCorrupt)
	}

	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}
	doc.normalize()
	return &doc, nil
}
