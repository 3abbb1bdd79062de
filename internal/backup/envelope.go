// ABOUTME: Versioned backup envelope with export, strict decoding, and wipe/merge import
// ABOUTME: Import is pure: it builds a new document and never touches the one passed in

package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2389/roster/internal/rules"
	"github.com/2389/roster/internal/store"
)

// Version is the only envelope version this package reads or writes.
const Version = 1

// ErrInvalidEnvelope is returned for any envelope that cannot be imported.
var ErrInvalidEnvelope = errors.New("invalid backup")

// Envelope wraps a full copy of the document with version metadata.
type Envelope struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Payload   Payload   `json:"payload"`
}

// Payload holds the four collections of an envelope.
type Payload struct {
	Users       []store.User       `json:"users"`
	Tokens      []store.Token      `json:"tokens"`
	Missions    []store.Mission    `json:"missions"`
	Assignments []store.Assignment `json:"assignments"`
}

func (p Payload) document() *store.Document {
	doc := &store.Document{
		Users:       p.Users,
		Tokens:      p.Tokens,
		Missions:    p.Missions,
		Assignments: p.Assignments,
	}
	return doc.Clone()
}

// Mode selects how Import combines an envelope with the current document.
type Mode int

const (
	// Wipe replaces all four collections with the payload.
	Wipe Mode = iota
	// Merge upserts users, missions and assignments by id and keeps tokens.
	Merge
)

func (m Mode) String() string {
	if m == Merge {
		return "merge"
	}
	return "wipe"
}

// Export captures doc as an envelope stamped with now.
func Export(doc *store.Document, now time.Time) Envelope {
	c := doc.Clone()
	return Envelope{
		Version:   Version,
		CreatedAt: now.UTC(),
		Payload: Payload{
			Users:       c.Users,
			Tokens:      c.Tokens,
			Missions:    c.Missions,
			Assignments: c.Assignments,
		},
	}
}

// Encode serializes an envelope for download or archiving.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return data, nil
}

// Filename returns the download name for a backup taken at t.
func Filename(t time.Time) string {
	return t.UTC().Format("backup_20060102_150405") + ".json"
}

var payloadKeys = []string{"users", "tokens", "missions", "assignments"}

// Decode parses and validates an uploaded envelope. The version must be 1 and
// the payload must carry all four collections as arrays.
func Decode(data []byte) (Envelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	var version float64
	if err := json.Unmarshal(raw["version"], &version); err != nil || version != Version {
		return Envelope{}, fmt.Errorf("%w: unsupported version", ErrInvalidEnvelope)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw["payload"], &payload); err != nil || payload == nil {
		return Envelope{}, fmt.Errorf("%w: payload must be an object", ErrInvalidEnvelope)
	}
	for _, key := range payloadKeys {
		value, ok := payload[key]
		if !ok {
			return Envelope{}, fmt.Errorf("%w: payload.%s missing", ErrInvalidEnvelope, key)
		}
		if v := bytes.TrimSpace(value); len(v) == 0 || v[0] != '[' {
			return Envelope{}, fmt.Errorf("%w: payload.%s must be an array", ErrInvalidEnvelope, key)
		}
	}

	env := Envelope{Version: Version}
	// created_at is informational only.
	var createdAt string
	if json.Unmarshal(raw["created_at"], &createdAt) == nil {
		env.CreatedAt, _ = store.ParseTime(createdAt)
	}

	if err := decodeCollection(payload, "users", &env.Payload.Users); err != nil {
		return Envelope{}, err
	}
	if err := decodeCollection(payload, "tokens", &env.Payload.Tokens); err != nil {
		return Envelope{}, err
	}
	if err := decodeCollection(payload, "missions", &env.Payload.Missions); err != nil {
		return Envelope{}, err
	}
	if err := decodeCollection(payload, "assignments", &env.Payload.Assignments); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func decodeCollection[T any](payload map[string]json.RawMessage, key string, dst *[]T) error {
	if err := json.Unmarshal(payload[key], dst); err != nil {
		return fmt.Errorf("%w: payload.%s: %v", ErrInvalidEnvelope, key, err)
	}
	if *dst == nil {
		*dst = []T{}
	}
	return nil
}

type importOptions struct {
	resetTokensOnMerge bool
}

// Option adjusts Import.
type Option func(*importOptions)

// ResetTokensOnMerge empties the token collection on a merge import, forcing
// every user to log in again.
func ResetTokensOnMerge() Option {
	return func(o *importOptions) {
		o.resetTokensOnMerge = true
	}
}

// Import applies env to current and returns the resulting document. current
// is never modified, so a failed import leaves nothing half-applied.
func Import(current *store.Document, env Envelope, mode Mode, opts ...Option) (*store.Document, error) {
	var o importOptions
	for _, opt := range opts {
		opt(&o)
	}

	if env.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidEnvelope, env.Version)
	}
	if err := checkIDs(env.Payload); err != nil {
		return nil, err
	}

	incoming := env.Payload.document()

	switch mode {
	case Wipe:
		return incoming, nil
	case Merge:
		out := current.Clone()
		out.Users = upsert(out.Users, incoming.Users)
		out.Missions = upsert(out.Missions, incoming.Missions)
		out.Assignments = upsert(out.Assignments, incoming.Assignments)
		if o.resetTokensOnMerge {
			out.Tokens = []store.Token{}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown import mode %d", mode)
	}
}

// upsert replaces records with a matching id in place and appends the rest.
func upsert[T rules.Identified](existing, incoming []T) []T {
	index := make(map[int64]int, len(existing))
	for i, r := range existing {
		index[r.EntityID()] = i
	}
	for _, r := range incoming {
		if i, ok := index[r.EntityID()]; ok {
			existing[i] = r
			continue
		}
		index[r.EntityID()] = len(existing)
		existing = append(existing, r)
	}
	return existing
}

func checkIDs(p Payload) error {
	if err := uniquePositiveIDs("users", p.Users); err != nil {
		return err
	}
	if err := uniquePositiveIDs("missions", p.Missions); err != nil {
		return err
	}
	return uniquePositiveIDs("assignments", p.Assignments)
}

func uniquePositiveIDs[T rules.Identified](key string, items []T) error {
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		id := item.EntityID()
		if id <= 0 {
			return fmt.Errorf("%w: payload.%s has non-positive id %d", ErrInvalidEnvelope, key, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: payload.%s has duplicate id %d", ErrInvalidEnvelope, key, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
