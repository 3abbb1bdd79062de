// ABOUTME: Seed fixtures read from JSON-with-comments files
// ABOUTME: A fixture controls usernames, mission titles, locations, and positions

package seed

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/2389/roster/internal/rules"
	"github.com/2389/roster/internal/store"
)

// Fixture describes the shape of generated demo data.
type Fixture struct {
	UserPrefix string           `json:"user_prefix"`
	Password   string           `json:"password"`
	Titles     []string         `json:"titles"`
	Locations  []string         `json:"locations"`
	Positions  []store.Position `json:"positions"`
	// Hours is the length of every generated mission.
	Hours int `json:"hours"`
}

// DefaultFixture creates userN accounts with password "pw" and two-hour
// missions with a single "general" position sized to the seeded users.
func DefaultFixture() Fixture {
	return Fixture{
		UserPrefix: "user",
		Password:   "pw",
		Hours:      2,
	}
}

// ParseFixture strips comments and trailing commas from data and decodes it
// over the defaults.
func ParseFixture(data []byte) (Fixture, error) {
	f := DefaultFixture()
	if err := json.Unmarshal(jsonc.ToJSON(data), &f); err != nil {
		return Fixture{}, fmt.Errorf("parsing fixture: %w", err)
	}
	if err := f.validate(); err != nil {
		return Fixture{}, err
	}
	return f, nil
}

// ReadFixture reads and parses a JSONC fixture file.
func ReadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := ParseFixture(data)
	if err != nil {
		return Fixture{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func (f Fixture) validate() error {
	if f.UserPrefix == "" {
		return fmt.Errorf("fixture: user_prefix must not be empty")
	}
	if f.Password == "" {
		return fmt.Errorf("fixture: password must not be empty")
	}
	if f.Hours <= 0 {
		return fmt.Errorf("fixture: hours must be positive")
	}
	if err := rules.ValidatePositions(f.Positions); err != nil {
		return fmt.Errorf("fixture: %w", err)
	}
	return nil
}

// positions returns the fixture's positions, or a single "general" slot with
// room for at least two of the seeded users.
func (f Fixture) positions(users int) []store.Position {
	if len(f.Positions) > 0 {
		return f.Positions
	}
	return []store.Position{{Label: "general", Count: max(2, users), Skills: map[string]string{}}}
}

func (f Fixture) title(i int) string {
	if len(f.Titles) == 0 {
		return fmt.Sprintf("Mission %d", i+1)
	}
	return f.Titles[i%len(f.Titles)]
}

func (f Fixture) location(i int) string {
	if len(f.Locations) == 0 {
		return ""
	}
	return f.Locations[i%len(f.Locations)]
}
