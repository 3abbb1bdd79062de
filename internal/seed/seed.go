// ABOUTME: Populates a running roster server with demo users, missions, and assignments
// ABOUTME: Works only through the HTTP API, authenticated as an admin

package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/roster/internal/backup"
	"github.com/2389/roster/internal/client"
	"github.com/2389/roster/internal/store"
)

// ErrNotAdmin is returned when the seeding client is not authenticated as an admin.
var ErrNotAdmin = errors.New("seeding requires an admin account")

// Options controls a seeding run.
type Options struct {
	Users    int
	Missions int
	// Days spreads mission start dates over this many consecutive days.
	Days int
	// Reset empties the document first, keeping only the seeding admin.
	Reset bool
	// ForceInsert soft-deletes existing users with a seeded username
	// before registering them again.
	ForceInsert bool
	Fixture     Fixture
	Now         func() time.Time
	Logger      *slog.Logger
}

// Result counts what a run created.
type Result struct {
	Users       []int64
	Missions    []int64
	Assignments int
	// Skipped counts missions and assignments the server rejected.
	Skipped int
}

// Run seeds through c, which must carry an admin token.
func Run(ctx context.Context, c *client.Client, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "seed")
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	fixture := opts.Fixture
	if fixture.UserPrefix == "" {
		fixture = DefaultFixture()
	}

	me, err := c.Me(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("checking identity: %w", err)
	}
	if me.Role != store.RoleAdmin {
		return Result{}, ErrNotAdmin
	}

	if opts.Reset {
		if err := resetKeeping(ctx, c, me.ID, now()); err != nil {
			return Result{}, fmt.Errorf("resetting: %w", err)
		}
		logger.Info("document reset", "kept_user", me.Username)
	}

	var res Result
	res.Users, err = createUsers(ctx, c, fixture, opts.Users, opts.ForceInsert)
	if err != nil {
		return res, err
	}
	logger.Info("users seeded", "count", len(res.Users))

	positions := fixture.positions(len(res.Users))
	days := max(1, opts.Days)
	start0 := now().UTC().Truncate(time.Minute)
	for i := range opts.Missions {
		start := start0.AddDate(0, 0, i%days)
		m, err := c.CreateMission(ctx, client.MissionInput{
			Title:     fixture.title(i),
			Start:     start,
			End:       start.Add(time.Duration(fixture.Hours) * time.Hour),
			Location:  fixture.location(i),
			Status:    store.MissionPublished,
			Positions: positions,
		})
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			logger.Warn("mission skipped", "index", i, "error", err)
			res.Skipped++
			continue
		}
		res.Missions = append(res.Missions, m.ID)
	}
	logger.Info("missions seeded", "count", len(res.Missions))

	label := positions[0].Label
	for _, mid := range res.Missions {
		for _, uid := range res.Users[:min(2, len(res.Users))] {
			_, err := c.Assign(ctx, mid, client.AssignInput{
				RoleLabel: label,
				UserID:    uid,
				Status:    store.AssignmentInvited,
			})
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				logger.Warn("assignment skipped", "mission_id", mid, "user_id", uid, "error", err)
				res.Skipped++
				continue
			}
			res.Assignments++
		}
	}
	logger.Info("assignments seeded", "count", res.Assignments)

	return res, nil
}

// resetKeeping wipes the document down to the admin with id keep and its
// tokens, so the current session stays valid.
func resetKeeping(ctx context.Context, c *client.Client, keep int64, now time.Time) error {
	data, _, err := c.Backup(ctx)
	if err != nil {
		return err
	}
	env, err := backup.Decode(data)
	if err != nil {
		return err
	}

	next := backup.Envelope{
		Version:   backup.Version,
		CreatedAt: now.UTC(),
		Payload: backup.Payload{
			Users:       []store.User{},
			Tokens:      []store.Token{},
			Missions:    []store.Mission{},
			Assignments: []store.Assignment{},
		},
	}
	for _, u := range env.Payload.Users {
		if u.ID == keep {
			next.Payload.Users = append(next.Payload.Users, u)
		}
	}
	for _, t := range env.Payload.Tokens {
		if t.UserID == keep {
			next.Payload.Tokens = append(next.Payload.Tokens, t)
		}
	}

	body, err := next.Encode()
	if err != nil {
		return err
	}
	return c.Restore(ctx, body, true)
}

func createUsers(ctx context.Context, c *client.Client, f Fixture, n int, force bool) ([]int64, error) {
	ids := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		username := fmt.Sprintf("%s%d", f.UserPrefix, i)

		if force {
			existing, err := findUser(ctx, c, username)
			if err != nil {
				return ids, err
			}
			if existing != nil {
				if err := c.DeleteUser(ctx, existing.ID); err != nil {
					return ids, fmt.Errorf("deleting %s: %w", username, err)
				}
			}
		}

		u, err := c.Register(ctx, username, f.Password)
		switch {
		case err == nil:
			ids = append(ids, u.ID)
		case client.IsStatus(err, http.StatusConflict):
			existing, err := findUser(ctx, c, username)
			if err != nil {
				return ids, err
			}
			if existing != nil {
				ids = append(ids, existing.ID)
			}
		default:
			return ids, fmt.Errorf("registering %s: %w", username, err)
		}
	}
	return ids, nil
}

// findUser returns the non-deleted user named exactly username, or nil.
func findUser(ctx context.Context, c *client.Client, username string) (*client.User, error) {
	for page := 1; ; page++ {
		p, err := c.ListUsers(ctx, username, page, 100)
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", username, err)
		}
		for _, u := range p.Items {
			if u.Username == username {
				return &u, nil
			}
		}
		if len(p.Items) == 0 || page*p.PerPage >= p.Total {
			return nil, nil
		}
	}
}
