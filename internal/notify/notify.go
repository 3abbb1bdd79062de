// ABOUTME: Notification stub routing messages to a user's email and telegram preferences
// ABOUTME: Dry-run mode only logs; otherwise deliveries are rendered to a writer

package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/roster/internal/store"
)

// ErrThrottled is returned when a user asks for another test notification too soon.
var ErrThrottled = errors.New("notification test throttled")

// Channel is a delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
)

// Message is a notification written in Markdown.
type Message struct {
	Subject  string
	Markdown string
}

// Delivery is one rendered message bound for one channel.
type Delivery struct {
	Channel Channel
	Target  string
	Subject string
	Body    string
}

// Config controls notifier behavior.
type Config struct {
	DryRun       bool
	TestCooldown time.Duration
	Output       io.Writer // receives deliveries when not in dry-run mode
	Now          func() time.Time
}

// Notifier renders and dispatches notifications.
type Notifier struct {
	dryRun   bool
	md       goldmark.Markdown
	cooldown *Cooldown
	logger   *slog.Logger

	mu  sync.Mutex
	out io.Writer
}

// New returns a Notifier. Call Close to stop its background sweeper.
func New(cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	out := cfg.Output
	if out == nil {
		out = io.Discard
	}
	return &Notifier{
		dryRun:   cfg.DryRun,
		md:       goldmark.New(),
		cooldown: NewCooldown(cfg.TestCooldown, 10000, cfg.Now),
		logger:   logger.With("component", "notify"),
		out:      out,
	}
}

// DryRun reports whether deliveries are suppressed.
func (n *Notifier) DryRun() bool {
	return n.dryRun
}

// Channels lists the channels enabled by prefs. Email needs an address;
// telegram needs the flag and a chat id.
func Channels(prefs *store.Prefs) []Channel {
	channels := []Channel{}
	if prefs == nil {
		return channels
	}
	if prefs.Email != "" {
		channels = append(channels, ChannelEmail)
	}
	if prefs.Telegram && prefs.TelegramChatID != "" {
		channels = append(channels, ChannelTelegram)
	}
	return channels
}

// Send renders msg for every channel the user enabled and dispatches it.
func (n *Notifier) Send(ctx context.Context, user store.User, msg Message) ([]Delivery, error) {
	deliveries := []Delivery{}
	for _, ch := range Channels(user.Prefs) {
		d, err := n.render(ch, user.Prefs, msg)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	for _, d := range deliveries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if n.dryRun {
			n.logger.Info("notification skipped (dry run)",
				"user_id", user.ID, "channel", d.Channel, "target", d.Target, "subject", d.Subject)
			continue
		}
		if err := n.write(d); err != nil {
			return nil, fmt.Errorf("delivering %s notification: %w", d.Channel, err)
		}
		n.logger.Info("notification sent", "user_id", user.ID, "channel", d.Channel)
	}
	return deliveries, nil
}

func (n *Notifier) render(ch Channel, prefs *store.Prefs, msg Message) (Delivery, error) {
	d := Delivery{Channel: ch, Subject: msg.Subject}
	switch ch {
	case ChannelEmail:
		var buf bytes.Buffer
		if err := n.md.Convert([]byte(msg.Markdown), &buf); err != nil {
			return Delivery{}, fmt.Errorf("rendering email body: %w", err)
		}
		d.Target = prefs.Email
		d.Body = buf.String()
	case ChannelTelegram:
		d.Target = prefs.TelegramChatID
		d.Body = msg.Markdown
	}
	return d, nil
}

func (n *Notifier) write(d Delivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.out, "[%s] to=%s subject=%q\n%s\n", d.Channel, d.Target, d.Subject, d.Body)
	return err
}

// TestMessage is sent by notification self-tests.
func TestMessage(username string) Message {
	return Message{
		Subject:  "Roster test notification",
		Markdown: fmt.Sprintf("Hello **%s**,\n\nthis is a test notification from roster.", username),
	}
}

// SendTest sends a test message to one user, at most once per cooldown window.
func (n *Notifier) SendTest(ctx context.Context, user store.User) ([]Delivery, error) {
	if !n.cooldown.Allow("user:" + strconv.FormatInt(user.ID, 10)) {
		return nil, ErrThrottled
	}
	return n.Send(ctx, user, TestMessage(user.Username))
}

// UsersWithPrefs returns the non-deleted users that have saved preferences.
func UsersWithPrefs(doc *store.Document) []store.User {
	out := []store.User{}
	for _, u := range doc.Users {
		if u.Prefs != nil && !u.Lifecycle.IsDeleted() {
			out = append(out, u)
		}
	}
	return out
}

// TestAll sends a test message to every user with preferences and returns
// how many were tested. Admin diagnostics bypass the per-user cooldown.
func (n *Notifier) TestAll(ctx context.Context, users []store.User) (int, error) {
	tested := 0
	for _, u := range users {
		if _, err := n.Send(ctx, u, TestMessage(u.Username)); err != nil {
			return tested, err
		}
		tested++
	}
	return tested, nil
}

// Close stops background work.
func (n *Notifier) Close() {
	n.cooldown.Close()
}
