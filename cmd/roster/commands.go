// ABOUTME: CLI subcommands: init, bootstrap, health, seed, backup, and restore
// ABOUTME: Client commands talk to a running server; bootstrap opens the store directly

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/roster/internal/client"
	"github.com/2389/roster/internal/config"
	"github.com/2389/roster/internal/seed"
)

// remoteFlags locate a running server and authenticate against it as an admin.
type remoteFlags struct {
	url      string
	token    string
	username string
	password string
}

func addRemoteFlags(fs *pflag.FlagSet) *remoteFlags {
	r := &remoteFlags{}
	fs.StringVar(&r.url, "url", os.Getenv("ROSTER_URL"), "server URL (default: server.http_addr from config)")
	fs.StringVar(&r.token, "token", os.Getenv("ROSTER_TOKEN"), "admin bearer token")
	fs.StringVarP(&r.username, "username", "u", envOr("ROSTER_USERNAME", "admin"), "admin username when no token is given")
	fs.StringVarP(&r.password, "password", "p", os.Getenv("ROSTER_PASSWORD"), "admin password when no token is given")
	return r
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (r *remoteFlags) baseURL(configPath string) string {
	if r.url != "" {
		return r.url
	}
	if cfg, err := config.Load(configPath); err == nil {
		return cfg.Server.HTTPAddr
	}
	return config.Default().Server.HTTPAddr
}

func (r *remoteFlags) client(configPath string) *client.Client {
	return client.New(r.baseURL(configPath), client.WithToken(r.token))
}

// adminClient returns a client carrying a token, logging in when none was given.
func (r *remoteFlags) adminClient(ctx context.Context, configPath string) (*client.Client, error) {
	c := r.client(configPath)
	if r.token != "" {
		return c, nil
	}
	if r.password == "" {
		return nil, fmt.Errorf("--token or --password (ROSTER_TOKEN or ROSTER_PASSWORD) is required")
	}
	if _, err := c.Login(ctx, r.username, r.password); err != nil {
		return nil, fmt.Errorf("logging in as %s: %w", r.username, err)
	}
	return c, nil
}

// initAnswers are the values written by init and bootstrap.
type initAnswers struct {
	HTTPAddr  string
	Driver    string
	DataDir   string
	LogLevel  string
	LogFormat string
	DryRun    bool
}

func defaultInitAnswers() initAnswers {
	return initAnswers{
		HTTPAddr:  "localhost:8000",
		Driver:    "file",
		DataDir:   getDataPath(),
		LogLevel:  "info",
		LogFormat: "text",
		DryRun:    true,
	}
}

func renderConfig(a initAnswers, generatedBy string) string {
	var b strings.Builder
	b.WriteString("# roster configuration\n")
	fmt.Fprintf(&b, "# Generated by roster %s\n\n", generatedBy)

	b.WriteString("server:\n")
	fmt.Fprintf(&b, "  http_addr: %q\n", a.HTTPAddr)
	b.WriteString("  read_timeout: \"15s\"\n")
	b.WriteString("  write_timeout: \"30s\"\n")
	b.WriteString("  shutdown_timeout: \"5s\"\n\n")

	b.WriteString("storage:\n")
	fmt.Fprintf(&b, "  driver: %q # file | sqlite | memory\n", a.Driver)
	fmt.Fprintf(&b, "  dir: %q\n\n", a.DataDir)

	b.WriteString("auth:\n")
	b.WriteString("  token_ttl: \"24h\" # 0 disables expiry\n\n")

	b.WriteString("cors:\n")
	b.WriteString("  allowed_origins: [\"*\"]\n\n")

	b.WriteString("notify:\n")
	fmt.Fprintf(&b, "  dry_run: %t\n", a.DryRun)
	b.WriteString("  test_cooldown: \"10s\"\n\n")

	b.WriteString("backup:\n")
	b.WriteString("  merge_tokens: \"preserve\" # preserve | reset\n")
	b.WriteString("  archive:\n")
	b.WriteString("    driver: \"none\" # none | fs | s3\n")
	b.WriteString("    compress: true\n\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&b, "  format: %q\n\n", a.LogFormat)

	b.WriteString("metrics:\n")
	b.WriteString("  enabled: false\n")
	b.WriteString("  path: \"/metrics\"\n")
	return b.String()
}

func writeConfig(path, content string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func runInit(args []string, in io.Reader, out io.Writer) error {
	fs, configPath := newFlagSet("init")
	if err := fs.Parse(args); err != nil {
		return err
	}
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "roster configuration setup")
	fmt.Fprintln(out, "==========================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path", *configPath)
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	a := defaultInitAnswers()

	fmt.Fprintln(out, "\n--- Server ---")
	a.HTTPAddr = prompt(reader, out, "HTTP address", a.HTTPAddr)

	fmt.Fprintln(out, "\n--- Storage ---")
	a.Driver = prompt(reader, out, "Storage driver (file/sqlite/memory)", a.Driver)
	a.DataDir = prompt(reader, out, "Data directory", a.DataDir)

	fmt.Fprintln(out, "\n--- Notifications ---")
	a.DryRun = yes(prompt(reader, out, "Dry run (log instead of send)?", "yes"))

	fmt.Fprintln(out, "\n--- Logging ---")
	a.LogLevel = prompt(reader, out, "Log level (debug/info/warn/error)", a.LogLevel)
	a.LogFormat = prompt(reader, out, "Log format (text/json)", a.LogFormat)

	if err := writeConfig(outputFile, renderConfig(a, "init"), 0644); err != nil {
		return err
	}
	if a.Driver != "memory" {
		if err := os.MkdirAll(a.DataDir, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintf(out, "Data directory: %s\n", a.DataDir)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  roster bootstrap --username admin --password <secret>")
	fmt.Fprintln(out, "  roster serve")
	return nil
}

func yes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// EOF keeps the default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

// runBootstrap creates or promotes an admin by writing to the store directly.
// The server must not be running against the same data.
func runBootstrap(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("bootstrap")
	username := fs.StringP("username", "u", envOr("ROSTER_USERNAME", "admin"), "admin username")
	password := fs.StringP("password", "p", os.Getenv("ROSTER_PASSWORD"), "admin password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	if strings.TrimSpace(*username) == "" || *password == "" {
		return fmt.Errorf("--username and --password are required")
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		if err := writeConfig(*configPath, renderConfig(defaultInitAnswers(), "bootstrap"), 0600); err != nil {
			return err
		}
		green.Fprintf(out, "  ✓ Created config: %s\n", *configPath)
	} else {
		cyan.Fprintf(out, "  Using existing config: %s\n", *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := openStore(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	green.Fprintf(out, "  ✓ Storage: %s (%s)\n", cfg.Storage.Driver, cfg.Storage.Dir)

	user, created, err := newAuthService(cfg, s, logger).EnsureAdmin(ctx, *username, *password)
	if err != nil {
		return err
	}
	if created {
		green.Fprintf(out, "  ✓ Created admin: %s (id %d)\n", user.Username, user.ID)
	} else {
		green.Fprintf(out, "  ✓ Promoted existing user to admin: %s (id %d)\n", user.Username, user.ID)
	}

	fmt.Fprintln(out)
	yellow.Fprintln(out, "  Ready to go:")
	fmt.Fprintln(out, "    roster serve")
	fmt.Fprintf(out, "    roster seed --username %s --password <secret>\n", user.Username)
	fmt.Fprintln(out)
	return nil
}

func runHealth(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("health")
	remote := addRemoteFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := remote.client(*configPath).Health(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Fprintln(out, "healthy")
	return nil
}

func runSeed(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("seed")
	remote := addRemoteFlags(fs)
	users := fs.Int("users", 5, "number of users to create")
	missions := fs.Int("missions", 3, "number of missions to create")
	days := fs.Int("days", 7, "spread missions across this many days")
	reset := fs.Bool("reset", false, "empty the document first, keeping the seeding admin")
	force := fs.Bool("force-insert", false, "soft-delete existing seeded users before inserting")
	fixturePath := fs.String("fixture", "", "JSONC fixture file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *users < 0 || *missions < 0 || *days < 0 {
		return fmt.Errorf("--users, --missions and --days must not be negative")
	}

	fixture := seed.DefaultFixture()
	if *fixturePath != "" {
		var err error
		if fixture, err = seed.ReadFixture(*fixturePath); err != nil {
			return err
		}
	}

	c, err := remote.adminClient(ctx, *configPath)
	if err != nil {
		return err
	}

	res, err := seed.Run(ctx, c, seed.Options{
		Users:       *users,
		Missions:    *missions,
		Days:        *days,
		Reset:       *reset,
		ForceInsert: *force,
		Fixture:     fixture,
		Logger:      setupLogger(config.LoggingConfig{Level: "info"}, out),
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Fprintf(out, "  ✓ Seeded %d users, %d missions, %d assignments", len(res.Users), len(res.Missions), res.Assignments)
	if res.Skipped > 0 {
		color.New(color.FgYellow).Fprintf(out, " (%d skipped)", res.Skipped)
	}
	fmt.Fprintln(out)
	return nil
}

func runBackup(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("backup")
	remote := addRemoteFlags(fs)
	outPath := fs.StringP("out", "o", "", "output file (default: server-provided name in the current directory)")
	archive := fs.Bool("archive", false, "archive on the server's configured sink instead of downloading")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := remote.adminClient(ctx, *configPath)
	if err != nil {
		return err
	}

	if *archive {
		key, err := c.Archive(ctx)
		if err != nil {
			return fmt.Errorf("archiving backup: %w", err)
		}
		color.New(color.FgGreen).Fprintf(out, "  ✓ Archived: %s\n", key)
		return nil
	}

	data, filename, err := c.Backup(ctx)
	if err != nil {
		return fmt.Errorf("downloading backup: %w", err)
	}
	path := *outPath
	if path == "" {
		if filename == "" {
			filename = "backup.json"
		}
		path = filepath.Base(filename)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}
	color.New(color.FgGreen).Fprintf(out, "  ✓ Saved backup: %s (%d bytes)\n", path, len(data))
	return nil
}

func runRestore(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("restore")
	remote := addRemoteFlags(fs)
	inPath := fs.StringP("in", "i", "", "backup file, plain or zstd-compressed")
	archiveKey := fs.String("archive-key", "", "restore this key from the configured archive sink")
	merge := fs.Bool("merge", false, "merge into the current document instead of replacing it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*inPath == "") == (*archiveKey == "") {
		return fmt.Errorf("exactly one of --in or --archive-key is required")
	}

	var data []byte
	if *inPath != "" {
		var err error
		if data, err = os.ReadFile(*inPath); err != nil {
			return fmt.Errorf("reading backup: %w", err)
		}
	} else {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		archiver, err := newArchiver(ctx, cfg.Backup.Archive, setupLogger(cfg.Logging, io.Discard))
		if err != nil {
			return err
		}
		env, err := archiver.Fetch(ctx, *archiveKey)
		if err != nil {
			return err
		}
		if data, err = env.Encode(); err != nil {
			return err
		}
	}

	c, err := remote.adminClient(ctx, *configPath)
	if err != nil {
		return err
	}
	if err := c.Restore(ctx, data, !*merge); err != nil {
		return fmt.Errorf("restoring backup: %w", err)
	}

	mode := "wipe"
	if *merge {
		mode = "merge"
	}
	color.New(color.FgGreen).Fprintf(out, "  ✓ Restored (%s)\n", mode)
	return nil
}
