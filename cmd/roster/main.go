// ABOUTME: Entry point for the roster mission scheduling server and its admin CLI
// ABOUTME: Dispatches subcommands: serve, init, bootstrap, health, seed, backup, restore

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/roster/internal/config"
)

// Version is set at build time.
var version = "dev"

const banner = `
                  _
  _ __ ___  ___| |_ ___ _ __
 | '__/ _ \/ __| __/ _ \ '__|
 | | | (_) \__ \ ||  __/ |
 |_|  \___/|___/\__\___|_|
`

// getConfigPath returns the path to the roster config file.
// Priority: ROSTER_CONFIG env var > XDG_CONFIG_HOME/roster/roster.yaml > ~/.config/roster/roster.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ROSTER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "roster.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "roster", "roster.yaml")
}

// getDataPath returns the default data directory.
// Priority: XDG_DATA_HOME/roster > ~/.local/share/roster
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "roster")
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: roster <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                          Start the HTTP API server")
	fmt.Fprintln(w, "  init                           Create a config file interactively")
	fmt.Fprintln(w, "  bootstrap --username --password  Create or promote an admin (server stopped)")
	fmt.Fprintln(w, "  health                         Check server health")
	fmt.Fprintln(w, "  seed                           Load demo users, missions and assignments")
	fmt.Fprintln(w, "  backup --out FILE              Download a backup envelope")
	fmt.Fprintln(w, "  backup --archive               Archive a backup to the server's sink")
	fmt.Fprintln(w, "  restore --in FILE [--merge]    Upload a backup envelope")
	fmt.Fprintln(w, "  version                        Print the version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  ROSTER_CONFIG     Config file path")
	fmt.Fprintln(w, "  ROSTER_URL        Server URL for client commands")
	fmt.Fprintln(w, "  ROSTER_TOKEN      Admin bearer token for client commands")
	fmt.Fprintln(w, "  ROSTER_USERNAME   Admin username when no token is set")
	fmt.Fprintln(w, "  ROSTER_PASSWORD   Admin password when no token is set")
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1], os.Args[2:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "serve":
		return runServe(ctx, args)
	case "init":
		return runInit(args, os.Stdin, os.Stdout)
	case "bootstrap":
		return runBootstrap(ctx, args, os.Stdout)
	case "health":
		return runHealth(ctx, args, os.Stdout)
	case "seed":
		return runSeed(ctx, args, os.Stdout)
	case "backup":
		return runBackup(ctx, args, os.Stdout)
	case "restore":
		return runRestore(ctx, args, os.Stdout)
	case "version", "--version":
		fmt.Println(version)
		return nil
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet("roster "+name, pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", getConfigPath(), "config file")
	return fs, configPath
}

func runServe(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", *configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Storage:  %s", cfg.Storage.Driver)
	gray.Printf(" (%s)\n", cfg.Storage.Dir)
	if cfg.Backup.Archive.Driver != "none" {
		green.Print("    ▶ ")
		fmt.Printf("Archive:  %s\n", cfg.Backup.Archive.Driver)
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:  %s\n", cfg.Metrics.Path)
	}
	if cfg.Notify.DryRun {
		yellow.Println("    ▶ Notifications: dry run")
	}
	fmt.Println()

	logger.Info("starting roster",
		"config", *configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"storage", cfg.Storage.Driver,
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ln, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.HTTPAddr, err)
	}
	return a.Run(ctx, ln)
}
