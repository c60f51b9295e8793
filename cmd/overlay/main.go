// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// overlay is a terminal chat client for a single Matrix room.
//
// On start it restores the saved session, or signs in through the
// browser (or with --user, a password). It then asks whether to host a
// new room or join one, and opens a full-screen view of the room:
// incoming messages above, a compose line below.
//
// Session credentials are stored sealed in the state directory
// (see --config and the paths.state setting); the room entered last
// is offered as the default next time.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/overlay/chat"
	"github.com/bureau-foundation/overlay/lib/config"
	"github.com/bureau-foundation/overlay/lib/credstore"
	"github.com/bureau-foundation/overlay/lib/logging"
	"github.com/bureau-foundation/overlay/lib/overlayui"
	"github.com/bureau-foundation/overlay/lib/secret"
	"github.com/bureau-foundation/overlay/lib/ssologin"
	"github.com/bureau-foundation/overlay/lib/version"
	"github.com/bureau-foundation/overlay/messaging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command-line settings. Non-empty values override
// the configuration file.
type options struct {
	configPath string
	homeserver string
	serverName string
	ssoPort    int
	user       string
	room       string
	logLevel   string
	logFile    string
	logout     bool
}

func run() error {
	var flags options
	flagSet := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
	flagSet.StringVar(&flags.configPath, "config", "", "path to a YAML configuration file (default: $OVERLAY_CONFIG)")
	flagSet.StringVar(&flags.homeserver, "homeserver", "", "homeserver base URL")
	flagSet.StringVar(&flags.serverName, "server-name", "", "server part of generated room aliases")
	flagSet.IntVar(&flags.ssoPort, "sso-port", 0, "loopback port for the browser sign-on callback")
	flagSet.StringVar(&flags.user, "user", "", "sign in with this user name and a password instead of the browser")
	flagSet.StringVar(&flags.room, "room", "", `room alias or ID to join, or "new" to host one (skips the prompt)`)
	flagSet.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&flags.logFile, "log-file", "", "file receiving log records while the UI is open")
	flagSet.BoolVar(&flags.logout, "logout", false, "forget the saved session and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("overlay %s\n", version.Full())
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.NewCommandLogger(level, cfg.Log.Format)

	store, err := credstore.New(credstore.Config{Directory: cfg.Paths.State, Logger: logger})
	if err != nil {
		return err
	}
	if flags.logout {
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Saved session removed.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Once the UI owns the terminal, background records go to the
	// status line and the log file instead of stderr.
	uiHandler := overlayui.NewLogHandler(slog.LevelWarn)
	fileHandler, closeLog, err := logging.OpenFileHandler(cfg.Paths.Log, level)
	if err != nil {
		return err
	}
	defer closeLog()
	backgroundLogger := slog.New(logging.Fanout{uiHandler, fileHandler})

	matrix, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver,
		Logger:        backgroundLogger,
	})
	if err != nil {
		return err
	}

	var tokens chat.TokenSource
	if cfg.SSO.Enabled {
		tokens = ssologin.New(ssologin.Config{
			Port:        cfg.SSO.Port,
			RedirectURL: matrix.SSORedirectURL,
			Output:      os.Stderr,
			Logger:      logger,
		})
	}

	client, err := chat.New(chat.Config{
		Matrix:         matrix,
		Store:          store,
		Tokens:         tokens,
		ServerName:     cfg.ServerName,
		SyncInterval:   cfg.Sync.Interval,
		SyncTimeout:    cfg.Sync.Timeout,
		SyncFilter:     cfg.Sync.Filter,
		JoinAttempts:   cfg.Rooms.JoinAttempts,
		JoinInterval:   cfg.Rooms.JoinInterval,
		MaxRoomPrompts: cfg.Rooms.MaxPrompts,
		Logger:         backgroundLogger,
	})
	if err != nil {
		return err
	}
	defer client.Stop()

	if err := start(ctx, client, flags); err != nil {
		reportStartupFailure(client.Events())
		return err
	}

	model := overlayui.NewModel(overlayui.Config{
		Events: client.Events(),
		Send: func(text string) error {
			client.Send(text)
			return nil
		},
		Title: client.RoomAlias(),
		Self:  client.UserID(),
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	uiHandler.SetProgram(program)

	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// loadConfig reads the configuration file, applies flag overrides,
// and prepares the state directory.
func loadConfig(flags options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if flags.homeserver != "" {
		cfg.Homeserver = flags.homeserver
	}
	if flags.serverName != "" {
		cfg.ServerName = flags.serverName
	}
	if flags.ssoPort != 0 {
		cfg.SSO.Port = flags.ssoPort
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFile != "" {
		cfg.Paths.Log = flags.logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// start signs in, enters a room, and starts syncing. With --user the
// password is read from the terminal; otherwise the saved session or
// browser sign-on is used.
func start(ctx context.Context, client *chat.Client, flags options) error {
	chooser := newTerminalChooser(os.Stdin, os.Stderr, flags.room)
	if flags.user == "" {
		return client.Run(ctx, chooser)
	}

	password, err := secret.ReadPassword("Password for " + flags.user + ": ")
	if err != nil {
		return err
	}
	defer password.Close()
	if !client.LoginWithPassword(ctx, flags.user, password) {
		return chat.ErrLoginFailed
	}
	if !client.ChooseRoom(ctx, chooser) {
		return chat.ErrRoomFailed
	}
	return client.StartSync()
}

// reportStartupFailure prints the failures recorded while starting,
// which would otherwise have been shown in the UI.
func reportStartupFailure(events <-chan chat.Event) {
	for {
		select {
		case event := <-events:
			switch event := event.(type) {
			case chat.LoginResult:
				if !event.Success && event.Err != nil {
					fmt.Fprintf(os.Stderr, "login: %v\n", event.Err)
				}
			case chat.RoomResult:
				if !event.Success && event.Err != nil {
					fmt.Fprintf(os.Stderr, "room: %v\n", event.Err)
				}
			}
		default:
			return
		}
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `overlay: chat in a Matrix room from the terminal.

Signs in with the saved session, or through a browser on this machine
(the sign-on link and a QR code of it are printed as well). Then asks whether to host a
new room or join an existing one.

Usage:
  overlay [flags]

Examples:
  # Sign in through the browser on matrix.org and pick a room
  overlay

  # Use another homeserver and go straight to a room
  overlay --homeserver https://chat.example.org --room '#lobby:example.org'

  # Sign in with a password
  overlay --user alice

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
