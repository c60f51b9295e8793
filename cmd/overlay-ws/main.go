// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// overlay-ws is the WebSocket build of overlay: it connects to a chat
// relay over a single WebSocket instead of a Matrix homeserver. Each
// line typed is sent as one text frame; each text frame received is
// shown as a message. There is no login and no room selection.
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
	"github.com/bureau-foundation/overlay/lib/logging"
	"github.com/bureau-foundation/overlay/lib/overlayui"
	"github.com/bureau-foundation/overlay/lib/version"
	"github.com/bureau-foundation/overlay/transport/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, address, path, logLevel, logFile, name string
	flagSet := pflag.NewFlagSet("overlay-ws", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML configuration file (default: $OVERLAY_CONFIG)")
	flagSet.StringVar(&address, "address", "", "host:port of the WebSocket server")
	flagSet.StringVar(&path, "path", "", "request path of the WebSocket upgrade")
	flagSet.StringVar(&name, "name", "", "label for messages from the server (default: the server address)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&logFile, "log-file", "", "file receiving log records while the UI is open")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("overlay-ws %s\n", version.Full())
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

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if address != "" {
		cfg.WebSocket.Address = address
	}
	if path != "" {
		cfg.WebSocket.Path = path
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFile != "" {
		cfg.Paths.Log = logFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	if name == "" {
		name = cfg.WebSocket.Address
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.NewCommandLogger(level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	uiHandler := overlayui.NewLogHandler(slog.LevelWarn)
	fileHandler, closeLog, err := logging.OpenFileHandler(cfg.Paths.Log, level)
	if err != nil {
		return err
	}
	defer closeLog()

	conn, err := websocket.Dial(ctx, websocket.Config{
		Address:          cfg.WebSocket.Address,
		Path:             cfg.WebSocket.Path,
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		Logger:           slog.New(logging.Fanout{uiHandler, fileHandler}),
	})
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info("connected", "address", cfg.WebSocket.Address, "path", cfg.WebSocket.Path)

	model := overlayui.NewModel(overlayui.Config{
		Events: relay(conn.Messages(), name),
		Send:   conn.Send,
		Title:  "ws://" + cfg.WebSocket.Address + cfg.WebSocket.Path,
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	uiHandler.SetProgram(program)

	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// relay presents received text frames as chat messages from sender.
// The returned channel is closed when messages is.
func relay(messages <-chan string, sender string) <-chan chat.Event {
	events := make(chan chat.Event)
	go func() {
		defer close(events)
		for text := range messages {
			events <- chat.MessageEvent{Sender: sender, Body: text}
		}
	}()
	return events
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `overlay-ws: chat over a single WebSocket connection.

Connects to the server given by --address (or websocket.address in the
configuration file) and opens a full-screen view: received messages
above, a compose line below.

Usage:
  overlay-ws [flags]

Examples:
  overlay-ws --address chat.example.org:8080 --path /chat

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
