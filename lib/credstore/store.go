// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/overlay/lib/codec"
	"github.com/bureau-foundation/overlay/lib/sealed"
	"github.com/bureau-foundation/overlay/lib/secret"
)

const (
	sessionFile  = "session.age"
	identityFile = "identity.key"
	lastRoomFile = "last_room"
)

// Credentials is a persisted login.
type Credentials struct {
	AccessToken string `cbor:"access_token"`
	UserID      string `cbor:"user_id"`
	Homeserver  string `cbor:"homeserver,omitempty"`
}

// Config configures a Store.
type Config struct {
	// Directory holds the store's files. Defaults to DefaultDirectory().
	Directory string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Store persists one set of credentials and the last room the user
// entered. Credentials are CBOR-encoded and sealed with an age identity
// kept beside them with owner-only permissions; the last room is plain
// text.
type Store struct {
	directory string
	logger    *slog.Logger
}

// New returns a Store. No files are touched until the first Save.
func New(config Config) (*Store, error) {
	directory := config.Directory
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{directory: directory, logger: logger}, nil
}

// DefaultDirectory returns $OVERLAY_HOME, else $XDG_CONFIG_HOME/overlay,
// else ~/.config/overlay.
func DefaultDirectory() (string, error) {
	if home := os.Getenv("OVERLAY_HOME"); home != "" {
		return home, nil
	}
	configDirectory := os.Getenv("XDG_CONFIG_HOME")
	if configDirectory == "" {
		homeDirectory, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("credstore: locating home directory: %w", err)
		}
		configDirectory = filepath.Join(homeDirectory, ".config")
	}
	return filepath.Join(configDirectory, "overlay"), nil
}

// Directory returns the directory holding the store's files.
func (s *Store) Directory() string { return s.directory }

// Save replaces the stored credentials.
func (s *Store) Save(credentials Credentials) error {
	if credentials.AccessToken == "" || credentials.UserID == "" {
		return fmt.Errorf("credstore: refusing to save incomplete credentials")
	}
	if err := os.MkdirAll(s.directory, 0700); err != nil {
		return fmt.Errorf("credstore: creating %s: %w", s.directory, err)
	}

	keypair, err := s.loadIdentity(true)
	if err != nil {
		return err
	}
	defer keypair.Close()

	plaintext, err := codec.Marshal(credentials)
	if err != nil {
		return fmt.Errorf("credstore: encoding credentials: %w", err)
	}
	ciphertext, err := sealed.Encrypt(plaintext, keypair.PublicKey)
	secret.Zero(plaintext)
	if err != nil {
		return fmt.Errorf("credstore: sealing credentials: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(s.directory, sessionFile), ciphertext); err != nil {
		return err
	}
	s.logger.Debug("saved credentials", "user_id", credentials.UserID)
	return nil
}

// Load returns the stored credentials. The second result is false when
// nothing usable is stored: no file, an unreadable file, a missing
// identity, or a blob that fails to decrypt or decode. Failures other
// than absence are logged.
func (s *Store) Load() (Credentials, bool) {
	ciphertext, err := os.ReadFile(filepath.Join(s.directory, sessionFile))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("reading stored credentials", "error", err)
		}
		return Credentials{}, false
	}

	keypair, err := s.loadIdentity(false)
	if err != nil {
		s.logger.Warn("stored credentials have no usable identity", "error", err)
		return Credentials{}, false
	}
	defer keypair.Close()

	plaintext, err := sealed.Decrypt(ciphertext, keypair.PrivateKey)
	if err != nil {
		s.logger.Warn("stored credentials could not be decrypted", "error", err)
		return Credentials{}, false
	}
	defer plaintext.Close()

	var credentials Credentials
	if err := codec.Unmarshal(plaintext.Bytes(), &credentials); err != nil {
		s.logger.Warn("stored credentials could not be decoded", "error", err)
		return Credentials{}, false
	}
	if credentials.AccessToken == "" || credentials.UserID == "" {
		s.logger.Warn("stored credentials are incomplete")
		return Credentials{}, false
	}
	return credentials, true
}

// Clear removes the stored credentials. The identity and last room are
// kept. Clearing an empty store is not an error.
func (s *Store) Clear() error {
	err := os.Remove(filepath.Join(s.directory, sessionFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credstore: removing credentials: %w", err)
	}
	return nil
}

// SaveLastRoom records the room ID or alias most recently entered.
func (s *Store) SaveLastRoom(room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return fmt.Errorf("credstore: empty room")
	}
	if err := os.MkdirAll(s.directory, 0700); err != nil {
		return fmt.Errorf("credstore: creating %s: %w", s.directory, err)
	}
	return writeFileAtomic(filepath.Join(s.directory, lastRoomFile), []byte(room+"\n"))
}

// LoadLastRoom returns the last saved room, if any.
func (s *Store) LoadLastRoom() (string, bool) {
	data, err := os.ReadFile(filepath.Join(s.directory, lastRoomFile))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("reading last room", "error", err)
		}
		return "", false
	}
	room := strings.TrimSpace(string(data))
	return room, room != ""
}

// loadIdentity reads the age identity, generating and writing a new one
// when create is set and none exists.
func (s *Store) loadIdentity(create bool) (*sealed.Keypair, error) {
	path := filepath.Join(s.directory, identityFile)
	data, err := os.ReadFile(path)
	if err == nil {
		privateKey, err := secret.NewFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("credstore: protecting identity: %w", err)
		}
		keypair, err := sealed.KeypairFromPrivateKey(privateKey)
		if err != nil {
			privateKey.Close()
			return nil, fmt.Errorf("credstore: identity %s: %w", path, err)
		}
		return keypair, nil
	}
	if !errors.Is(err, fs.ErrNotExist) || !create {
		return nil, fmt.Errorf("credstore: reading identity: %w", err)
	}

	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	encoded := append([]byte(nil), keypair.PrivateKey.Bytes()...)
	encoded = append(encoded, '\n')
	writeErr := writeFileAtomic(path, encoded)
	secret.Zero(encoded)
	if writeErr != nil {
		keypair.Close()
		return nil, writeErr
	}
	s.logger.Info("generated credential identity", "path", path)
	return keypair, nil
}

// writeFileAtomic writes data to a 0600 temporary file in the target's
// directory and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("credstore: creating temporary file: %w", err)
	}
	name := temporary.Name()
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(name)
		return fmt.Errorf("credstore: writing %s: %w", path, err)
	}
	if err := temporary.Chmod(0600); err != nil {
		temporary.Close()
		os.Remove(name)
		return fmt.Errorf("credstore: setting permissions on %s: %w", path, err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("credstore: closing %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("credstore: replacing %s: %w", path, err)
	}
	return nil
}
