// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/bureau-foundation/overlay/lib/secret"
)

// ErrDecrypt is returned when ciphertext cannot be opened with the
// supplied identity: wrong key, truncated file, or tampering.
var ErrDecrypt = errors.New("sealed: decryption failed")

// Keypair is an age X25519 identity. The private key (AGE-SECRET-KEY-1...)
// lives in protected memory; the public key (age1...) is safe to write
// anywhere. Close releases the private key.
type Keypair struct {
	PrivateKey *secret.Buffer
	PublicKey  string
}

// Close releases the private key. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey == nil {
		return nil
	}
	return k.PrivateKey.Close()
}

// GenerateKeypair creates a fresh X25519 identity.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("sealed: generating identity: %w", err)
	}
	privateKey, err := secret.NewFromString(identity.String())
	if err != nil {
		return nil, fmt.Errorf("sealed: protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// KeypairFromPrivateKey rebuilds a Keypair from a stored private key.
// The Keypair takes ownership of privateKey.
func KeypairFromPrivateKey(privateKey *secret.Buffer) (*Keypair, error) {
	identity, err := age.ParseX25519Identity(string(bytes.TrimSpace(privateKey.Bytes())))
	if err != nil {
		return nil, fmt.Errorf("sealed: parsing private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Encrypt seals plaintext to the given age1... public key and returns
// the binary age file.
func Encrypt(plaintext []byte, publicKey string) ([]byte, error) {
	recipient, err := age.ParseX25519Recipient(publicKey)
	if err != nil {
		return nil, fmt.Errorf("sealed: parsing recipient %q: %w", publicKey, err)
	}

	var out bytes.Buffer
	writer, err := age.Encrypt(&out, recipient)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("sealed: writing plaintext: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("sealed: finalizing: %w", err)
	}
	return out.Bytes(), nil
}

// Decrypt opens an age file with privateKey. The plaintext is returned
// in protected memory and the caller must Close it. privateKey is only
// borrowed.
func Decrypt(ciphertext []byte, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.ParseX25519Identity(string(bytes.TrimSpace(privateKey.Bytes())))
	if err != nil {
		return nil, fmt.Errorf("sealed: parsing private key: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrDecrypt)
	}
	return secret.NewFromBytes(plaintext)
}
