package postgres

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// LoadEnvironmentVariables fetches a user's environment variables and
// decrypts each secret, per spec §6: "returns decrypted variables."
// Secrets are stored as base64(nonce || box) using
// golang.org/x/crypto/nacl/secretbox, a pack-wide dependency already
// present in go.mod (previously pulled in only transitively) promoted
// here to a direct, exercised import rather than left unused.
func (s *Store) LoadEnvironmentVariables(ctx context.Context, userID string) (map[string]string, error) {
	const query = `SELECT name, secret_ciphertext FROM environment_variable WHERE user_id = $1`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("load environment variables for user %q: %w", userID, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, ciphertext string
		if err := rows.Scan(&name, &ciphertext); err != nil {
			return nil, fmt.Errorf("scan environment variable row: %w", err)
		}
		plaintext, err := s.decrypt(ciphertext)
		if err != nil {
			return nil, fmt.Errorf("decrypt environment variable %q: %w", name, err)
		}
		out[name] = plaintext
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate environment variables for user %q: %w", userID, err)
	}
	return out, nil
}

// SaveEnvironmentVariable encrypts and upserts one secret. The write
// counterpart to LoadEnvironmentVariables, needed to populate rows the
// read path can exercise.
func (s *Store) SaveEnvironmentVariable(ctx context.Context, userID, name, plaintext string) error {
	ciphertext, err := s.encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt environment variable %q: %w", name, err)
	}

	const query = `
		INSERT INTO environment_variable (user_id, name, secret_ciphertext)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, name) DO UPDATE SET secret_ciphertext = EXCLUDED.secret_ciphertext
	`
	if _, err := s.pool.Exec(ctx, query, userID, name, ciphertext); err != nil {
		return fmt.Errorf("save environment variable %q: %w", name, err)
	}
	return nil
}

func (s *Store) encrypt(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.encryptionKey)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Store) decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < 24 {
		return "", fmt.Errorf("ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])

	plaintext, ok := secretbox.Open(nil, raw[24:], &nonce, &s.encryptionKey)
	if !ok {
		return "", fmt.Errorf("decryption failed: wrong key or corrupted ciphertext")
	}
	return string(plaintext), nil
}
