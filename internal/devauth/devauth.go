// Package devauth implements the password gate for developer mode.
// The password is stored as a salted PBKDF2-SHA256 hash in a small
// JSON file; a successful check opens a timed unlock session.
package devauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	iterations = 200_000
	saltBytes  = 16
	keyBytes   = 32
)

// DefaultSessionDuration is how long an unlock lasts.
const DefaultSessionDuration = 30 * time.Minute

// authFile is the on-disk password record.
type authFile struct {
	V          int    `json:"v"`
	SaltB64    string `json:"salt_b64"`
	HashB64    string `json:"hash_b64"`
	CreatedUTC string `json:"created_utc"`
}

// Gate manages the dev-mode password file and unlock session.
type Gate struct {
	path          string
	session       time.Duration
	unlockedUntil time.Time

	// now is swappable for tests.
	now func() time.Time
}

// New creates a gate backed by the password file at path.
func New(path string, session time.Duration) *Gate {
	if session <= 0 {
		session = DefaultSessionDuration
	}
	return &Gate{path: path, session: session, now: time.Now}
}

// Configured reports whether a password has been set.
func (g *Gate) Configured() bool {
	_, err := os.Stat(g.path)
	return err == nil
}

// SetPassword writes a fresh salted hash of the password.
func (g *Gate) SetPassword(password string) error {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	record := authFile{
		V:          1,
		SaltB64:    base64.StdEncoding.EncodeToString(salt),
		HashB64:    base64.StdEncoding.EncodeToString(hash(password, salt)),
		CreatedUTC: g.now().UTC().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode auth record: %w", err)
	}
	if err := os.WriteFile(g.path, data, 0o600); err != nil {
		return fmt.Errorf("write auth record: %w", err)
	}
	return nil
}

// CheckPassword verifies the password against the stored record using
// a constant-time compare. Any read or decode problem counts as a
// failed check rather than an error.
func (g *Gate) CheckPassword(password string) bool {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return false
	}

	var record authFile
	if err := json.Unmarshal(data, &record); err != nil {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(record.SaltB64)
	if err != nil {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(record.HashB64)
	if err != nil {
		return false
	}

	return hmac.Equal(expected, hash(password, salt))
}

// Unlock verifies the password and, on success, opens a timed session.
func (g *Gate) Unlock(password string) bool {
	if !g.CheckPassword(password) {
		return false
	}
	g.unlockedUntil = g.now().Add(g.session)
	return true
}

// Lock ends the unlock session immediately.
func (g *Gate) Lock() {
	g.unlockedUntil = time.Time{}
}

// Unlocked reports whether an unlock session is currently active.
func (g *Gate) Unlocked() bool {
	return !g.unlockedUntil.IsZero() && g.now().Before(g.unlockedUntil)
}

func hash(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, keyBytes, sha256.New)
}
