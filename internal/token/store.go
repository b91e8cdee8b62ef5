// Package token persists the NPM bearer token between CLI invocations.
package token

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	configDirName = "npmctl"
	tokenFile     = "token.json"
)

// Credential is the cached bearer token with its absolute expiry.
type Credential struct {
	Token   string
	Expires time.Time
}

// Valid reports whether the credential is usable at the given instant.
// The expiry is compared strictly; no clock-skew grace is applied.
func (c Credential) Valid(now time.Time) bool {
	return c.Expires.After(now.UTC())
}

// credentialJSON is the on-disk form. NPM returns expiry as an ISO 8601
// timestamp with fractional seconds and a Z suffix; it is stored verbatim.
type credentialJSON struct {
	Token   string `json:"token"`
	Expires string `json:"expires"`
}

// Store reads and writes the single credential file. The zero directory
// means "derive from the user config dir"; tests pass a temp directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, or at the default per-user
// config directory (~/.config/npmctl) when dir is empty.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		base, err := configDir()
		if err != nil {
			return nil, err
		}
		dir = base
	}
	return &Store{dir: dir}, nil
}

// configDir returns the base config directory (~/.config/npmctl/).
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}

	return filepath.Join(xdgConfig, configDirName), nil
}

// Save writes the credential, creating the config directory if needed.
// The file is replaced wholesale; there is never a partial record.
func (s *Store) Save(cred Credential) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.Marshal(credentialJSON{
		Token:   cred.Token,
		Expires: cred.Expires.UTC().Format("2006-01-02T15:04:05.000Z"),
	})
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	if err := os.WriteFile(filepath.Join(s.dir, tokenFile), data, 0600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

// Load returns the cached credential, or nil if the file is missing,
// unreadable, or malformed. Parse failures are never surfaced as errors:
// every degraded state means the same thing to callers, log in again.
func (s *Store) Load() *Credential {
	data, err := os.ReadFile(filepath.Join(s.dir, tokenFile))
	if err != nil {
		return nil
	}

	var raw credentialJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	if raw.Token == "" || raw.Expires == "" {
		return nil
	}

	expires, err := time.Parse(time.RFC3339, raw.Expires)
	if err != nil {
		return nil
	}

	return &Credential{Token: raw.Token, Expires: expires}
}
