// Package settings stores mdxlate user credentials.
//
// Credentials live in the XDG data directory:
//
//	$XDG_DATA_HOME/mdxlate/auth.json  (default: ~/.local/share/mdxlate/auth.json)
//
// The file is a JSON object keyed by profile name. A profile holds an API
// key and, optionally, the endpoint it belongs to. File permissions are 0600.
//
// Lookup order for the API key:
//  1. --api-key flag (highest priority)
//  2. MDXLATE_API_KEY environment variable (or .env)
//  3. This credential store
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	dataDirName = "mdxlate"
	fileName    = "auth.json"
)

// DefaultProfile is the profile used when none is named.
const DefaultProfile = "default"

// EnvAPIKey is the environment variable holding the API key.
const EnvAPIKey = "MDXLATE_API_KEY"

// Info is the entry stored per profile.
type Info struct {
	// Key is the API key.
	Key string `json:"key"`
	// BaseURL is the endpoint the key belongs to (empty = any).
	BaseURL string `json:"baseUrl,omitempty"`
	// Added is when the key was stored.
	Added time.Time `json:"added,omitempty"`
}

// Store holds all profiles, keyed by name.
type Store map[string]*Info

// ---------------------------------------------------------------------------
// File path
// ---------------------------------------------------------------------------

// dataDir returns the XDG data directory for mdxlate.
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the auth.json file path for display purposes.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the credential store from disk.
// Returns an empty store if the file doesn't exist or is invalid.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return make(Store)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}
	var store Store
	if err := json.Unmarshal(data, &store); err != nil || store == nil {
		return make(Store)
	}
	return store
}

// Save writes the credential store to disk with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Profiles
// ---------------------------------------------------------------------------

// SetAPIKey stores key for profile (upsert).
func SetAPIKey(profile, key, baseURL string) error {
	store := Load()
	store[profile] = &Info{Key: key, BaseURL: baseURL, Added: time.Now().UTC()}
	return Save(store)
}

// GetAPIKey returns the key of profile, or "" if there is none.
func GetAPIKey(profile string) string {
	if info := Load()[profile]; info != nil {
		return info.Key
	}
	return ""
}

// ResolveAPIKey returns the API key by priority: flagValue, then the
// environment, then the stored profile.
func ResolveAPIKey(profile, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		return v
	}
	return GetAPIKey(profile)
}

// Remove deletes a profile.
func Remove(profile string) error {
	store := Load()
	if _, ok := store[profile]; !ok {
		return nil
	}
	delete(store, profile)
	return Save(store)
}

// RemoveAll removes all stored credentials.
func RemoveAll() error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing auth file: %w", err)
	}
	return nil
}

// Profiles returns the stored profile names, sorted.
func (s Store) Profiles() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MaskKey returns a masked version of a key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
