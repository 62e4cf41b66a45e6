// Package auth stores Weibo session cookies. A cookie is an opaque
// blob pasted from a logged-in browser session; it is stored and sent
// verbatim, never parsed. Stores are layered: system keychain first,
// encrypted file next, environment variables as a read-only fallback.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Profile is one stored Weibo session.
type Profile struct {
	Label        string    `json:"label"`
	Cookie       string    `json:"cookie"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving session
// profiles.
type CredentialStore interface {
	// Store saves a profile
	Store(profile *Profile) error

	// Retrieve gets the profile with the given label
	Retrieve(label string) (*Profile, error)

	// List returns all stored profiles
	List() ([]*Profile, error)

	// Delete removes the profile with the given label
	Delete(label string) error

	// Exists checks if a profile exists for a label
	Exists(label string) bool
}

// Manager layers credential stores with fallback.
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager with the available storage
// backends.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	// System keychain when available
	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("locating config directory: %w", err)
	}
	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "sessions.enc"))
	if err != nil {
		return nil, fmt.Errorf("creating encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores builds a manager over explicit stores, used by
// tests.
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves a profile using the first store that accepts it.
func (m *Manager) Store(profile *Profile) error {
	if profile == nil || profile.Label == "" {
		return ErrInvalidProfile
	}
	if profile.Cookie == "" {
		return errors.New("cookie is required")
	}

	profile.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(profile); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("storing profile: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets a profile from the first store that has it.
func (m *Manager) Retrieve(label string) (*Profile, error) {
	for _, store := range m.stores {
		if profile, err := store.Retrieve(label); err == nil && profile != nil {
			return profile, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, label)
}

// RetrieveDefault returns the environment session if one is set, else
// the most recently modified stored profile.
func (m *Manager) RetrieveDefault() (*Profile, error) {
	if envStore, ok := m.stores[len(m.stores)-1].(*EnvironmentStore); ok {
		if profile, err := envStore.Retrieve(""); err == nil && profile != nil {
			return profile, nil
		}
	}

	profiles, err := m.List()
	if err != nil || len(profiles) == 0 {
		return nil, ErrProfileNotFound
	}
	newest := profiles[0]
	for _, p := range profiles[1:] {
		if p.LastModified.After(newest.LastModified) {
			newest = p
		}
	}
	return newest, nil
}

// List merges profiles from all stores, keeping the most recently
// modified copy of each label.
func (m *Manager) List() ([]*Profile, error) {
	byLabel := make(map[string]*Profile)
	for _, store := range m.stores {
		profiles, err := store.List()
		if err != nil {
			continue
		}
		for _, profile := range profiles {
			if existing, ok := byLabel[profile.Label]; !ok || profile.LastModified.After(existing.LastModified) {
				byLabel[profile.Label] = profile
			}
		}
	}

	var result []*Profile
	for _, profile := range byLabel {
		result = append(result, profile)
	}
	return result, nil
}

// Delete removes a profile from every store that has it.
func (m *Manager) Delete(label string) error {
	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(label); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}
	if !deleted {
		if lastErr != nil {
			return fmt.Errorf("deleting profile: %w", lastErr)
		}
		return fmt.Errorf("%w: %s", ErrProfileNotFound, label)
	}
	return nil
}

func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "weibogeo")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "weibogeo")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "weibogeo")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "weibogeo")
		}
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return configDir, nil
}

// Sanitize returns a copy of the profile with the cookie masked, safe
// for logs and terminal output.
func Sanitize(profile *Profile) *Profile {
	if profile == nil {
		return nil
	}
	return &Profile{
		Label:        profile.Label,
		Cookie:       maskString(profile.Cookie),
		UserAgent:    profile.UserAgent,
		LastModified: profile.LastModified,
	}
}

func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

var (
	ErrProfileNotFound  = errors.New("profile not found")
	ErrInvalidProfile   = errors.New("invalid profile")
	ErrStoreUnavailable = errors.New("credential store unavailable")
)
