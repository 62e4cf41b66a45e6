package auth

import (
	"os"
	"time"
)

// EnvironmentStore reads a session from environment variables. It is
// read-only and mainly serves CI and container deployments.
type EnvironmentStore struct{}

// NewEnvironmentStore creates an environment-based store.
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables.
func (e *EnvironmentStore) Store(profile *Profile) error {
	return ErrStoreUnavailable
}

// Retrieve builds a profile from WEIBOGEO_COOKIE. label "" maps to
// "default".
func (e *EnvironmentStore) Retrieve(label string) (*Profile, error) {
	cookie := os.Getenv("WEIBOGEO_COOKIE")
	if cookie == "" {
		return nil, ErrProfileNotFound
	}
	if label == "" {
		label = "default"
	}
	return &Profile{
		Label:        label,
		Cookie:       cookie,
		UserAgent:    os.Getenv("WEIBOGEO_USER_AGENT"),
		LastModified: time.Now(),
	}, nil
}

func (e *EnvironmentStore) List() ([]*Profile, error) {
	profile, err := e.Retrieve("")
	if err != nil {
		return []*Profile{}, nil
	}
	return []*Profile{profile}, nil
}

// Delete is not supported for environment variables.
func (e *EnvironmentStore) Delete(label string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(label string) bool {
	return os.Getenv("WEIBOGEO_COOKIE") != ""
}
