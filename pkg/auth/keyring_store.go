package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "weibogeo"
	keyringPrefix  = "weibo_session_"
)

// KeyringStore implements CredentialStore using the system keychain.
type KeyringStore struct{}

// NewKeyringStore creates a keyring-based store, probing the keychain
// first so callers can fall back when no keychain is reachable.
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "availability_probe"
	if err := keyring.Set(keyringService, testKey, "probe"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)
	return &KeyringStore{}, nil
}

func (k *KeyringStore) Store(profile *Profile) error {
	if profile == nil || profile.Label == "" {
		return ErrInvalidProfile
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshalling profile: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+profile.Label, string(data)); err != nil {
		return fmt.Errorf("storing in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Retrieve(label string) (*Profile, error) {
	if label == "" {
		return nil, ErrInvalidProfile
	}
	data, err := keyring.Get(keyringService, keyringPrefix+label)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("reading keyring: %w", err)
	}
	var profile Profile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("unmarshalling profile: %w", err)
	}
	return &profile, nil
}

// List is not supported by the underlying keychain APIs; the encrypted
// file store provides listing instead.
func (k *KeyringStore) List() ([]*Profile, error) {
	return []*Profile{}, nil
}

func (k *KeyringStore) Delete(label string) error {
	if label == "" {
		return ErrInvalidProfile
	}
	if err := keyring.Delete(keyringService, keyringPrefix+label); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("deleting from keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Exists(label string) bool {
	if label == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringPrefix+label)
	return err == nil
}
