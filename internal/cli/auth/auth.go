package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/quill-dev/quill/internal/session"
)

const (
	service = "quill-cli"
)

var _ session.SnapshotStore = (*KeyringStore)(nil)

// KeyringStore persists one session snapshot per server in the OS
// keychain/credential manager. The refresh cookie is not part of a snapshot.
type KeyringStore struct {
	serverURL string
}

// NewKeyringStore returns the snapshot store for the server at serverURL
func NewKeyringStore(serverURL string) *KeyringStore {
	return &KeyringStore{serverURL: serverURL}
}

// getKeyringKey returns a unique key for storing snapshots per server
func getKeyringKey(serverURL string) string {
	return fmt.Sprintf("session-%s", serverURL)
}

// Load returns the saved snapshot, or nil if there is none
func (k *KeyringStore) Load() (*session.Snapshot, error) {
	data, err := keyring.Get(service, getKeyringKey(k.serverURL))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &snap, nil
}

// Save writes the snapshot to the keyring
func (k *KeyringStore) Save(snap session.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := keyring.Set(service, getKeyringKey(k.serverURL), string(data)); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear removes the snapshot from the keyring
func (k *KeyringStore) Clear() error {
	if err := keyring.Delete(service, getKeyringKey(k.serverURL)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
