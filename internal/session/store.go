package session

import "sync"

// Snapshot is the restorable part of a session. The refresh credential is not
// part of it; it lives only in the transport's cookie jar.
type Snapshot struct {
	AccessToken string `json:"accessToken"`
	User        *User  `json:"user,omitempty"`
}

// SnapshotStore persists a Snapshot across process restarts.
// Load returns (nil, nil) when nothing has been saved.
type SnapshotStore interface {
	Load() (*Snapshot, error)
	Save(s Snapshot) error
	Clear() error
}

// MemoryStore is an in-process SnapshotStore.
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, nil
	}
	s := *m.snap
	s.User = s.User.clone()
	return &s, nil
}

func (m *MemoryStore) Save(s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.User = s.User.clone()
	m.snap = &s
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	return nil
}
