package device

import "sync"

// Status is the collaborator-facing connection snapshot. For the serial
// connector IP carries the port name and Port is zero.
type Status struct {
	Connected bool   `json:"connected"`
	IP        string `json:"ip"`
	Port      int    `json:"port"`
	LastError string `json:"last_error"`
}

// StatusStore is the single source of truth for link state. Every
// transition replaces the whole record under the lock, so concurrent
// observers can never see a half-updated state.
type StatusStore struct {
	mu sync.RWMutex
	st Status
}

func NewStatusStore() *StatusStore {
	return &StatusStore{}
}

func (s *StatusStore) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.st
}

func (s *StatusStore) Replace(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = st
}
