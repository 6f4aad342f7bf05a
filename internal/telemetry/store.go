package telemetry

import "sync"

// Store keeps the latest merged sensor fields and the most recent
// command acknowledgment. Fields survive disconnects so collaborators
// always see the last known values.
type Store struct {
	mu     sync.RWMutex
	fields map[string]any
	ack    map[string]any
}

func NewStore() *Store {
	return &Store{
		fields: make(map[string]any),
	}
}

// Merge overlays the incoming frame onto the snapshot. Keys absent from
// the frame keep their previous value.
func (s *Store) Merge(frame map[string]any) {
	if len(frame) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range frame {
		s.fields[k] = v
	}
}

// SetAck replaces the acknowledgment record wholesale.
func (s *Store) SetAck(ack map[string]any) {
	if len(ack) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ack = cloneFields(ack)
}

// Ack returns a copy of the latest acknowledgment, or nil when none has
// been received yet.
func (s *Store) Ack() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneFields(s.ack)
}

// Snapshot returns a copy of the merged field map, with an "ack" entry
// added when an acknowledgment has been received.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.fields)+1)
	for k, v := range s.fields {
		out[k] = v
	}
	if s.ack != nil {
		out["ack"] = cloneFields(s.ack)
	}

	return out
}

func cloneFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}
