package core

// Single-flight admission over the room's running flag. At most one
// generation job (chat or image) may hold the flag; a denied request is
// silently dropped by the caller.

// TryStart returns false and leaves the flag untouched if a job is already
// running; otherwise it marks the room running.
func (s *RoomState) TryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// Finish clears the running flag. Every grant must be paired with exactly one
// Finish on all exit paths.
func (s *RoomState) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

func (s *RoomState) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
