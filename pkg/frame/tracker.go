package frame

// Tracker remembers the last frame id a consumer processed.
type Tracker struct {
	last uint64
	seen bool
}

// Fresh reports whether s carries a frame the tracker has not seen and
// records it. The caller must hold the snapshot lock.
func (t *Tracker) Fresh(s *Snapshot) bool {
	id := s.FrameID()
	if t.seen && id == t.last {
		return false
	}
	t.last = id
	t.seen = true
	return true
}

// Last returns the last recorded frame id.
func (t *Tracker) Last() (uint64, bool) { return t.last, t.seen }

// Reset forgets the recorded frame.
func (t *Tracker) Reset() { *t = Tracker{} }
