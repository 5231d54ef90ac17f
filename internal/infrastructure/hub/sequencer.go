package hub

import "sync/atomic"

// Sequencer hands out process-wide event ids starting at 1. Ids are not
// persisted and restart from 1 with the process.
type Sequencer struct {
	n atomic.Uint64
}

func (s *Sequencer) Next() uint64 {
	return s.n.Add(1)
}

// Current returns the last id handed out, or 0 if none.
func (s *Sequencer) Current() uint64 {
	return s.n.Load()
}
