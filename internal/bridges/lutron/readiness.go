package lutron

import "sync"

// Signal is a one-shot broadcast. Every waiter on Done is released when
// Fire is first called, and Done stays closed afterwards.
type Signal struct {
	ch   chan struct{}
	once sync.Once
}

// NewSignal returns an unfired signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Fire releases all waiters. Later calls do nothing.
func (s *Signal) Fire() {
	s.once.Do(func() { close(s.ch) })
}

// Done returns a channel closed once the signal fires.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

// Fired reports whether Fire has been called.
func (s *Signal) Fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
