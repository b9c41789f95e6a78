package lutron

import (
	"sort"
	"time"
)

// DefaultClickTimeout bounds a gesture from its first press.
const DefaultClickTimeout = 500 * time.Millisecond

// Gesture is a finalized run of presses on one button.
type Gesture struct {
	Address string
	Count   int
	Start   time.Time
	End     time.Time
}

type gestureWindow struct {
	address string
	count   int
	start   time.Time
}

// GestureOptions configures a GestureDetector.
type GestureOptions struct {
	// Timeout is measured from the first press of a window, not the last.
	// Default: DefaultClickTimeout.
	Timeout time.Duration

	// Independent lets windows on different addresses run side by side.
	// When false a press on one address finalizes every other open window.
	Independent bool
}

// GestureDetector coalesces presses into tap counts.
//
// Thread Safety:
//   - Not safe for concurrent use. The engine's event loop owns it; both
//     Press and Tick are called from that goroutine only.
type GestureDetector struct {
	timeout     time.Duration
	independent bool
	windows     map[string]*gestureWindow
}

// NewGestureDetector returns a detector with no open windows.
func NewGestureDetector(opts GestureOptions) *GestureDetector {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultClickTimeout
	}
	return &GestureDetector{
		timeout:     timeout,
		independent: opts.Independent,
		windows:     make(map[string]*gestureWindow),
	}
}

// Press records a press on address at time at.
//
// Returns the gestures finalized by this press, oldest first: the
// address's own window if it had already expired without a tick, and in
// exclusive mode every window on another address.
func (g *GestureDetector) Press(address string, at time.Time) []Gesture {
	var finalized []Gesture

	if w, ok := g.windows[address]; ok && at.Sub(w.start) >= g.timeout {
		finalized = append(finalized, g.finalize(w, at))
	}

	if !g.independent {
		var others []*gestureWindow
		for addr, w := range g.windows {
			if addr != address {
				others = append(others, w)
			}
		}
		finalized = append(finalized, g.finalizeAll(others, at)...)
	}

	if w, ok := g.windows[address]; ok {
		w.count++
	} else {
		g.windows[address] = &gestureWindow{address: address, count: 1, start: at}
	}

	sortGestures(finalized)
	return finalized
}

// Tick finalizes every window whose age has reached the timeout.
func (g *GestureDetector) Tick(now time.Time) []Gesture {
	var expired []*gestureWindow
	for _, w := range g.windows {
		if now.Sub(w.start) >= g.timeout {
			expired = append(expired, w)
		}
	}
	return g.finalizeAll(expired, now)
}

// Pending returns the current count for an open window.
func (g *GestureDetector) Pending(address string) (int, bool) {
	w, ok := g.windows[address]
	if !ok {
		return 0, false
	}
	return w.count, true
}

// Active returns the number of open windows.
func (g *GestureDetector) Active() int {
	return len(g.windows)
}

// Timeout returns the configured click timeout.
func (g *GestureDetector) Timeout() time.Duration {
	return g.timeout
}

func (g *GestureDetector) finalizeAll(windows []*gestureWindow, at time.Time) []Gesture {
	if len(windows) == 0 {
		return nil
	}
	out := make([]Gesture, 0, len(windows))
	for _, w := range windows {
		out = append(out, g.finalize(w, at))
	}
	sortGestures(out)
	return out
}

func (g *GestureDetector) finalize(w *gestureWindow, at time.Time) Gesture {
	delete(g.windows, w.address)
	return Gesture{Address: w.address, Count: w.count, Start: w.start, End: at}
}

func sortGestures(gs []Gesture) {
	sort.SliceStable(gs, func(i, j int) bool {
		if gs[i].Start.Equal(gs[j].Start) {
			return gs[i].Address < gs[j].Address
		}
		return gs[i].Start.Before(gs[j].Start)
	})
}
