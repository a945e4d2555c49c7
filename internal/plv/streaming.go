package plv

// #region stream

// DefaultWindow is the streaming phase window capacity.
const DefaultWindow = 20

// Stream maintains a fixed-capacity phase window and recomputes the PLV
// on every update. Not safe for concurrent use; each call site owns its
// own Stream.
type Stream struct {
	window  []float64
	cap     int
	current float64
	ready   bool
}

// NewStream creates a streaming estimator with the given window capacity.
// capacity <= 0 selects DefaultWindow.
func NewStream(capacity int) *Stream {
	if capacity <= 0 {
		capacity = DefaultWindow
	}
	return &Stream{
		window: make([]float64, 0, capacity),
		cap:    capacity,
	}
}

// Update pushes one phase sample (radians) and returns the PLV over the
// current window. Before two samples have arrived it returns 0.
func (s *Stream) Update(phase float64) float64 {
	if len(s.window) == s.cap {
		s.window = append(s.window[:0], s.window[1:]...)
	}
	s.window = append(s.window, phase)

	v, err := FromPhases(s.window)
	if err != nil {
		return s.current
	}
	s.current = v
	s.ready = true
	return s.current
}

// Current returns the latest estimate and whether one exists.
func (s *Stream) Current() (float64, bool) {
	return s.current, s.ready
}

// Len returns the number of buffered phases.
func (s *Stream) Len() int {
	return len(s.window)
}

// #endregion stream
