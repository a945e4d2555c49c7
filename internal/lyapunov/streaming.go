package lyapunov

// #region stream

const (
	// DefaultWindow is the streaming sample window capacity.
	DefaultWindow = 50

	// DefaultAlpha is the EMA smoothing factor for streaming estimates.
	DefaultAlpha = 0.2

	// streamMinSamples is the buffer size required before estimating.
	streamMinSamples = 10
)

// Stream maintains a bounded sample window and an EMA-smoothed exponent
// estimate recomputed with the simple method once enough points are
// buffered. Not safe for concurrent use.
type Stream struct {
	window  [][]float64
	cap     int
	alpha   float64
	current float64
	ready   bool
}

// NewStream creates a streaming estimator. capacity <= 0 selects
// DefaultWindow; alpha <= 0 selects DefaultAlpha.
func NewStream(capacity int, alpha float64) *Stream {
	if capacity <= 0 {
		capacity = DefaultWindow
	}
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	return &Stream{
		window: make([][]float64, 0, capacity),
		cap:    capacity,
		alpha:  alpha,
	}
}

// Update pushes one state vector and returns the smoothed estimate.
// Until streamMinSamples points are buffered it returns the last value.
func (s *Stream) Update(sample []float64) float64 {
	v := make([]float64, len(sample))
	copy(v, sample)
	if len(s.window) == s.cap {
		s.window = append(s.window[:0], s.window[1:]...)
	}
	s.window = append(s.window, v)

	if len(s.window) < streamMinSamples {
		return s.current
	}
	raw, err := Estimate(s.window, Options{Method: MethodSimple})
	if err != nil {
		return s.current
	}
	if !s.ready {
		s.current = raw
		s.ready = true
	} else {
		s.current = s.alpha*raw + (1-s.alpha)*s.current
	}
	return s.current
}

// Current returns the latest estimate and whether one exists.
func (s *Stream) Current() (float64, bool) {
	return s.current, s.ready
}

// Len returns the number of buffered samples.
func (s *Stream) Len() int {
	return len(s.window)
}

// #endregion stream
