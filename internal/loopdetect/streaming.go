package loopdetect

// #region stream

const (
	// DefaultWindow is the streaming sample window capacity.
	DefaultWindow = 30

	// DefaultCheckInterval bounds re-evaluation cost: detection runs
	// only every this many samples.
	DefaultCheckInterval = 5
)

// Stream buffers a bounded signal window and re-runs detection on a
// cadence, returning the cached result between checks. Not safe for
// concurrent use.
type Stream struct {
	window   []float64
	cap      int
	interval int
	opts     Options
	pending  int
	cached   Result
}

// NewStream creates a streaming detector. capacity <= 0 selects
// DefaultWindow; interval <= 0 selects DefaultCheckInterval.
func NewStream(capacity, interval int, opts Options) *Stream {
	if capacity <= 0 {
		capacity = DefaultWindow
	}
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Stream{
		window:   make([]float64, 0, capacity),
		cap:      capacity,
		interval: interval,
		opts:     opts,
	}
}

// Update pushes one sample and returns the current detection result,
// re-evaluating only every check interval.
func (s *Stream) Update(sample float64) Result {
	if len(s.window) == s.cap {
		s.window = append(s.window[:0], s.window[1:]...)
	}
	s.window = append(s.window, sample)

	s.pending++
	if s.pending < s.interval {
		return s.cached
	}
	s.pending = 0

	r, err := Detect(s.window, s.opts)
	if err != nil {
		return s.cached
	}
	s.cached = r
	return s.cached
}

// Current returns the last cached result.
func (s *Stream) Current() Result {
	return s.cached
}

// Len returns the number of buffered samples.
func (s *Stream) Len() int {
	return len(s.window)
}

// #endregion stream
