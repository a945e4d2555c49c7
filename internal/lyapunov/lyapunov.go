// Package lyapunov estimates the maximal Lyapunov exponent of a
// trajectory of state vectors. Positive estimates indicate divergent
// (chaotic) dynamics; zero or negative estimates indicate stability.
package lyapunov

import (
	"errors"
	"math"
)

// #region errors

var (
	// ErrInsufficientSamples is returned when the trajectory is too short
	// for the selected method.
	ErrInsufficientSamples = errors.New("lyapunov: insufficient samples")

	// ErrDegenerateInput is returned for flat or non-finite trajectories.
	ErrDegenerateInput = errors.New("lyapunov: degenerate input")
)

// #endregion errors

// #region options

// Method selects the estimation algorithm.
type Method string

const (
	MethodRosenstein Method = "rosenstein"
	MethodWolf       Method = "wolf"
	MethodKantz      Method = "kantz" // aliased to rosenstein
	MethodSimple     Method = "simple"
)

// Options configures estimation. Zero values select the defaults.
type Options struct {
	Method        Method
	EmbeddingDim  int     // time-delay embedding dimension (default 3)
	Delay         int     // embedding delay (default 1)
	MinSeparation int     // neighbor exclusion radius in samples (default 10)
	MaxSteps      int     // divergence tracking horizon (default 20)
	Threshold     float64 // stability threshold for Stable (default 0)
}

func (o Options) withDefaults() Options {
	if o.Method == "" {
		o.Method = MethodRosenstein
	}
	if o.Method == MethodKantz {
		o.Method = MethodRosenstein
	}
	if o.EmbeddingDim <= 0 {
		o.EmbeddingDim = 3
	}
	if o.Delay <= 0 {
		o.Delay = 1
	}
	if o.MinSeparation <= 0 {
		o.MinSeparation = 10
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = 20
	}
	return o
}

// #endregion options

// #region estimate

// Estimate computes the maximal Lyapunov exponent of trajectory.
func Estimate(trajectory [][]float64, opts Options) (float64, error) {
	opts = opts.withDefaults()
	series, err := scalarize(trajectory)
	if err != nil {
		return 0, err
	}
	switch opts.Method {
	case MethodSimple:
		return estimateSimple(series)
	case MethodWolf:
		return estimateWolf(series, opts)
	default:
		return estimateRosenstein(series, opts)
	}
}

// Stable reports whether the trajectory's exponent is at or below the
// threshold. Estimation failure counts as stable (fail-safe default).
func Stable(trajectory [][]float64, opts Options) bool {
	lambda, err := Estimate(trajectory, opts)
	if err != nil {
		return true
	}
	return lambda <= opts.Threshold
}

// DivergenceRate computes the regression slope of log pairwise distance
// between two aligned trajectories.
func DivergenceRate(a, b [][]float64) (float64, error) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0, ErrInsufficientSamples
	}
	var xs, ys []float64
	for i := 0; i < n; i++ {
		d := distance(a[i], b[i])
		if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, math.Log(d))
	}
	if len(xs) < 2 {
		return 0, ErrDegenerateInput
	}
	return regressionSlope(xs, ys), nil
}

// #endregion estimate

// #region rosenstein

// estimateRosenstein embeds the series, pairs each point with its nearest
// temporally separated neighbor, tracks pair divergence over the horizon,
// and regresses mean log divergence against step.
func estimateRosenstein(series []float64, opts Options) (float64, error) {
	emb := embed(series, opts.EmbeddingDim, opts.Delay)
	m := len(emb)
	if m < opts.MinSeparation+2 {
		return 0, ErrInsufficientSamples
	}

	logSum := make([]float64, opts.MaxSteps+1)
	counts := make([]int, opts.MaxSteps+1)

	for i := 0; i < m; i++ {
		j := nearestNeighbor(emb, i, opts.MinSeparation)
		if j < 0 {
			continue
		}
		for k := 1; k <= opts.MaxSteps; k++ {
			if i+k >= m || j+k >= m {
				break
			}
			d := distance(emb[i+k], emb[j+k])
			if d <= 0 {
				continue
			}
			logSum[k] += math.Log(d)
			counts[k]++
		}
	}

	var xs, ys []float64
	for k := 1; k <= opts.MaxSteps; k++ {
		if counts[k] == 0 {
			continue
		}
		xs = append(xs, float64(k))
		ys = append(ys, logSum[k]/float64(counts[k]))
	}
	if len(xs) < 2 {
		return 0, ErrDegenerateInput
	}
	return regressionSlope(xs, ys), nil
}

// nearestNeighbor returns the index of the closest embedded point at
// least minSep samples away from i, or -1 when none exists.
func nearestNeighbor(emb [][]float64, i, minSep int) int {
	best := -1
	bestDist := math.Inf(1)
	for j := range emb {
		if abs(i-j) < minSep {
			continue
		}
		d := distance(emb[i], emb[j])
		if d < bestDist {
			bestDist = d
			best = j
		}
	}
	return best
}

// #endregion rosenstein

// #region wolf

// estimateWolf tracks one evolving neighbor pair, accumulating log
// stretch and re-anchoring to a fresh neighbor whenever the pair leaves
// the epsilon ball.
func estimateWolf(series []float64, opts Options) (float64, error) {
	emb := embed(series, opts.EmbeddingDim, opts.Delay)
	m := len(emb)
	if m < opts.MinSeparation+2 {
		return 0, ErrInsufficientSamples
	}

	epsilon := meanSpacing(emb) * 2
	if epsilon <= 0 {
		return 0, ErrDegenerateInput
	}

	i := 0
	j := nearestNeighbor(emb, i, opts.MinSeparation)
	if j < 0 {
		return 0, ErrDegenerateInput
	}

	var logStretch float64
	steps := 0
	d0 := distance(emb[i], emb[j])
	for i+1 < m && j+1 < m {
		i++
		j++
		steps++
		d1 := distance(emb[i], emb[j])
		if d0 > 0 && d1 > 0 {
			logStretch += math.Log(d1 / d0)
		}
		d0 = d1
		if d1 > epsilon {
			// Re-anchor: replace the neighbor with the closest point to
			// the current reference.
			j = nearestNeighbor(emb, i, opts.MinSeparation)
			if j < 0 {
				break
			}
			d0 = distance(emb[i], emb[j])
		}
	}
	if steps == 0 {
		return 0, ErrDegenerateInput
	}
	return logStretch / float64(steps), nil
}

// #endregion wolf

// #region simple

// estimateSimple is a variance-growth heuristic: λ̂ ≈ ln(var₂/var₁)/half.
func estimateSimple(series []float64) (float64, error) {
	n := len(series)
	if n < 4 {
		return 0, ErrInsufficientSamples
	}
	half := n / 2
	v1 := variance(series[:half])
	v2 := variance(series[half:])
	if v1 <= 0 || v2 <= 0 {
		return 0, ErrDegenerateInput
	}
	return math.Log(v2/v1) / float64(half), nil
}

// #endregion simple

// #region helpers

// scalarize reduces each state vector to its Euclidean norm. A 1-element
// vector passes through unchanged.
func scalarize(trajectory [][]float64) ([]float64, error) {
	if len(trajectory) < 2 {
		return nil, ErrInsufficientSamples
	}
	series := make([]float64, len(trajectory))
	for i, v := range trajectory {
		if len(v) == 0 {
			return nil, ErrDegenerateInput
		}
		if len(v) == 1 {
			series[i] = v[0]
		} else {
			series[i] = norm(v)
		}
		if math.IsNaN(series[i]) || math.IsInf(series[i], 0) {
			return nil, ErrDegenerateInput
		}
	}
	return series, nil
}

// embed builds time-delay embedding vectors from a scalar series.
func embed(series []float64, dim, delay int) [][]float64 {
	m := len(series) - (dim-1)*delay
	if m <= 0 {
		return nil
	}
	emb := make([][]float64, m)
	for i := 0; i < m; i++ {
		v := make([]float64, dim)
		for d := 0; d < dim; d++ {
			v[d] = series[i+d*delay]
		}
		emb[i] = v
	}
	return emb
}

func distance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs))
}

// meanSpacing estimates the typical nearest-step spacing of the embedding.
func meanSpacing(emb [][]float64) float64 {
	if len(emb) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(emb); i++ {
		sum += distance(emb[i-1], emb[i])
	}
	return sum / float64(len(emb)-1)
}

// regressionSlope computes the least-squares slope of ys against xs.
func regressionSlope(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / den
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// #endregion helpers
