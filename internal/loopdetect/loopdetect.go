// Package loopdetect detects repetitive, looping signal patterns via
// spectral, autocorrelation, and entropy analysis, with a majority-vote
// combined mode.
package loopdetect

import (
	"errors"
	"math"
)

// #region errors

// ErrInsufficientSamples is returned when the signal is too short to
// analyze.
var ErrInsufficientSamples = errors.New("loopdetect: insufficient samples")

// #endregion errors

// #region options

// Method selects the detection algorithm.
type Method string

const (
	MethodSpectral Method = "spectral"
	MethodAutocorr Method = "autocorr"
	MethodEntropy  Method = "entropy"
	MethodCombined Method = "combined"
)

// Options configures detection. Zero values select the defaults.
type Options struct {
	Method           Method
	MinPeriod        int     // shortest loop period considered (default 2)
	MaxPeriod        int     // longest loop period considered (default 20)
	SpectralThreshold float64 // relative power threshold (default 0.7)
	AutocorrThreshold float64 // correlation threshold (default 0.7)
	EntropyThreshold  float64 // normalized entropy threshold (default 0.3)
	HistogramBins     int     // entropy quantization bins (default 10)
}

func (o Options) withDefaults() Options {
	if o.Method == "" {
		o.Method = MethodCombined
	}
	if o.MinPeriod <= 0 {
		o.MinPeriod = 2
	}
	if o.MaxPeriod <= 0 {
		o.MaxPeriod = 20
	}
	if o.SpectralThreshold <= 0 {
		o.SpectralThreshold = 0.7
	}
	if o.AutocorrThreshold <= 0 {
		o.AutocorrThreshold = 0.7
	}
	if o.EntropyThreshold <= 0 {
		o.EntropyThreshold = 0.3
	}
	if o.HistogramBins <= 0 {
		o.HistogramBins = 10
	}
	return o
}

// #endregion options

// #region result

// Result is the outcome of one detection pass.
type Result struct {
	Looping    bool
	Period     int
	Confidence float64
	Method     Method
}

// #endregion result

// #region detect

const minSignalLen = 4

// Detect analyzes history for looping behavior.
func Detect(history []float64, opts Options) (Result, error) {
	opts = opts.withDefaults()
	if len(history) < minSignalLen {
		return Result{}, ErrInsufficientSamples
	}
	switch opts.Method {
	case MethodSpectral:
		return detectSpectral(history, opts), nil
	case MethodAutocorr:
		return detectAutocorr(history, opts), nil
	case MethodEntropy:
		return detectEntropy(history, opts), nil
	default:
		return detectCombined(history, opts), nil
	}
}

// #endregion detect

// #region spectral

// detectSpectral computes the DFT power spectrum and tests whether one
// candidate bin dominates. The signal loops when
// peakPower/totalPower × binCount exceeds the threshold and the implied
// period is at least MinPeriod.
func detectSpectral(signal []float64, opts Options) Result {
	n := len(signal)
	centered := center(signal)

	binCount := n / 2
	if binCount < 1 {
		return Result{Method: MethodSpectral}
	}

	var totalPower float64
	peakPower := 0.0
	peakBin := 0
	for k := 1; k <= binCount; k++ {
		var re, im float64
		for i, v := range centered {
			angle := 2 * math.Pi * float64(k) * float64(i) / float64(n)
			re += v * math.Cos(angle)
			im -= v * math.Sin(angle)
		}
		power := re*re + im*im
		totalPower += power

		period := float64(n) / float64(k)
		if period < float64(opts.MinPeriod) || period > float64(opts.MaxPeriod) {
			continue
		}
		if power > peakPower {
			peakPower = power
			peakBin = k
		}
	}
	if totalPower <= 0 || peakBin == 0 {
		return Result{Method: MethodSpectral}
	}

	relativePower := peakPower / totalPower * float64(binCount)
	period := int(math.Round(float64(n) / float64(peakBin)))
	looping := relativePower > opts.SpectralThreshold && period >= opts.MinPeriod

	return Result{
		Looping:    looping,
		Period:     period,
		Confidence: math.Min(1, relativePower/2),
		Method:     MethodSpectral,
	}
}

// #endregion spectral

// #region autocorr

// detectAutocorr scans normalized autocorrelation over candidate lags and
// picks the strongest lag at or beyond MinPeriod.
func detectAutocorr(signal []float64, opts Options) Result {
	n := len(signal)
	centered := center(signal)

	var denom float64
	for _, v := range centered {
		denom += v * v
	}
	if denom <= 0 {
		return Result{Method: MethodAutocorr}
	}

	maxLag := opts.MaxPeriod
	if maxLag > n/2 {
		maxLag = n / 2
	}

	bestLag := 0
	bestCorr := math.Inf(-1)
	for lag := 1; lag <= maxLag; lag++ {
		var num float64
		for i := 0; i+lag < n; i++ {
			num += centered[i] * centered[i+lag]
		}
		corr := num / denom
		if lag >= opts.MinPeriod && corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}
	if bestLag == 0 {
		return Result{Method: MethodAutocorr}
	}

	confidence := bestCorr
	if confidence < 0 {
		confidence = 0
	}
	return Result{
		Looping:    bestCorr > opts.AutocorrThreshold,
		Period:     bestLag,
		Confidence: confidence,
		Method:     MethodAutocorr,
	}
}

// #endregion autocorr

// #region entropy

// detectEntropy histogram-bins the signal and tests whether its Shannon
// entropy, normalized by ln(n), falls below the threshold. Low entropy
// means the signal revisits few states, i.e. it loops. The period is the
// mean run length of quantized runs times two (one up-run plus one
// down-run per cycle).
func detectEntropy(signal []float64, opts Options) Result {
	n := len(signal)
	bins := quantize(signal, opts.HistogramBins)

	counts := make(map[int]int)
	for _, b := range bins {
		counts[b]++
	}
	var entropy float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		entropy -= p * math.Log(p)
	}
	normalized := entropy / math.Log(float64(n))

	// Mean run length of the quantized sequence.
	runs := 0
	runStart := 0
	totalRun := 0
	for i := 1; i <= n; i++ {
		if i == n || bins[i] != bins[runStart] {
			totalRun += i - runStart
			runs++
			runStart = i
		}
	}
	period := 0
	if runs > 0 {
		period = int(math.Round(float64(totalRun) / float64(runs) * 2))
	}

	looping := normalized < opts.EntropyThreshold
	confidence := 1 - normalized
	if confidence < 0 {
		confidence = 0
	}
	return Result{
		Looping:    looping,
		Period:     period,
		Confidence: confidence,
		Method:     MethodEntropy,
	}
}

// #endregion entropy

// #region combined

// detectCombined runs all three detectors and votes: the signal loops
// when at least two agree. The period comes from the highest-confidence
// positive detector; confidence averages over positive detectors.
func detectCombined(signal []float64, opts Options) Result {
	results := []Result{
		detectSpectral(signal, opts),
		detectAutocorr(signal, opts),
		detectEntropy(signal, opts),
	}

	votes := 0
	var confSum float64
	best := Result{}
	for _, r := range results {
		if !r.Looping {
			continue
		}
		votes++
		confSum += r.Confidence
		if r.Confidence > best.Confidence || best.Period == 0 {
			best = r
		}
	}

	if votes < 2 {
		return Result{Method: MethodCombined}
	}
	return Result{
		Looping:    true,
		Period:     best.Period,
		Confidence: confSum / float64(votes),
		Method:     MethodCombined,
	}
}

// #endregion combined

// #region helpers

func center(signal []float64) []float64 {
	var mean float64
	for _, v := range signal {
		mean += v
	}
	mean /= float64(len(signal))
	out := make([]float64, len(signal))
	for i, v := range signal {
		out[i] = v - mean
	}
	return out
}

// quantize maps each sample onto one of binCount histogram bins.
func quantize(signal []float64, binCount int) []int {
	lo, hi := signal[0], signal[0]
	for _, v := range signal {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := make([]int, len(signal))
	if hi == lo {
		return out
	}
	for i, v := range signal {
		b := int((v - lo) / (hi - lo) * float64(binCount))
		if b >= binCount {
			b = binCount - 1
		}
		out[i] = b
	}
	return out
}

// #endregion helpers
