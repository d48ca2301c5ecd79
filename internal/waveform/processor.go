package waveform

import (
	"math"

	"github.com/mjibson/go-dsp/fft"

	"github.com/seistools/phasealign/internal/model"
)

// Detrend removes the least-squares linear trend (and with it the mean)
// from the record's samples in place.
func Detrend(rec *model.Record) {
	n := len(rec.Data)
	if n < 2 {
		return
	}

	// Fit y = a + b*x over x = 0..n-1.
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range rec.Data {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	den := fn*sumXX - sumX*sumX
	if den == 0 {
		return
	}
	b := (fn*sumXY - sumX*sumY) / den
	a := (sumY - b*sumX) / fn

	for i := range rec.Data {
		rec.Data[i] -= a + b*float64(i)
	}
}

// Taper applies a Hann taper to the leading and trailing frac of the
// record's samples in place. frac is clamped to [0, 0.5].
func Taper(rec *model.Record, frac float64) {
	if frac <= 0 {
		return
	}
	if frac > 0.5 {
		frac = 0.5
	}
	n := len(rec.Data)
	m := int(frac * float64(n))
	if m < 1 {
		return
	}
	for i := 0; i < m; i++ {
		// Hann ramp: 0.5*(1 - cos(pi*i/m))
		w := 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(m)))
		rec.Data[i] *= w
		rec.Data[n-1-i] *= w
	}
}

// CutWindow trims the record in place to the window [start, end] around
// its predicted arrival and updates the begin/end times. Reports false
// when the window misses the trace entirely.
func CutWindow(rec *model.Record, win model.Window) bool {
	if !rec.HasArrival() {
		return false
	}
	t0 := rec.PhaseTime + win.Start
	t1 := rec.PhaseTime + win.End
	if t1 < rec.Begin || t0 > rec.End {
		return false
	}
	i0 := rec.IndexAt(t0)
	i1 := rec.IndexAt(t1)
	if i1 <= i0 {
		return false
	}
	rec.Data = rec.Data[i0 : i1+1]
	rec.Begin = rec.TimeAt(i0)
	rec.End = rec.Begin + float64(len(rec.Data)-1)*rec.Delta
	return true
}

// rms over samples [i0, i1] inclusive.
func rms(data []float64, i0, i1 int) float64 {
	if i1 < i0 {
		return 0
	}
	var sum float64
	for i := i0; i <= i1; i++ {
		sum += data[i] * data[i]
	}
	return math.Sqrt(sum / float64(i1-i0+1))
}

// RMS returns the root-mean-square amplitude of the whole trace.
func RMS(rec *model.Record) float64 {
	return rms(rec.Data, 0, len(rec.Data)-1)
}

// SNR computes the signal-to-noise ratio as the RMS ratio of the signal
// and noise windows, both relative to the predicted arrival. Returns 0
// when either window misses the trace or the noise is silent.
func SNR(rec *model.Record, noise, signal model.Window) float64 {
	if !rec.HasArrival() {
		return 0
	}
	if !overlaps(rec, noise) || !overlaps(rec, signal) {
		return 0
	}
	n0 := rec.IndexAt(rec.PhaseTime + noise.Start)
	n1 := rec.IndexAt(rec.PhaseTime + noise.End)
	s0 := rec.IndexAt(rec.PhaseTime + signal.Start)
	s1 := rec.IndexAt(rec.PhaseTime + signal.End)
	noiseRMS := rms(rec.Data, n0, n1)
	if noiseRMS == 0 {
		return 0
	}
	return rms(rec.Data, s0, s1) / noiseRMS
}

// overlaps reports whether the arrival-relative window intersects the
// trace at all. Index clamping would otherwise measure the wrong samples.
func overlaps(rec *model.Record, win model.Window) bool {
	return rec.PhaseTime+win.End >= rec.Begin && rec.PhaseTime+win.Start <= rec.End
}

// Bandpass filters the record in place to the [low, high] Hz passband
// using an FFT mask: transform, zero every bin outside the band, invert.
func Bandpass(rec *model.Record, low, high float64) {
	n := len(rec.Data)
	if n < 2 {
		return
	}
	spec := fft.FFTReal(rec.Data)

	// Bin k of an n-point transform sits at k/(n*delta) Hz for k <= n/2,
	// with the negative frequencies mirrored in the upper half.
	df := 1.0 / (float64(n) * rec.Delta)
	for k := range spec {
		freq := float64(k) * df
		if k > n/2 {
			freq = float64(n-k) * df
		}
		if freq < low || freq > high {
			spec[k] = 0
		}
	}

	out := fft.IFFT(spec)
	for i := range rec.Data {
		rec.Data[i] = real(out[i])
	}
}
