// Package xcorr computes normalized cross-correlations between every
// unordered pair of windowed records and extracts the top-N peaks per
// pair. Results are bit-reproducible for a fixed input: the pair order
// is lexicographic, peak ranking has a total order, and the parallel
// fan-out assembles its output by fixed pair index.
package xcorr

import (
	"context"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/seistools/phasealign/internal/model"
	"github.com/seistools/phasealign/pkg/utils"
)

// ErrMixedRate marks an input whose records disagree on the sample
// interval; lag values would be meaningless across such a set.
var ErrMixedRate = errors.New("xcorr: records have mixed sample intervals")

// Options control one correlation run.
type Options struct {
	NumPeaks int     // peaks kept per pair
	Absolute bool    // rank |c| so flipped-polarity troughs count as peaks
	PadPow2  bool    // pad the correlation length to the next power of two
	MaxLag   float64 // seconds; 0 means the full overlap
	Workers  int     // concurrent pair workers; min 1
}

// peak is one correlation extremum candidate.
type peak struct {
	coeff    float64 // |c| at the extremum
	lag      float64 // seconds
	polarity int
}

// Correlate builds the correlation matrix set for the given records.
// Positive lag means record j arrives later than record i. Fewer than
// two records yield an empty set, not an error.
func Correlate(ctx context.Context, records []*model.Record, opts Options) (*model.CorrSet, error) {
	if opts.NumPeaks < 1 {
		opts.NumPeaks = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	n := len(records)
	for _, rec := range records {
		if rec.Delta != records[0].Delta {
			return nil, errors.Wrapf(ErrMixedRate, "%s at %g s, %s at %g s",
				records[0].Name, records[0].Delta, rec.Name, rec.Delta)
		}
	}
	pairs := make([][2]int, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, [2]int{i, j})
		}
	}

	set := &model.CorrSet{
		Pairs:    pairs,
		Coeff:    make([][]float64, len(pairs)),
		Lag:      make([][]float64, len(pairs)),
		Polarity: make([][]int, len(pairs)),
		AmpRatio: make([]float64, len(pairs)),
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(opts.Workers)
	for p := range pairs {
		p := p
		grp.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			a := records[pairs[p][0]]
			b := records[pairs[p][1]]
			coeff, lag, pol, ratio := correlatePair(a, b, opts)
			set.Coeff[p] = coeff
			set.Lag[p] = lag
			set.Polarity[p] = pol
			set.AmpRatio[p] = ratio
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, errors.Wrap(err, "correlation stage")
	}
	return set, nil
}

// correlatePair computes the normalized cross-correlation of one pair
// and returns its top-N peaks plus the RMS amplitude ratio rms(b)/rms(a).
func correlatePair(a, b *model.Record, opts Options) ([]float64, []float64, []int, float64) {
	na := len(a.Data)
	nb := len(b.Data)
	coeff := make([]float64, opts.NumPeaks)
	lag := make([]float64, opts.NumPeaks)
	pol := make([]int, opts.NumPeaks)
	if na == 0 || nb == 0 {
		return coeff, lag, pol, 0
	}

	normA := sumSquares(a.Data)
	normB := sumSquares(b.Data)
	norm := math.Sqrt(normA * normB)
	if norm == 0 {
		return coeff, lag, pol, 0
	}

	size := na + nb - 1
	if opts.PadPow2 {
		size = utils.NextPow2(size)
	}

	fa := make([]float64, size)
	copy(fa, a.Data)
	fb := make([]float64, size)
	copy(fb, b.Data)

	specA := fft.FFTReal(fa)
	specB := fft.FFTReal(fb)
	cross := make([]complex128, size)
	for k := range cross {
		// conj(A)*B so that C(l) = sum_t a[t]*b[t+l]: a positive-lag
		// peak means b is the delayed trace.
		ar, ai := real(specA[k]), imag(specA[k])
		br, bi := real(specB[k]), imag(specB[k])
		cross[k] = complex(ar*br+ai*bi, ar*bi-ai*br)
	}
	cc := fft.IFFT(cross)

	// Lags run from -(na-1) to nb-1; index l>=0 at cc[l], l<0 at cc[size+l].
	minLag := -(na - 1)
	maxLag := nb - 1
	if opts.MaxLag > 0 {
		limit := int(opts.MaxLag / a.Delta)
		if -limit > minLag {
			minLag = -limit
		}
		if limit < maxLag {
			maxLag = limit
		}
	}

	// Records are windowed about their own arrivals, so lags measure
	// relative arrival error. The begin-time offsets correct the sample
	// rounding between the two windows.
	offA := a.Begin - a.PhaseTime
	offB := b.Begin - b.PhaseTime
	lagBias := offB - offA

	value := func(l int) float64 {
		idx := l
		if idx < 0 {
			idx += size
		}
		return real(cc[idx]) / norm
	}
	metric := func(l int) float64 {
		v := value(l)
		if opts.Absolute {
			return math.Abs(v)
		}
		return v
	}

	var peaks []peak
	for l := minLag + 1; l < maxLag; l++ {
		m := metric(l)
		if m > metric(l-1) && m >= metric(l+1) {
			v := value(l)
			if !opts.Absolute && v <= 0 {
				// Troughs only qualify when |c| ranking is requested.
				continue
			}
			p := peak{coeff: math.Abs(v), lag: float64(l)*a.Delta + lagBias, polarity: 1}
			if v < 0 {
				p.polarity = -1
			}
			peaks = append(peaks, p)
		}
	}
	sortPeaks(peaks)

	for i := 0; i < opts.NumPeaks && i < len(peaks); i++ {
		coeff[i] = peaks[i].coeff
		lag[i] = peaks[i].lag
		pol[i] = peaks[i].polarity
	}

	ratio := math.Sqrt(normB/float64(nb)) / math.Sqrt(normA/float64(na))
	return coeff, lag, pol, ratio
}

// sortPeaks orders candidates by descending coefficient; ties break by
// smaller absolute lag, then by positive lag first. Insertion sort keeps
// the ordering stable and allocation-free for the short lists involved.
func sortPeaks(peaks []peak) {
	for i := 1; i < len(peaks); i++ {
		p := peaks[i]
		j := i - 1
		for j >= 0 && peakLess(p, peaks[j]) {
			peaks[j+1] = peaks[j]
			j--
		}
		peaks[j+1] = p
	}
}

func peakLess(a, b peak) bool {
	if a.coeff != b.coeff {
		return a.coeff > b.coeff
	}
	absA, absB := math.Abs(a.lag), math.Abs(b.lag)
	if absA != absB {
		return absA < absB
	}
	return a.lag > b.lag
}

func sumSquares(data []float64) float64 {
	var sum float64
	for _, v := range data {
		sum += v * v
	}
	return sum
}
