package model

import "math"

// Record is one seismic waveform trace plus the header fields the
// alignment pipeline needs. Times are seconds relative to the event
// origin. Data is mutated in place by each pipeline stage.
type Record struct {
	Name    string
	Station string
	Network string
	Channel string

	Delta float64 // sample interval, seconds
	Begin float64 // time of first sample
	End   float64 // time of last sample

	Gcarc float64 // great-circle distance, degrees
	Dist  float64 // epicentral distance, km
	Az    float64 // azimuth, degrees
	Baz   float64 // back-azimuth, degrees

	PhaseTime float64 // predicted phase arrival; NaN when unset
	SNR       float64
	ClusterID int

	Data []float64
}

// HasArrival reports whether a predicted arrival time is attached.
func (r *Record) HasArrival() bool {
	return !math.IsNaN(r.PhaseTime)
}

// TimeAt returns the time of sample i.
func (r *Record) TimeAt(i int) float64 {
	return r.Begin + float64(i)*r.Delta
}

// IndexAt returns the sample index nearest to time t, clamped to the trace.
func (r *Record) IndexAt(t float64) int {
	i := int(math.Round((t - r.Begin) / r.Delta))
	if i < 0 {
		i = 0
	}
	if i >= len(r.Data) {
		i = len(r.Data) - 1
	}
	return i
}

// Clone returns a deep copy. Each filter-band trial starts from a clone
// so trials never see a previous band's mutations.
func (r *Record) Clone() *Record {
	c := *r
	c.Data = make([]float64, len(r.Data))
	copy(c.Data, r.Data)
	return &c
}

// FilterBand is one entry of a filter bank.
type FilterBand struct {
	Center float64
	Low    float64
	High   float64
}

// Window is a time window relative to a record's predicted arrival.
type Window struct {
	Start float64
	End   float64
}

// CorrSet holds the pairwise correlation results for one filter trial.
// Pairs lists unordered record-index pairs (i<j) in a fixed lexicographic
// order; Coeff, Lag and Polarity are parallel matrices of shape
// (pairs x peaks), each pair's peaks sorted by descending coefficient.
type CorrSet struct {
	Pairs    [][2]int
	Coeff    [][]float64
	Lag      [][]float64 // seconds; positive means record j arrives later
	Polarity [][]int     // +1, -1, or 0 for an absent peak
	AmpRatio []float64   // rms(j)/rms(i) per pair
}

// Alignment is the per-record terminal artifact of the pipeline.
type Alignment struct {
	Record    string
	ClusterID int
	TimeShift float64 // correction to the predicted arrival, seconds
	AmpScale  float64
	Polarity  int // orientation relative to the cluster reference
	Residual  float64
	Aligned   bool // false for records in underdetermined clusters or preened out
}
