package waveform

import (
	"math"
	"testing"

	"github.com/seistools/phasealign/internal/model"
)

func synthRecord(n int, delta float64, fill func(i int) float64) *model.Record {
	rec := &model.Record{
		Name:      "synth",
		Delta:     delta,
		PhaseTime: math.NaN(),
		Data:      make([]float64, n),
	}
	for i := range rec.Data {
		rec.Data[i] = fill(i)
	}
	rec.End = rec.Begin + float64(n-1)*delta
	return rec
}

func maxAbs(data []float64) float64 {
	var m float64
	for _, v := range data {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

func TestDetrendRemovesLinearTrend(t *testing.T) {
	rec := synthRecord(500, 0.01, func(i int) float64 {
		return 2.0 + 3.0*float64(i)
	})
	Detrend(rec)

	if m := maxAbs(rec.Data); m > 1e-8 {
		t.Errorf("residual after detrending a pure trend: %g", m)
	}
}

func TestDetrendPreservesSignal(t *testing.T) {
	sine := func(i int) float64 { return math.Sin(2 * math.Pi * float64(i) / 50) }
	rec := synthRecord(500, 0.01, func(i int) float64 {
		return sine(i) + 0.5 + 0.002*float64(i)
	})
	Detrend(rec)

	var maxErr float64
	for i, v := range rec.Data {
		if e := math.Abs(v - sine(i)); e > maxErr {
			maxErr = e
		}
	}
	// The least-squares line absorbs a little of the sine, so the
	// detrended trace carries a small refit bias against the pure sine.
	// The 0.8 trend excursion must still be almost entirely gone.
	if maxErr > 0.15 {
		t.Errorf("detrended signal deviates from original sine by %g", maxErr)
	}
}

func TestTaperEdges(t *testing.T) {
	rec := synthRecord(100, 0.01, func(int) float64 { return 1 })
	Taper(rec, 0.2)

	if rec.Data[0] != 0 {
		t.Errorf("first sample after taper = %g, want 0", rec.Data[0])
	}
	if rec.Data[99] != 0 {
		t.Errorf("last sample after taper = %g, want 0", rec.Data[99])
	}
	if rec.Data[50] != 1 {
		t.Errorf("middle sample after taper = %g, want untouched 1", rec.Data[50])
	}
	// Ramp is monotone over the tapered stretch.
	for i := 1; i < 20; i++ {
		if rec.Data[i] < rec.Data[i-1] {
			t.Fatalf("taper ramp not monotone at %d", i)
		}
	}
}

func TestTaperNoop(t *testing.T) {
	rec := synthRecord(100, 0.01, func(int) float64 { return 1 })
	Taper(rec, 0)
	if rec.Data[0] != 1 {
		t.Error("zero fraction must not modify the trace")
	}
}

func TestCutWindow(t *testing.T) {
	rec := synthRecord(101, 0.1, func(i int) float64 { return float64(i) })
	rec.PhaseTime = 5.0

	if !CutWindow(rec, model.Window{Start: -1, End: 1}) {
		t.Fatal("window inside trace rejected")
	}
	if len(rec.Data) != 21 {
		t.Errorf("windowed length = %d, want 21", len(rec.Data))
	}
	if math.Abs(rec.Begin-4.0) > 1e-12 {
		t.Errorf("windowed begin = %g, want 4.0", rec.Begin)
	}
	if rec.Data[0] != 40 {
		t.Errorf("first windowed sample = %g, want 40", rec.Data[0])
	}
}

func TestCutWindowMiss(t *testing.T) {
	rec := synthRecord(101, 0.1, func(i int) float64 { return float64(i) })
	rec.PhaseTime = 100.0

	if CutWindow(rec, model.Window{Start: -1, End: 1}) {
		t.Error("window past the end of the trace accepted")
	}

	rec2 := synthRecord(101, 0.1, func(i int) float64 { return float64(i) })
	if CutWindow(rec2, model.Window{Start: -1, End: 1}) {
		t.Error("record without arrival accepted")
	}
}

func TestSNR(t *testing.T) {
	// Quiet before the arrival at t=5, ten times louder after.
	rec := synthRecord(1000, 0.01, func(i int) float64 {
		v := math.Sin(2 * math.Pi * float64(i) / 20)
		if float64(i)*0.01 < 5 {
			return 0.1 * v
		}
		return v
	})
	rec.PhaseTime = 5.0

	snr := SNR(rec, model.Window{Start: -4, End: -1}, model.Window{Start: 0.5, End: 4})
	if snr < 8 || snr > 12 {
		t.Errorf("SNR = %g, want about 10", snr)
	}
}

func TestSNRWindowMissesTrace(t *testing.T) {
	// Trace starts one second before the arrival; a [-60,-10] noise
	// window lies entirely before the first sample.
	rec := synthRecord(600, 0.01, func(i int) float64 {
		return math.Sin(2 * math.Pi * float64(i) / 20)
	})
	rec.PhaseTime = 1.0

	if snr := SNR(rec, model.Window{Start: -60, End: -10}, model.Window{Start: 0, End: 3}); snr != 0 {
		t.Errorf("SNR with noise window off the trace = %g, want 0", snr)
	}
	if snr := SNR(rec, model.Window{Start: -1, End: -0.5}, model.Window{Start: 30, End: 60}); snr != 0 {
		t.Errorf("SNR with signal window off the trace = %g, want 0", snr)
	}
}

func TestBandpass(t *testing.T) {
	// 5 Hz sine sampled at 100 Hz.
	rec := synthRecord(1000, 0.01, func(i int) float64 {
		return math.Sin(2 * math.Pi * 5 * float64(i) * 0.01)
	})
	inBand := rec.Clone()
	Bandpass(inBand, 1, 10)
	outBand := rec.Clone()
	Bandpass(outBand, 20, 40)

	inRMS := RMS(inBand)
	outRMS := RMS(outBand)
	if inRMS < 0.6 {
		t.Errorf("in-band RMS = %g, want close to 0.707", inRMS)
	}
	if outRMS > 0.01 {
		t.Errorf("out-of-band RMS = %g, want near zero", outRMS)
	}
}
