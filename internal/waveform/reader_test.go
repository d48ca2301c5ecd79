package waveform

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/seistools/phasealign/internal/model"
)

// writeTestTrace encodes a 16-bit mono WAV plus its sidecar header.
func writeTestTrace(t *testing.T, dir, name string, samples []int, header string) string {
	t.Helper()
	path := filepath.Join(dir, name+".wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 100, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 100},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	if header != "" {
		hdrPath := filepath.Join(dir, name+".hdr")
		if err := os.WriteFile(hdrPath, []byte(header), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

const goodHeader = `B=-10.5
GCARC=40
DIST=4400
AZ=90
BAZ=270
T0=410
STATION=ANMO
NETWORK=IU
CHANNEL=BHZ
`

func TestReadTrace(t *testing.T) {
	dir := t.TempDir()
	path := writeTestTrace(t, dir, "ANMO", []int{0, 16384, -16384, 8192}, goodHeader)

	rec, err := ReadTrace(path)
	if err != nil {
		t.Fatal(err)
	}

	if rec.Name != "ANMO" || rec.Station != "ANMO" || rec.Network != "IU" || rec.Channel != "BHZ" {
		t.Errorf("identity fields wrong: %+v", rec)
	}
	if math.Abs(rec.Delta-0.01) > 1e-12 {
		t.Errorf("delta = %g, want 0.01", rec.Delta)
	}
	if rec.Begin != -10.5 || rec.Gcarc != 40 || rec.Dist != 4400 || rec.Az != 90 || rec.Baz != 270 {
		t.Errorf("header fields wrong: %+v", rec)
	}
	if !rec.HasArrival() || rec.PhaseTime != 410 {
		t.Errorf("arrival = %g, want 410", rec.PhaseTime)
	}
	if len(rec.Data) != 4 {
		t.Fatalf("samples = %d, want 4", len(rec.Data))
	}
	if math.Abs(rec.Data[1]-0.5) > 1e-9 {
		t.Errorf("sample scaling: got %g, want 0.5", rec.Data[1])
	}
	wantEnd := -10.5 + 3*0.01
	if math.Abs(rec.End-wantEnd) > 1e-12 {
		t.Errorf("end = %g, want %g", rec.End, wantEnd)
	}
}

func TestReadTraceOptionalArrival(t *testing.T) {
	dir := t.TempDir()
	path := writeTestTrace(t, dir, "NOARR", []int{1, 2, 3},
		"B=0\nGCARC=40\nDIST=4400\nAZ=90\nBAZ=270\n")

	rec, err := ReadTrace(path)
	if err != nil {
		t.Fatal(err)
	}
	if rec.HasArrival() {
		t.Error("record without T0 should have no arrival")
	}
}

func TestReadTraceMissingHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeTestTrace(t, dir, "BARE", []int{1, 2, 3}, "")

	_, err := ReadTrace(path)
	var de *DataError
	if !asDataError(err, &de) {
		t.Fatalf("err = %v, want DataError", err)
	}
}

func TestReadTraceNotTimeseries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "junk.wav")
	if err := os.WriteFile(path, []byte("definitely not RIFF"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := ReadTrace(path)
	var de *DataError
	if !asDataError(err, &de) {
		t.Fatalf("err = %v, want DataError", err)
	}
}

func TestReadTraceMissingHeaderField(t *testing.T) {
	dir := t.TempDir()
	path := writeTestTrace(t, dir, "NOGEO", []int{1, 2, 3}, "B=0\nAZ=90\n")

	_, err := ReadTrace(path)
	var de *DataError
	if !asDataError(err, &de) {
		t.Fatalf("err = %v, want DataError", err)
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeTestTrace(t, dir, "GOOD1", []int{1, 2, 3}, goodHeader)
	writeTestTrace(t, dir, "GOOD2", []int{4, 5, 6}, goodHeader)
	writeTestTrace(t, dir, "NOHDR", []int{1, 2, 3}, "")
	if err := os.WriteFile(filepath.Join(dir, "junk.wav"), []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	records, err := LoadDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("loaded %d records, want 2 (bad ones dropped)", len(records))
	}
	if records[0].Name != "GOOD1" || records[1].Name != "GOOD2" {
		t.Errorf("records out of order: %s, %s", records[0].Name, records[1].Name)
	}
}

func asDataError(err error, target **DataError) bool {
	return errors.As(err, target)
}

func TestUniformRate(t *testing.T) {
	records := []*model.Record{
		{Name: "A", Delta: 0.01},
		{Name: "B", Delta: 0.02},
		{Name: "C", Delta: 0.01},
	}

	kept := UniformRate(records)
	if len(kept) != 2 {
		t.Fatalf("kept %d records, want 2", len(kept))
	}
	if kept[0].Name != "A" || kept[1].Name != "C" {
		t.Errorf("kept %s, %s; want the 100 Hz pair", kept[0].Name, kept[1].Name)
	}

	if out := UniformRate(nil); len(out) != 0 {
		t.Error("empty input must stay empty")
	}
}
