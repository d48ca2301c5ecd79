package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/seistools/phasealign/internal/cluster"
	"github.com/seistools/phasealign/internal/model"
)

func testRecords() []*model.Record {
	return []*model.Record{
		{Name: "ANMO", SNR: 4.2, PhaseTime: 410, Begin: 400, End: 460, ClusterID: 1, Data: make([]float64, 60)},
		{Name: "COLA", SNR: 2.8, PhaseTime: 415, Begin: 405, End: 465, ClusterID: 2, Data: make([]float64, 60)},
	}
}

func TestFilename(t *testing.T) {
	w := NewWriter("/tmp/out", "P", "2004.060", "ab12cd34-b00")

	got := w.Filename("qcksnr")
	want := filepath.Join("/tmp/out", "P.event2004.060.runab12cd34-b00.qcksnr")
	if got != want {
		t.Errorf("Filename = %q, want %q", got, want)
	}
}

func TestSNRTable(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "P", "2004.060", "run01")

	w.SNRTable(model.FilterBand{Center: 0.05, Low: 0.045, High: 0.055}, 3.0, testRecords(), []string{"WEAK"})

	data, err := os.ReadFile(w.Filename("qcksnr"))
	if err != nil {
		t.Fatalf("table not written: %v", err)
	}
	text := string(data)
	for _, want := range []string{"# band center=0.05", "ANMO\t4.2\tkept", "WEAK\t\tcut"} {
		if !strings.Contains(text, want) {
			t.Errorf("table missing %q:\n%s", want, text)
		}
	}
}

func TestClusterAndLinkageTables(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "P", "2004.060", "run01")

	w.ClusterTable(0.2, testRecords())
	w.LinkageTable("average", []cluster.Merge{
		{A: 0, B: 1, Distance: 0.13, Size: 2},
	})

	clusterData, err := os.ReadFile(w.Filename("cluster"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(clusterData), "COLA\t2") {
		t.Errorf("cluster table missing assignment:\n%s", clusterData)
	}

	linkData, err := os.ReadFile(w.Filename("linkage"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(linkData), "0\t1\t0.13\t2") {
		t.Errorf("linkage table missing merge row:\n%s", linkData)
	}
}

func TestWindowAndTaperTables(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "P", "2004.060", "run01")

	w.WindowTable(model.Window{Start: -10, End: 50}, testRecords())
	w.TaperTable(0.1, testRecords())

	for _, suffix := range []string{"window", "taper"} {
		if _, err := os.Stat(w.Filename(suffix)); err != nil {
			t.Errorf("%s table not written: %v", suffix, err)
		}
	}
}

func TestWriteFailureIsNotFatal(t *testing.T) {
	// A directory path that is actually a file makes every write fail;
	// the writer must swallow it.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	w := NewWriter(filepath.Join(blocker, "sub"), "P", "2004.060", "run01")
	w.SNRTable(model.FilterBand{}, 0, testRecords(), nil) // must not panic
}
