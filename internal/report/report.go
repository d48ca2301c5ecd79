// Package report writes the per-stage diagnostic tables. Reporting is
// purely observational: a failed write is logged and the run continues.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/seistools/phasealign/internal/cluster"
	"github.com/seistools/phasealign/internal/model"
	"github.com/seistools/phasealign/pkg/logger"
	"github.com/seistools/phasealign/pkg/utils"
)

// Writer names and writes the diagnostic files of one run. File names
// follow <phase>.event<date>.run<id>.<suffix>.
type Writer struct {
	Dir   string
	Phase string
	Event string // YYYY.DDD event code
	RunID string // display run id, band-qualified by the caller

	log *logger.Logger
}

func NewWriter(dir, phase, event, runID string) *Writer {
	return &Writer{
		Dir:   dir,
		Phase: phase,
		Event: event,
		RunID: runID,
		log:   logger.GetLogger(),
	}
}

// Filename returns the full path for one diagnostic suffix.
func (w *Writer) Filename(suffix string) string {
	name := fmt.Sprintf("%s.event%s.run%s.%s", w.Phase, w.Event, w.RunID, suffix)
	return filepath.Join(w.Dir, name)
}

// write emits a header block followed by a tab-delimited table. Errors
// are logged, never returned: diagnostics must not abort the run.
func (w *Writer) write(suffix string, header []string, columns []string, rows [][]string) {
	path := w.Filename(suffix)
	var sb strings.Builder
	for _, h := range header {
		sb.WriteString("# " + h + "\n")
	}
	sb.WriteString(strings.Join(columns, "\t") + "\n")
	for _, row := range rows {
		sb.WriteString(strings.Join(row, "\t") + "\n")
	}

	if err := utils.MakeDir(w.Dir); err != nil {
		w.log.Warnf("report %s: %v", suffix, err)
		return
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		w.log.Warnf("report %s: %v", suffix, err)
		return
	}
	w.log.Debugf("wrote %s", path)
}

func f(v float64) string { return strconv.FormatFloat(v, 'g', 6, 64) }

// SNRTable records the per-record SNR measurements and which records
// the cut removed.
func (w *Writer) SNRTable(band model.FilterBand, threshold float64, records []*model.Record, cut []string) {
	rows := make([][]string, 0, len(records)+len(cut))
	for _, rec := range records {
		rows = append(rows, []string{rec.Name, f(rec.SNR), "kept"})
	}
	for _, name := range cut {
		rows = append(rows, []string{name, "", "cut"})
	}
	w.write("qcksnr", []string{
		fmt.Sprintf("band center=%s low=%s high=%s", f(band.Center), f(band.Low), f(band.High)),
		fmt.Sprintf("snr threshold=%s cut=%d kept=%d", f(threshold), len(cut), len(records)),
	}, []string{"record", "snr", "status"}, rows)
}

// WindowTable records the correlation window applied to each record.
func (w *Writer) WindowTable(win model.Window, records []*model.Record) {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{rec.Name, f(rec.PhaseTime), f(rec.Begin), f(rec.End)})
	}
	w.write("window", []string{
		fmt.Sprintf("window start=%s end=%s relative to arrival", f(win.Start), f(win.End)),
	}, []string{"record", "arrival", "begin", "end"}, rows)
}

// TaperTable records the taper parameters per record.
func (w *Writer) TaperTable(frac float64, records []*model.Record) {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{rec.Name, f(frac), strconv.Itoa(len(rec.Data))})
	}
	w.write("taper", []string{
		fmt.Sprintf("hann taper fraction=%s", f(frac)),
	}, []string{"record", "frac", "samples"}, rows)
}

// ClusterTable records the flat cluster assignment.
func (w *Writer) ClusterTable(cutoff float64, records []*model.Record) {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{rec.Name, strconv.Itoa(rec.ClusterID)})
	}
	w.write("cluster", []string{
		fmt.Sprintf("cut distance=%s", f(cutoff)),
	}, []string{"record", "cluster"}, rows)
}

// LinkageTable records the full merge sequence of the linkage tree.
func (w *Writer) LinkageTable(method string, merges []cluster.Merge) {
	rows := make([][]string, 0, len(merges))
	for _, m := range merges {
		rows = append(rows, []string{
			strconv.Itoa(m.A), strconv.Itoa(m.B), f(m.Distance), strconv.Itoa(m.Size),
		})
	}
	w.write("linkage", []string{
		fmt.Sprintf("linkage method=%s merges=%d", method, len(merges)),
	}, []string{"a", "b", "distance", "size"}, rows)
}
