// Package phase attaches predicted phase arrival times to records from
// a tabulated travel-time curve.
package phase

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/seistools/phasealign/internal/model"
	"github.com/seistools/phasealign/pkg/logger"
)

// ErrOutOfRange marks a distance outside the tabulated curve.
var ErrOutOfRange = errors.New("phase: distance outside travel-time table")

// Table is a travel-time curve sampled at increasing great-circle
// distances (degrees), with arrival times in seconds after origin.
type Table struct {
	Dist []float64
	Time []float64
}

// LoadTable reads a two-column whitespace-delimited travel-time file.
// Lines starting with # are comments. Rows are sorted by distance.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tbl := &Table{}
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("phase: %s:%d: want two columns", path, line)
		}
		d, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("phase: %s:%d: %w", path, line, err)
		}
		t, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("phase: %s:%d: %w", path, line, err)
		}
		tbl.Dist = append(tbl.Dist, d)
		tbl.Time = append(tbl.Time, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(tbl.Dist) < 2 {
		return nil, fmt.Errorf("phase: %s: need at least two rows", path)
	}

	sort.Sort(byDist{tbl})
	return tbl, nil
}

type byDist struct{ t *Table }

func (s byDist) Len() int           { return len(s.t.Dist) }
func (s byDist) Less(i, j int) bool { return s.t.Dist[i] < s.t.Dist[j] }
func (s byDist) Swap(i, j int) {
	s.t.Dist[i], s.t.Dist[j] = s.t.Dist[j], s.t.Dist[i]
	s.t.Time[i], s.t.Time[j] = s.t.Time[j], s.t.Time[i]
}

// Interpolate returns the linearly interpolated arrival time at the
// given great-circle distance.
func (t *Table) Interpolate(gcarc float64) (float64, error) {
	n := len(t.Dist)
	if gcarc < t.Dist[0] || gcarc > t.Dist[n-1] {
		return 0, fmt.Errorf("%w: %g", ErrOutOfRange, gcarc)
	}
	i := sort.SearchFloat64s(t.Dist, gcarc)
	if i < n && t.Dist[i] == gcarc {
		return t.Time[i], nil
	}
	// t.Dist[i-1] < gcarc < t.Dist[i]
	frac := (gcarc - t.Dist[i-1]) / (t.Dist[i] - t.Dist[i-1])
	return t.Time[i-1] + frac*(t.Time[i]-t.Time[i-1]), nil
}

// Annotate fills each record's predicted arrival from the table unless
// the record already carries one. Records whose distance falls outside
// the table are dropped with a warning; a nil table keeps only records
// with a pre-set arrival.
func Annotate(records []*model.Record, tbl *Table) []*model.Record {
	log := logger.GetLogger()
	kept := make([]*model.Record, 0, len(records))
	for _, rec := range records {
		if rec.HasArrival() {
			kept = append(kept, rec)
			continue
		}
		if tbl == nil {
			log.Warnf("dropping %s: no predicted arrival and no travel-time table", rec.Name)
			continue
		}
		t, err := tbl.Interpolate(rec.Gcarc)
		if err != nil {
			log.Warnf("dropping %s: %v", rec.Name, err)
			continue
		}
		rec.PhaseTime = t
		kept = append(kept, rec)
	}
	return kept
}
