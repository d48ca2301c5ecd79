// Package interact is the synchronous request/response boundary between
// the pipeline and whatever interactive surface the user runs it from.
// The core never polls input devices; it asks for a window or a cutoff
// and any failure or refusal falls back to the supplied default.
package interact

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/seistools/phasealign/internal/cluster"
	"github.com/seistools/phasealign/internal/model"
)

// Interactor supplies the two human-in-the-loop decisions the pipeline
// can pause on. Implementations must return the default on cancellation
// rather than fail the run.
type Interactor interface {
	// RequestWindow asks for the correlation window, relative to the
	// predicted arrival, given the configured default and the records
	// about to be windowed.
	RequestWindow(def model.Window, records []*model.Record) (model.Window, error)

	// RequestClusterCutoff asks for the linkage-tree cut distance given
	// the merge sequence and the configured default.
	RequestClusterCutoff(merges []cluster.Merge, def float64) (float64, error)
}

// Auto accepts every default without asking. It is the non-interactive
// mode of the pipeline.
type Auto struct{}

func (Auto) RequestWindow(def model.Window, _ []*model.Record) (model.Window, error) {
	return def, nil
}

func (Auto) RequestClusterCutoff(_ []cluster.Merge, def float64) (float64, error) {
	return def, nil
}

// Terminal prompts on a line-oriented terminal. Empty input keeps the
// default; malformed input falls back to the default with a notice.
type Terminal struct {
	In  io.Reader
	Out io.Writer

	br *bufio.Reader
}

// NewTerminal returns a Terminal bound to stdin/stdout.
func NewTerminal() *Terminal {
	return &Terminal{In: os.Stdin, Out: os.Stdout}
}

func (t *Terminal) RequestWindow(def model.Window, records []*model.Record) (model.Window, error) {
	fmt.Fprintf(t.Out, "%d records windowed about predicted arrivals\n", len(records))
	fmt.Fprintf(t.Out, "window [start end] relative to arrival (enter for %g %g): ", def.Start, def.End)

	line, err := t.readLine()
	if err != nil || line == "" {
		return def, nil
	}
	fields := strings.Fields(line)
	if len(fields) != 2 {
		fmt.Fprintln(t.Out, "want two numbers, keeping default")
		return def, nil
	}
	start, err1 := strconv.ParseFloat(fields[0], 64)
	end, err2 := strconv.ParseFloat(fields[1], 64)
	if err1 != nil || err2 != nil || end <= start {
		fmt.Fprintln(t.Out, "bad window, keeping default")
		return def, nil
	}
	return model.Window{Start: start, End: end}, nil
}

func (t *Terminal) RequestClusterCutoff(merges []cluster.Merge, def float64) (float64, error) {
	fmt.Fprintln(t.Out, "linkage merge distances:")
	for _, m := range merges {
		fmt.Fprintf(t.Out, "  %4d + %4d  d=%.4f  n=%d\n", m.A, m.B, m.Distance, m.Size)
	}
	fmt.Fprintf(t.Out, "cut distance (enter for %g): ", def)

	line, err := t.readLine()
	if err != nil || line == "" {
		return def, nil
	}
	cutoff, err := strconv.ParseFloat(line, 64)
	if err != nil || cutoff < 0 {
		fmt.Fprintln(t.Out, "bad cutoff, keeping default")
		return def, nil
	}
	return cutoff, nil
}

func (t *Terminal) readLine() (string, error) {
	if t.br == nil {
		t.br = bufio.NewReader(t.In)
	}
	line, err := t.br.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && line != "" {
		// EOF after a final unterminated line still counts as input.
		return line, nil
	}
	return line, err
}
