// Package filterbank generates the ordered sequence of bandpass trial
// bands the alignment pipeline walks through.
package filterbank

import (
	"errors"
	"fmt"

	"github.com/seistools/phasealign/internal/model"
)

// Mode selects how band centers and corners are spaced.
type Mode int

const (
	// Constant spaces centers linearly and gives every band the same
	// absolute width.
	Constant Mode = iota
	// Variable spaces centers geometrically and scales each band's
	// width with its center frequency.
	Variable
)

// Sentinel validation errors. Callers branch with errors.Is.
var (
	ErrBadRange  = errors.New("filterbank: range must be two positive ascending frequencies")
	ErrBadWidth  = errors.New("filterbank: width must be a positive scalar")
	ErrBadOffset = errors.New("filterbank: offset must be a positive scalar")
	ErrBadMode   = errors.New("filterbank: unknown mode")
)

// ParseMode maps a configuration string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "constant":
		return Constant, nil
	case "variable":
		return Variable, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrBadMode, s)
	}
}

// Generate produces the ordered band sequence for the frequency range
// [lo, hi].
//
// Constant mode: centers lo, lo+offset, lo+2*offset, ... up to hi, each
// with corners center±width/2. (The historical width/3 upper corner was
// an asymmetric passband and is not reproduced.)
//
// Variable mode: the first center is lo; each band spans
// center*(1±width/2) and the next center is center*(1+offset); the
// first center exceeding hi is discarded.
func Generate(lo, hi, width, offset float64, mode Mode) ([]model.FilterBand, error) {
	if lo <= 0 || hi <= 0 || lo >= hi {
		return nil, fmt.Errorf("%w: [%g, %g]", ErrBadRange, lo, hi)
	}
	if width <= 0 {
		return nil, fmt.Errorf("%w: %g", ErrBadWidth, width)
	}
	if offset <= 0 {
		return nil, fmt.Errorf("%w: %g", ErrBadOffset, offset)
	}

	var bands []model.FilterBand
	switch mode {
	case Constant:
		// Index-based stepping avoids accumulated float drift; the tiny
		// tolerance keeps hi itself inside the bank.
		for i := 0; ; i++ {
			center := lo + float64(i)*offset
			if center > hi*(1+1e-9) {
				break
			}
			bands = append(bands, model.FilterBand{
				Center: center,
				Low:    center - width/2,
				High:   center + width/2,
			})
		}
	case Variable:
		for center := lo; center <= hi*(1+1e-9); center *= 1 + offset {
			bands = append(bands, model.FilterBand{
				Center: center,
				Low:    center * (1 - width/2),
				High:   center * (1 + width/2),
			})
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrBadMode, mode)
	}
	return bands, nil
}
