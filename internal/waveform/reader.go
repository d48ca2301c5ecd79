package waveform

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/joho/godotenv"

	"github.com/seistools/phasealign/internal/model"
	"github.com/seistools/phasealign/pkg/logger"
	"github.com/seistools/phasealign/pkg/utils"
)

// DataError marks a malformed or incomplete input record. Records that
// fail with a DataError are dropped with a warning; the run continues.
type DataError struct {
	Path string
	Err  error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("record %s: %v", e.Path, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

var errNotTimeseries = errors.New("not a timeseries file")

// ReadTrace reads one waveform file plus its sidecar header. The trace
// is a mono PCM WAV; the seismic header fields live in a flat KEY=VALUE
// file next to it with a .hdr extension.
func ReadTrace(path string) (*model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DataError{Path: path, Err: err}
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, &DataError{Path: path, Err: errNotTimeseries}
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, &DataError{Path: path, Err: fmt.Errorf("decoding PCM: %w", err)}
	}
	if buf.Format.NumChannels != 1 {
		return nil, &DataError{Path: path, Err: fmt.Errorf("%d channels, want mono", buf.Format.NumChannels)}
	}

	rec := &model.Record{
		Name:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Delta:     1.0 / float64(buf.Format.SampleRate),
		PhaseTime: math.NaN(),
		Data:      pcmToFloat64(buf, int(dec.BitDepth)),
	}
	rec.End = rec.Begin + float64(len(rec.Data)-1)*rec.Delta

	if err := readHeader(path, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func pcmToFloat64(buf *audio.IntBuffer, bitDepth int) []float64 {
	scale := 1.0 / float64(int(1)<<(bitDepth-1))
	out := make([]float64, len(buf.Data))
	for i, s := range buf.Data {
		out[i] = float64(s) * scale
	}
	return out
}

// readHeader fills rec from the sidecar .hdr file. B, GCARC, DIST, AZ
// and BAZ are required; T0 (predicted arrival), STATION, NETWORK and
// CHANNEL are optional.
func readHeader(tracePath string, rec *model.Record) error {
	hdrPath := strings.TrimSuffix(tracePath, filepath.Ext(tracePath)) + ".hdr"
	kv, err := godotenv.Read(hdrPath)
	if err != nil {
		return &DataError{Path: tracePath, Err: fmt.Errorf("reading header: %w", err)}
	}

	required := map[string]*float64{
		"B":     &rec.Begin,
		"GCARC": &rec.Gcarc,
		"DIST":  &rec.Dist,
		"AZ":    &rec.Az,
		"BAZ":   &rec.Baz,
	}
	for key, dst := range required {
		val, ok := kv[key]
		if !ok {
			return &DataError{Path: tracePath, Err: fmt.Errorf("header field %s missing", key)}
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return &DataError{Path: tracePath, Err: fmt.Errorf("header field %s: %w", key, err)}
		}
		*dst = f
	}
	rec.End = rec.Begin + float64(len(rec.Data)-1)*rec.Delta

	if val, ok := kv["T0"]; ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return &DataError{Path: tracePath, Err: fmt.Errorf("header field T0: %w", err)}
		}
		rec.PhaseTime = f
	}
	rec.Station = kv["STATION"]
	rec.Network = kv["NETWORK"]
	rec.Channel = kv["CHANNEL"]
	return nil
}

// UniformRate keeps records whose sample interval matches the first
// record's. Mixed-rate inputs would silently mis-scale correlation lags,
// so mismatched records are dropped with a warning.
func UniformRate(records []*model.Record) []*model.Record {
	if len(records) == 0 {
		return records
	}
	log := logger.GetLogger()
	ref := records[0].Delta
	kept := make([]*model.Record, 0, len(records))
	for _, rec := range records {
		if math.Abs(rec.Delta-ref) > ref*1e-9 {
			log.Warnf("dropping %s: sample interval %g, run uses %g", rec.Name, rec.Delta, ref)
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

// LoadDirectory reads every .wav trace in dir. Malformed records are
// dropped with a warning; only directory-level failures are returned.
func LoadDirectory(dir string) ([]*model.Record, error) {
	paths, err := utils.ListFilesWithExt(dir, ".wav")
	if err != nil {
		return nil, err
	}

	log := logger.GetLogger()
	records := make([]*model.Record, 0, len(paths))
	for _, p := range paths {
		rec, err := ReadTrace(p)
		if err != nil {
			var de *DataError
			if errors.As(err, &de) {
				log.Warnf("dropping %s", de.Error())
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
