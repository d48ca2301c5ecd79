package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/seistools/phasealign/internal/align"
	"github.com/seistools/phasealign/internal/cluster"
	"github.com/seistools/phasealign/internal/config"
	"github.com/seistools/phasealign/internal/filterbank"
	"github.com/seistools/phasealign/internal/geometry"
	"github.com/seistools/phasealign/internal/interact"
	"github.com/seistools/phasealign/internal/model"
	"github.com/seistools/phasealign/internal/phase"
	"github.com/seistools/phasealign/internal/report"
	"github.com/seistools/phasealign/internal/storage"
	"github.com/seistools/phasealign/internal/waveform"
	"github.com/seistools/phasealign/internal/xcorr"
	"github.com/seistools/phasealign/pkg/logger"
	"github.com/seistools/phasealign/pkg/utils"
)

// AlignService runs the relative arrival-time alignment pipeline.
type AlignService struct {
	cfg    *config.Config
	db     *storage.DBClient
	ui     interact.Interactor
	tt     *phase.Table
	outDir string
	log    *logger.Logger
}

// Options wires the service's collaborators. A nil DB disables the run
// catalog; a nil UI runs fully automatic.
type Options struct {
	DB          *storage.DBClient
	UI          interact.Interactor
	TravelTimes *phase.Table
	OutDir      string
}

func New(cfg *config.Config, opts Options) *AlignService {
	ui := opts.UI
	if ui == nil {
		ui = interact.Auto{}
	}
	outDir := opts.OutDir
	if outDir == "" {
		outDir = "."
	}
	return &AlignService{
		cfg:    cfg,
		db:     opts.DB,
		ui:     ui,
		tt:     opts.TravelTimes,
		outDir: outDir,
		log:    logger.GetLogger(),
	}
}

// RunSummary is the terminal artifact of one pipeline invocation.
type RunSummary struct {
	RunID   string
	Phase   string
	Event   string
	Records int
	Bands   []BandSummary
}

// BandSummary holds one filter trial's outcome.
type BandSummary struct {
	Band       model.FilterBand
	Kept       int
	Clusters   int
	Alignments []model.Alignment
}

// Align runs the full pipeline over the waveform directory.
func (s *AlignService) Align(ctx context.Context, dataDir string) (*RunSummary, error) {
	cfg := s.cfg

	// 1. Ingest waveforms; malformed records are dropped inside.
	records, err := waveform.LoadDirectory(dataDir)
	if err != nil {
		return nil, errors.Wrap(err, "ingestion")
	}
	records = waveform.UniformRate(records)
	s.log.Infof("loaded %d records from %s", len(records), dataDir)

	// 2. Geometry cut.
	records = geometry.Filter(records, geometry.Bounds{
		MinGcarc: cfg.MinGcarc, MaxGcarc: cfg.MaxGcarc,
		MinDist: cfg.MinDist, MaxDist: cfg.MaxDist,
		MinAz: cfg.MinAz, MaxAz: cfg.MaxAz,
		MinBaz: cfg.MinBaz, MaxBaz: cfg.MaxBaz,
	})
	s.log.Infof("%d records inside geometry windows", len(records))

	// 3. Predicted arrivals.
	records = phase.Annotate(records, s.tt)
	s.log.Infof("%d records with predicted %s arrivals", len(records), cfg.Phase)

	// 4. Pre-filter conditioning.
	for _, rec := range records {
		waveform.Detrend(rec)
	}

	// 5. Filter bank.
	mode, err := filterbank.ParseMode(cfg.BankMode)
	if err != nil {
		return nil, errors.Wrap(err, "filter bank")
	}
	bands, err := filterbank.Generate(cfg.BankLo, cfg.BankHi, cfg.BankWidth, cfg.BankOffset, mode)
	if err != nil {
		return nil, errors.Wrap(err, "filter bank")
	}
	s.log.Infof("filter bank: %d %s bands in [%g, %g] Hz",
		len(bands), cfg.BankMode, cfg.BankLo, cfg.BankHi)

	event, err := eventCode(cfg.Event)
	if err != nil {
		return nil, errors.Wrap(err, "event date")
	}

	summary := &RunSummary{
		Phase:   cfg.Phase,
		Event:   event,
		Records: len(records),
	}
	if s.db != nil {
		summary.RunID, err = s.db.RegisterRun(cfg.Phase, event, len(records), len(bands))
		if err != nil {
			return nil, errors.Wrap(err, "run catalog")
		}
	} else {
		summary.RunID = utils.GenerateUUID()
	}

	// 6. Per-filter trial loop. Every trial starts from the pristine
	// conditioned records.
	for bi, band := range bands {
		bandSum, err := s.runBand(ctx, records, band, bi, summary)
		if err != nil {
			return nil, errors.Wrapf(err, "band %d (%g Hz)", bi, band.Center)
		}
		summary.Bands = append(summary.Bands, *bandSum)
	}

	return summary, nil
}

func (s *AlignService) runBand(ctx context.Context, source []*model.Record, band model.FilterBand, bandIdx int, run *RunSummary) (*BandSummary, error) {
	cfg := s.cfg
	w := report.NewWriter(s.outDir, run.Phase, run.Event,
		fmt.Sprintf("%s-b%02d", utils.ShortID(run.RunID), bandIdx))
	s.log.Infof("band %d: %g-%g Hz", bandIdx, band.Low, band.High)

	recs := make([]*model.Record, len(source))
	for i, rec := range source {
		recs[i] = rec.Clone()
	}

	// Bandpass and SNR.
	var cut []string
	kept := recs[:0]
	for _, rec := range recs {
		waveform.Bandpass(rec, band.Low, band.High)
		rec.SNR = waveform.SNR(rec, cfg.NoiseWindow, cfg.SignalWindow)
		if cfg.SNRCut > 0 && rec.SNR < cfg.SNRCut {
			cut = append(cut, rec.Name)
			continue
		}
		kept = append(kept, rec)
	}
	recs = kept
	w.SNRTable(band, cfg.SNRCut, recs, cut)

	// Window about the predicted arrival, optionally user-adjusted.
	win := cfg.Window
	if cfg.Interactive {
		adjusted, err := s.ui.RequestWindow(win, recs)
		if err != nil {
			s.log.Warnf("window request failed, keeping default: %v", err)
		} else {
			win = adjusted
		}
	}
	windowed := recs[:0]
	for _, rec := range recs {
		if !waveform.CutWindow(rec, win) {
			s.log.Warnf("dropping %s: window misses trace", rec.Name)
			continue
		}
		waveform.Taper(rec, cfg.TaperFrac)
		windowed = append(windowed, rec)
	}
	recs = windowed
	w.WindowTable(win, recs)
	w.TaperTable(cfg.TaperFrac, recs)

	// Correlate every pair.
	corr, err := xcorr.Correlate(ctx, recs, xcorr.Options{
		NumPeaks: cfg.NumPeaks,
		Absolute: cfg.AbsPeaks,
		PadPow2:  cfg.PadPow2,
		MaxLag:   cfg.MaxLag,
		Workers:  cfg.Workers,
	})
	if err != nil {
		return nil, err
	}

	sum := &BandSummary{Band: band, Kept: len(recs)}
	if len(recs) < 2 {
		// Zero or one record is a valid, empty trial.
		s.log.Warnf("band %d: %d records left, nothing to correlate", bandIdx, len(recs))
		return sum, nil
	}

	// Cluster on first-peak dissimilarity.
	method, err := cluster.ParseMethod(cfg.LinkageMethod)
	if err != nil {
		return nil, err
	}
	merges, err := cluster.Linkage(cluster.Dissimilarity(corr, len(recs)), method)
	if err != nil {
		return nil, err
	}
	cutoff := cfg.ClusterCutoff
	if cfg.Interactive {
		chosen, err := s.ui.RequestClusterCutoff(merges, cutoff)
		if err != nil {
			s.log.Warnf("cutoff request failed, keeping default: %v", err)
		} else {
			cutoff = chosen
		}
	}
	ids := cluster.Cut(merges, len(recs), cutoff)
	for i, rec := range recs {
		rec.ClusterID = ids[i]
	}
	w.LinkageTable(cfg.LinkageMethod, merges)
	w.ClusterTable(cutoff, recs)

	sum.Alignments = s.solveClusters(recs, corr, ids)
	sum.Clusters = maxID(ids)

	if s.db != nil {
		if err := s.db.StoreResults(run.RunID, bandIdx, sum.Alignments); err != nil {
			return nil, errors.Wrap(err, "run catalog")
		}
	}
	return sum, nil
}

// solveClusters runs the alignment solver and preen pass per cluster.
// Underdetermined clusters are reported unaligned, never fatal.
func (s *AlignService) solveClusters(recs []*model.Record, corr *model.CorrSet, ids []int) []model.Alignment {
	cfg := s.cfg

	obs := make([]align.Observation, 0, len(corr.Pairs))
	for p, pair := range corr.Pairs {
		if len(corr.Coeff[p]) == 0 || corr.Polarity[p][0] == 0 {
			continue
		}
		if ids[pair[0]] != ids[pair[1]] {
			// Clusters are solved independently.
			continue
		}
		obs = append(obs, align.Observation{
			I:        pair[0],
			J:        pair[1],
			Lag:      corr.Lag[p][0],
			Weight:   corr.Coeff[p][0],
			Polarity: corr.Polarity[p][0],
			AmpRatio: corr.AmpRatio[p],
		})
	}

	alignments := make([]model.Alignment, len(recs))
	for i, rec := range recs {
		alignments[i] = model.Alignment{
			Record:    rec.Name,
			ClusterID: rec.ClusterID,
			AmpScale:  1,
			Polarity:  1,
		}
	}

	for cid := 1; cid <= maxID(ids); cid++ {
		var members []int
		for i, id := range ids {
			if id == cid {
				members = append(members, i)
			}
		}
		sol, removed, err := align.Preen(members, obs, cfg.PreenTol, cfg.PreenMinRecords)
		if err != nil {
			s.log.Warnf("cluster %d unaligned: %v", cid, err)
			continue
		}
		for li, gi := range sol.Members {
			a := &alignments[gi]
			a.TimeShift = sol.Shift[li]
			a.AmpScale = sol.Amp[li]
			a.Polarity = sol.Polarity[li]
			a.Residual = sol.Residual
			a.Aligned = true
		}
		for _, gi := range removed {
			s.log.Warnf("cluster %d: preened %s", cid, recs[gi].Name)
		}
	}
	return alignments
}

func maxID(ids []int) int {
	max := 0
	for _, id := range ids {
		if id > max {
			max = id
		}
	}
	return max
}

// eventCode converts a YYYY-MM-DD configuration date to the YYYY.DDD
// code used in diagnostic file names.
func eventCode(date string) (string, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", err
	}
	return utils.EventCode(t.Year(), int(t.Month()), t.Day()), nil
}
