package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/seistools/phasealign/internal/model"
	"github.com/seistools/phasealign/pkg/utils"
)

const DefaultDBFile = "phasealign.sqlite3"
const errDBClientNil = "db client is nil"

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Run is one pipeline invocation: the event/phase it aligned and the
// headline counts, keyed by a UUID.
type Run struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Phase     string `gorm:"index:idx_run_phase"`
	Event     string `gorm:"index:idx_run_event"`
	Records   int
	Bands     int
	CreatedAt time.Time
}

// RecordResult is one record's alignment outcome for one filter band.
type RecordResult struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"type:varchar(36);index:idx_result_run"`
	Band      int
	Record    string
	ClusterID int
	TimeShift float64
	AmpScale  float64
	Polarity  int
	Residual  float64
	Aligned   bool
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("PHASEALIGN_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Run{}, &RecordResult{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// RegisterRun creates the run row and returns its id.
func (c *DBClient) RegisterRun(phase, event string, records, bands int) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errDBClientNil)
	}
	run := Run{
		ID:      utils.GenerateUUID(),
		Phase:   phase,
		Event:   event,
		Records: records,
		Bands:   bands,
	}
	if err := c.DB.Create(&run).Error; err != nil {
		return "", fmt.Errorf("creating run: %w", err)
	}
	return run.ID, nil
}

// StoreResults persists one band's alignments for a run.
func (c *DBClient) StoreResults(runID string, band int, alignments []model.Alignment) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if len(alignments) == 0 {
		return nil
	}
	rows := make([]RecordResult, 0, len(alignments))
	for _, a := range alignments {
		rows = append(rows, RecordResult{
			RunID:     runID,
			Band:      band,
			Record:    a.Record,
			ClusterID: a.ClusterID,
			TimeShift: a.TimeShift,
			AmpScale:  a.AmpScale,
			Polarity:  a.Polarity,
			Residual:  a.Residual,
			Aligned:   a.Aligned,
		})
	}
	if err := c.DB.CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("batch insert results: %w", err)
	}
	return nil
}

// ListRuns returns all runs, newest first.
func (c *DBClient) ListRuns() ([]Run, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var runs []Run
	if err := c.DB.Order("created_at desc").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// GetRunResults returns a run's results ordered by band and record.
func (c *DBClient) GetRunResults(runID string) ([]RecordResult, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []RecordResult
	err := c.DB.Where("run_id = ?", runID).
		Order("band, record").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	return rows, nil
}

// DeleteRun removes a run and its results.
func (c *DBClient) DeleteRun(runID string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&RecordResult{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", runID).Delete(&Run{}).Error
	})
}
