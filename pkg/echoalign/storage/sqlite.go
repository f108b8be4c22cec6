// Package storage persists analysis reports so the orchestrator and CLI can
// review why an offset was trusted or flagged after the fact.
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

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
)

const DefaultDBFile = "echoalign.sqlite3"
const errDBClientNil = "db client is nil"

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// AnalysisJob is one persisted master/dub comparison.
type AnalysisJob struct {
	ID                  string `gorm:"primaryKey;type:varchar(36)"`
	MasterPath          string `gorm:"index:idx_master"`
	DubPath             string `gorm:"index:idx_dub"`
	OffsetSeconds       float64
	OffsetSamples       int
	Confidence          float64
	MethodAgreement     float64
	Status              string
	Drift               string
	VerificationOutcome string
	CreatedAt           time.Time
}

// MethodRecord is the per-method diagnostic row backing a job's provenance.
type MethodRecord struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	JobID         string `gorm:"type:varchar(36);index:idx_job"`
	Method        string
	OffsetSeconds float64
	Confidence    float64
	Prominence    float64
	Advisory      bool
	FailReason    string
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("ECHOALIGN_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !os.IsExist(err) {
		if filepath.Dir(dbPath) != "." {
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

	if err := db.AutoMigrate(&AnalysisJob{}, &MethodRecord{}); err != nil {
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

// SaveReport persists a consensus result with its full method breakdown.
func (c *DBClient) SaveReport(jobID, masterPath, dubPath string, res *model.ConsensusResult) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}

	job := AnalysisJob{
		ID:              jobID,
		MasterPath:      masterPath,
		DubPath:         dubPath,
		OffsetSeconds:   res.OffsetSeconds,
		OffsetSamples:   res.OffsetSamples,
		Confidence:      res.Confidence,
		MethodAgreement: res.MethodAgreement,
		Status:          res.Status.String(),
		Drift:           res.Drift.String(),
	}
	if res.Decision != nil {
		job.VerificationOutcome = res.Decision.Outcome.String()
	}

	records := make([]MethodRecord, 0, len(res.Methods)+len(res.Failures))
	for _, m := range res.Methods {
		records = append(records, MethodRecord{
			JobID:         jobID,
			Method:        m.Method.String(),
			OffsetSeconds: m.OffsetSeconds,
			Confidence:    m.Confidence,
			Prominence:    m.PeakProminence,
			Advisory:      m.Advisory,
		})
	}
	for method, failure := range res.Failures {
		records = append(records, MethodRecord{
			JobID:      jobID,
			Method:     method.String(),
			FailReason: failure.Error(),
		})
	}

	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&job).Error; err != nil {
			return fmt.Errorf("creating job row: %w", err)
		}
		if len(records) > 0 {
			if err := tx.Create(&records).Error; err != nil {
				return fmt.Errorf("creating method records: %w", err)
			}
		}
		return nil
	})
}

// GetJob returns one job and its method breakdown.
func (c *DBClient) GetJob(jobID string) (*AnalysisJob, []MethodRecord, error) {
	if c == nil || c.DB == nil {
		return nil, nil, errors.New(errDBClientNil)
	}

	var job AnalysisJob
	if err := c.DB.First(&job, "id = ?", jobID).Error; err != nil {
		return nil, nil, fmt.Errorf("querying job %s: %w", jobID, err)
	}

	var records []MethodRecord
	if err := c.DB.Where("job_id = ?", jobID).Find(&records).Error; err != nil {
		return nil, nil, fmt.Errorf("querying method records: %w", err)
	}
	return &job, records, nil
}

// ListJobs returns the most recent jobs, newest first.
func (c *DBClient) ListJobs(limit int) ([]AnalysisJob, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	if limit <= 0 {
		limit = 50
	}
	var jobs []AnalysisJob
	if err := c.DB.Order("created_at desc").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

// DeleteJob removes a job and its method records.
func (c *DBClient) DeleteJob(jobID string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ?", jobID).Delete(&MethodRecord{}).Error; err != nil {
			return fmt.Errorf("deleting method records: %w", err)
		}
		if err := tx.Delete(&AnalysisJob{}, "id = ?", jobID).Error; err != nil {
			return fmt.Errorf("deleting job: %w", err)
		}
		return nil
	})
}
