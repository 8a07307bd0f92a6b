// Package storage persists audit reports and provider call logs.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"paper-auditor/config"
	"paper-auditor/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when no stored report has the requested run id.
var ErrNotFound = errors.New("report not found")

// OpenPostgres connects to the configured database and migrates the schema.
func OpenPostgres(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	log.Info("Successfully connected to database.", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))

	log.Info("Running database auto-migration...")
	if err := db.AutoMigrate(&models.AuditRecord{}, &models.APICall{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return db, nil
}

// ReportStore keeps finished audit runs.
type ReportStore struct {
	db *gorm.DB
}

func NewReportStore(db *gorm.DB) *ReportStore {
	return &ReportStore{db: db}
}

// Save stores report. model names the language model used, if any.
func (s *ReportStore) Save(ctx context.Context, report *models.AnalysisReport, model, archiveKey string) (*models.AuditRecord, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	rec := &models.AuditRecord{
		RunID:          report.RunID,
		PaperTitle:     report.PaperTitle,
		Model:          model,
		TotalCitations: report.TotalCitations,
		PassedCount:    report.PassedCount,
		SuspectCount:   report.SuspectCount,
		MissingCount:   report.MissingCount,
		ArchiveKey:     archiveKey,
		Report:         data,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("saving audit record: %w", err)
	}
	return rec, nil
}

// Get loads the report of runID.
func (s *ReportStore) Get(ctx context.Context, runID string) (*models.AnalysisReport, error) {
	var rec models.AuditRecord
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var report models.AnalysisReport
	if err := json.Unmarshal(rec.Report, &report); err != nil {
		return nil, fmt.Errorf("decoding stored report %s: %w", runID, err)
	}
	return &report, nil
}

// Recent lists the latest audit records without their report payload.
func (s *ReportStore) Recent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	var recs []models.AuditRecord
	err := s.db.WithContext(ctx).
		Omit("report").
		Order("created_at desc").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// CallLogStore appends provider call entries to the api_calls table.
type CallLogStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewCallLogStore(db *gorm.DB, logger *zap.Logger) *CallLogStore {
	return &CallLogStore{db: db, logger: logger}
}

// Record implements gateway.CallSink. Write failures are only logged.
func (s *CallLogStore) Record(ctx context.Context, call *models.APICall) {
	entry := *call
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(&entry).Error; err != nil {
		s.logger.Warn("Failed to persist provider call", zap.String("service", call.Service), zap.Error(err))
	}
}

// Calls returns the call log of one audit run in call order.
func (s *CallLogStore) Calls(ctx context.Context, runID string) ([]models.APICall, error) {
	var calls []models.APICall
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("timestamp asc, id asc").Find(&calls).Error
	return calls, err
}
