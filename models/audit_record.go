package models

import (
	"time"
)

// AuditRecord persists a finished audit run. The full report is kept as JSON,
// the counts are duplicated into columns for querying.
type AuditRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RunID      string `json:"run_id" gorm:"uniqueIndex;size:64;not null"`
	PaperTitle string `json:"paper_title" gorm:"type:text"`
	Model      string `json:"model,omitempty" gorm:"size:128"`

	TotalCitations int `json:"total_citations"`
	PassedCount    int `json:"passed_count"`
	SuspectCount   int `json:"suspect_count"`
	MissingCount   int `json:"missing_count"`

	// Location of the archived copy, when archiving is enabled.
	ArchiveKey string `json:"archive_key,omitempty"`

	Report []byte `json:"report" gorm:"type:jsonb"`
}

func (AuditRecord) TableName() string { return "audit_records" }
