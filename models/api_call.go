package models

import (
	"time"
)

// APICall is one append-only audit log entry for an external provider call.
type APICall struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	RunID     string    `json:"run_id,omitempty" gorm:"index;size:64"`
	Timestamp time.Time `json:"timestamp" gorm:"index"`
	Service   string    `json:"service" gorm:"index;size:64"`
	Method    string    `json:"method" gorm:"size:32"`
	URL       string    `json:"url,omitempty" gorm:"type:text"`

	// Request parameters as JSON.
	Params string `json:"params" gorm:"type:text"`

	ResponseStatus int    `json:"response_status"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Success        bool   `json:"success"`
	ResultCount    int    `json:"result_count"`
	CacheHit       bool   `json:"cache_hit"`
	Error          string `json:"error,omitempty" gorm:"type:text"`
}

func (APICall) TableName() string { return "api_calls" }
