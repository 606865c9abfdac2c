package models

import (
	"encoding/json"
	"time"
)

// ImportStatus tracks a course ingestion batch.
type ImportStatus string

const (
	ImportQueued     ImportStatus = "QUEUED"
	ImportProcessing ImportStatus = "PROCESSING"
	ImportCompleted  ImportStatus = "COMPLETED"
	ImportFailed     ImportStatus = "FAILED"
)

// ImportFailure describes a record rejected at ingestion.
type ImportFailure struct {
	Index  int    `json:"index"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// CourseImportBatch is a bulk course ingestion request and its outcome.
type CourseImportBatch struct {
	ID          string          `db:"id" json:"id"`
	Status      ImportStatus    `db:"status" json:"status"`
	Total       int             `db:"total" json:"total"`
	Succeeded   int             `db:"succeeded" json:"succeeded"`
	Failed      int             `db:"failed" json:"failed"`
	Failures    json.RawMessage `db:"failures" json:"failures,omitempty"`
	Records     json.RawMessage `db:"records" json:"-"`
	Error       *string         `db:"error" json:"error,omitempty"`
	SubmittedBy string          `db:"submitted_by" json:"submitted_by"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}
