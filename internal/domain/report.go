package domain

import "time"

// Report is a generated downloadable file (rejection report) kept in object storage.
type Report struct {
	ReportID    string    `json:"id" dynamodbav:"report_id"`
	Kind        string    `json:"kind" dynamodbav:"kind"`
	EventID     string    `json:"event_id" dynamodbav:"event_id"`
	Object      string    `json:"object" dynamodbav:"object"`
	Rows        int       `json:"rows" dynamodbav:"rows"`
	CreatedBy   string    `json:"created_by" dynamodbav:"created_by"`
	Deleted     bool      `json:"-" dynamodbav:"deleted"`
	CreatedAt   time.Time `json:"created" dynamodbav:"created_at"`
	DownloadURL string    `json:"url,omitempty" dynamodbav:"-"`
}

const ReportKindRejections = "bulk_rejections"
