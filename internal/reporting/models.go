package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call outcomes for one project.
type CallsSummaryRequest struct {
	ProjectID string    `json:"project_id"`
	Range     TimeRange `json:"range"`
}

type CallsSummary struct {
	ProjectID string    `json:"project_id"`
	Range     TimeRange `json:"range"`

	TotalCalls int `json:"total_calls"`
	// ByStatus counts records by their persisted status, unknown provider words included.
	ByStatus map[string]int `json:"by_status"`

	// ConnectedCalls were answered at some point (started_at known).
	ConnectedCalls  int `json:"connected_calls"`
	InProgressCalls int `json:"in_progress_calls"`

	TotalDurationSeconds int `json:"total_duration_seconds"`
	// AverageDurationSeconds averages over calls with a reported duration only.
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls    int `json:"recorded_calls"`
	TranscribedCalls int `json:"transcribed_calls"`

	ConnectionRate float64 `json:"connection_rate"`
}
