package model

// EventType discriminates audit stream events.
type EventType string

const (
	EventProgress EventType = "progress"
	EventError    EventType = "error"
	EventFinal    EventType = "final"
)

// StreamEvent is one element of the audit stream. Which fields are set
// depends on Type:
//
//	progress: Bucket, Total, Completed, and Tests or BotAccessStatus
//	error:    Error
//	final:    Result
//
// Total is nil when the event does not declare a total, which is distinct
// from a declared total of 0.
type StreamEvent struct {
	Type            EventType        `json:"type"`
	Bucket          Category         `json:"bucket,omitempty"`
	Total           *int             `json:"total,omitempty"`
	Completed       int              `json:"completed,omitempty"`
	Tests           []TestResult     `json:"tests,omitempty"`
	BotAccessStatus []BotAccessEntry `json:"botAccessStatus,omitempty"`
	Error           string           `json:"error,omitempty"`
	Result          *AuditResult     `json:"result,omitempty"`
}
