package models

// DigestResult reports what a digest run did.
type DigestResult struct {
	Date       string   `json:"date"`
	Classes    int      `json:"classes"`
	Students   int      `json:"students"`
	Absent     int      `json:"absent"`
	Recipients []string `json:"recipients"`
	Sent       bool     `json:"sent"`
	// Reason explains a skipped send.
	Reason string `json:"reason,omitempty"`
}
