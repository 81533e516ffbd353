package domain

import "time"

// CheckStatus classifies one probe outcome. failure means the target is
// unhealthy (wrong status code, content miss, expired certificate,
// timeout); error means the probe could not evaluate health at all (DNS
// fault, handshake fault, bad pattern).
type CheckStatus string

const (
	StatusSuccess CheckStatus = "success"
	StatusFailure CheckStatus = "failure"
	StatusError   CheckStatus = "error"
)

// IsFailure reports whether the status counts against the endpoint.
// Both failure and error do; they differ only in message and details.
func (s CheckStatus) IsFailure() bool {
	return s == StatusFailure || s == StatusError
}

// CheckResult is one probe outcome. Immutable once produced; the store
// appends it to the result log as-is.
type CheckResult struct {
	EndpointName string         `json:"endpoint_name"`
	CheckType    string         `json:"check_type"`
	Status       CheckStatus    `json:"status"`
	ResponseTime float64        `json:"response_time,omitempty"` // seconds
	ErrorMessage string         `json:"error_message,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
