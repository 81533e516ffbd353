package domain

import "time"

// EndpointStatus is the single mutable row per endpoint. FailureCount is
// a lifetime total; ConsecutiveFailures resets on success. Invariants:
// ConsecutiveFailures is 0 iff CurrentStatus is success, and
// NotificationSent is cleared on every transition back to success.
type EndpointStatus struct {
	EndpointName        string      `json:"endpoint_name"`
	CurrentStatus       CheckStatus `json:"current_status"`
	LastSuccess         *time.Time  `json:"last_success"`
	LastFailure         *time.Time  `json:"last_failure"`
	FailureCount        int         `json:"failure_count"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	NotificationSent    bool        `json:"notification_sent"`
	LastNotification    *time.Time  `json:"last_notification"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// Apply folds one result into the record and returns the updated copy.
// prev may be nil (first result for the endpoint). Every store driver
// goes through this function so the transition rule lives in one place.
func Apply(prev *EndpointStatus, r *CheckResult, now time.Time) *EndpointStatus {
	next := EndpointStatus{EndpointName: r.EndpointName}
	if prev != nil {
		next = *prev
	}
	next.CurrentStatus = r.Status
	ts := r.Timestamp
	if r.Status == StatusSuccess {
		next.LastSuccess = &ts
		next.ConsecutiveFailures = 0
		next.NotificationSent = false
	} else {
		next.LastFailure = &ts
		next.FailureCount++
		next.ConsecutiveFailures++
	}
	next.UpdatedAt = now
	return &next
}
