package service

// AuthMetrics records authentication outcomes.
type AuthMetrics interface {
	// RecordAuthAttempt counts one flow invocation, e.g. ("login", "success").
	RecordAuthAttempt(flow, outcome string)
}
