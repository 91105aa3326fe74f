package domain

// Metrics summarises a window of lifecycle events.
type Metrics struct {
	TotalRequests      int     `json:"total_requests"`
	AverageDuration    float64 `json:"average_duration"`
	RequestsByMethod   *Counts `json:"requests_by_method"`
	StatusDistribution *Counts `json:"status_distribution"`
}

// DurationPoint is one sample of the per-request duration series.
type DurationPoint struct {
	ActionID string  `json:"actionId"`
	Route    string  `json:"route"`
	Duration float64 `json:"duration"`
}
