package backend

// Backend endpoints.
const (
	PathCalibrate      = "/api/calibrate"
	PathSaveSession    = "/api/save_session"
	PathHistory        = "/api/history"
	PathSessionReport  = "/api/ai_report"
	PathGlobalAnalysis = "/api/global_analysis"
)

// HistoryEntry is one saved session as the history service returns it.
type HistoryEntry struct {
	Label           string `json:"name"`
	StabilityScore  int    `json:"value"`
	DurationSeconds int    `json:"duration"`
}

// ReportRequest carries the metrics of one session for a narrative report.
type ReportRequest struct {
	DurationSeconds  int `json:"duration"`
	AvgScore         int `json:"avg_score"`
	StabilityPercent int `json:"stability_percent"`
}

// Report is narrative text produced by the backend.
type Report struct {
	Text string `json:"report"`
}

type statusResponse struct {
	Status string `json:"status"`
}
