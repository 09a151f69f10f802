package dto

type TriggerRunRequest struct {
	SprintLabel string `json:"sprint_label"`
	WindowDays  int    `json:"window_days"`
}

type TriggerRunResponse struct {
	RunID       int64  `json:"run_id"`
	SprintLabel string `json:"sprint_label,omitempty"`
	WindowDays  int    `json:"window_days"`
	Enqueued    bool   `json:"enqueued"`
}
