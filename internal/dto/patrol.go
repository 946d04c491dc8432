package dto

import "time"

type CreatePathRequest struct {
	Name     string   `json:"name"`
	Steps    []string `json:"steps"`
	Schedule []string `json:"schedule,omitempty"`
}

type UpdateScheduleRequest struct {
	Schedule []string `json:"schedule"`
}

type PathResponse struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Steps    []string `json:"steps"`
	Schedule []string `json:"schedule"`
}

type PathListResponse struct {
	Paths []PathResponse `json:"paths"`
	Count int            `json:"count"`
}

type StartPatrolRequest struct {
	PathID string `json:"path_id,omitempty"`
}

type SessionResponse struct {
	ID            string     `json:"id"`
	PathID        string     `json:"path_id,omitempty"`
	PathName      string     `json:"path_name,omitempty"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Report        string     `json:"report,omitempty"`
	AnalysisState string     `json:"analysis_state"`
	Analysis      string     `json:"analysis,omitempty"`
	AnalyzedAt    *time.Time `json:"analyzed_at,omitempty"`
}

type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Count    int               `json:"count"`
}

type AnalyzeSessionResponse struct {
	Session SessionResponse `json:"session"`
	Outcome string          `json:"outcome"`
}
