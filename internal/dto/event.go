package dto

import (
	"time"

	"github.com/aura-rover/aura-backend/internal/facematch"
)

type DetectResponse struct {
	Faces       int                    `json:"faces"`
	Assignments []facematch.Assignment `json:"assignments"`
	EventID     string                 `json:"event_id,omitempty"`
}

type CreateEventRequest struct {
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type EventResponse struct {
	ID                string     `json:"id"`
	CreatedAt         time.Time  `json:"created_at"`
	Type              string     `json:"type"`
	Source            string     `json:"source,omitempty"`
	State             string     `json:"state"`
	HasImage          bool       `json:"has_image"`
	ImageURL          string     `json:"image_url,omitempty"`
	ShortSummary      string     `json:"short_summary,omitempty"`
	LongSummary       string     `json:"long_summary,omitempty"`
	AnalyzerModel     string     `json:"analyzer_model,omitempty"`
	AnalyzerLatencyMS int64      `json:"analyzer_latency_ms,omitempty"`
	AnalyzedAt        *time.Time `json:"analyzed_at,omitempty"`
}

type EventListResponse struct {
	Events []EventResponse `json:"events"`
	Count  int             `json:"count"`
}

type AnalyzeEventResponse struct {
	Event   EventResponse `json:"event"`
	Outcome string        `json:"outcome"`
}

type FrameAnalysisResponse struct {
	Content   string `json:"content"`
	Model     string `json:"model,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Notified  bool   `json:"notified"`
}
