package dto

import "github.com/aura-rover/aura-backend/internal/shared"

type CreateLogRequest struct {
	Level    string         `json:"level"`
	Source   string         `json:"source"`
	Category string         `json:"category"`
	Message  string         `json:"message"`
	Data     shared.JSONMap `json:"data"`
}

type LogResponse struct {
	ID        string         `json:"id"`
	CreatedAt string         `json:"created_at"`
	Level     string         `json:"level"`
	Source    string         `json:"source,omitempty"`
	Category  string         `json:"category,omitempty"`
	Message   string         `json:"message"`
	Data      shared.JSONMap `json:"data,omitempty"`
}

type LogListResponse struct {
	Count int           `json:"count"`
	Logs  []LogResponse `json:"logs"`
}
