package analyzer

import (
	"encoding/json"
	"time"
)

type Config struct {
	BaseURL      string
	Model        string
	Timeout      time.Duration
	ProbeTimeout time.Duration
}

// Result is one completed analysis round-trip.
type Result struct {
	Content   string
	Raw       json.RawMessage
	LatencyMS int64
	Model     string
}
