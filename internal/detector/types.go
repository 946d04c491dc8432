package detector

import "time"

type Config struct {
	BaseURL      string
	Timeout      time.Duration
	ProbeTimeout time.Duration
}

// Detection is one bounding box reported by the detector for a frame.
// It lives only for the duration of a matching call and is never
// persisted directly.
type Detection struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
	ClassID    int        `json:"class_id"`
	ClassName  string     `json:"class_name"`
}
