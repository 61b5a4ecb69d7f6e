package models

// TrackingStartRequest is the request body for starting a tracking session.
type TrackingStartRequest struct {
	// Mode selects the cadence policy: foreground or background.
	Mode string `json:"mode" validate:"required,oneof=foreground background"`
}

// TrackingStopRequest is the request body for stopping a tracking session.
type TrackingStopRequest struct {
	Mode string `json:"mode" validate:"required,oneof=foreground background"`
}

// TrackingSession represents an active tracking session.
type TrackingSession struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	StartedAt Timestamp `json:"startedAt"`
}

// TrackingStatusResponse reports the tracker's current state.
type TrackingStatusResponse struct {
	Sessions  []TrackingSession `json:"sessions"`
	Suspended bool              `json:"suspended"`
}

// PositionResponse is the latest accepted position sample.
type PositionResponse struct {
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	AccuracyMeters float64   `json:"accuracyMeters,omitempty"`
	CapturedAt     Timestamp `json:"capturedAt"`
}
