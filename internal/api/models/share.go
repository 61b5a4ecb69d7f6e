package models

// ShareCreateRequest is the request body for starting a share session.
type ShareCreateRequest struct {
	DurationSeconds int  `json:"durationSeconds" validate:"required,gte=60,lte=86400"`
	MaxViews        *int `json:"maxViews,omitempty" validate:"omitempty,gte=1"`
}

// ShareExtendRequest is the request body for extending a share session.
type ShareExtendRequest struct {
	DurationSeconds int `json:"durationSeconds" validate:"required,gte=1,lte=86400"`
}

// Share represents a share session in API responses. AccessCode is only
// populated on creation.
type Share struct {
	ID             string    `json:"id"`
	AccessCode     string    `json:"accessCode,omitempty"`
	Active         bool      `json:"active"`
	MaxViews       *int      `json:"maxViews,omitempty"`
	ViewsRemaining *int      `json:"viewsRemaining,omitempty"`
	CreatedAt      Timestamp `json:"createdAt"`
	ExpiresAt      Timestamp `json:"expiresAt"`
}

// ShareListResponse is the response for listing share sessions.
type ShareListResponse struct {
	Items []Share `json:"items"`
}

// ShareViewResponse is the public response for viewing a share.
type ShareViewResponse struct {
	// Position is the last known position, absent until tracking has
	// produced a sample.
	Position *SharePosition `json:"position,omitempty"`

	ExpiresAt      Timestamp `json:"expiresAt"`
	ViewsRemaining *int      `json:"viewsRemaining,omitempty"`
}

// SharePosition is the position payload of a share view.
type SharePosition struct {
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	AccuracyMeters float64   `json:"accuracyMeters,omitempty"`
	CapturedAt     Timestamp `json:"capturedAt"`
}
