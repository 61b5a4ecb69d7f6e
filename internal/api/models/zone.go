package models

// Zone represents a safe zone in API responses.
type Zone struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CenterLat    float64   `json:"centerLat"`
	CenterLon    float64   `json:"centerLon"`
	RadiusMeters float64   `json:"radiusMeters"`
	AlertOnEnter bool      `json:"alertOnEnter"`
	AlertOnExit  bool      `json:"alertOnExit"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    Timestamp `json:"createdAt"`
	UpdatedAt    Timestamp `json:"updatedAt"`
}

// ZoneCreateRequest is the request body for creating a zone.
type ZoneCreateRequest struct {
	Name         string  `json:"name"`
	CenterLat    float64 `json:"centerLat"`
	CenterLon    float64 `json:"centerLon"`
	RadiusMeters float64 `json:"radiusMeters"`
	AlertOnEnter bool    `json:"alertOnEnter"`
	AlertOnExit  bool    `json:"alertOnExit"`
}

// ZoneUpdateRequest is the request body for updating a zone. Nil fields keep
// their current value.
type ZoneUpdateRequest struct {
	Name         *string  `json:"name,omitempty"`
	CenterLat    *float64 `json:"centerLat,omitempty"`
	CenterLon    *float64 `json:"centerLon,omitempty"`
	RadiusMeters *float64 `json:"radiusMeters,omitempty"`
	AlertOnEnter *bool    `json:"alertOnEnter,omitempty"`
	AlertOnExit  *bool    `json:"alertOnExit,omitempty"`
}

// ZoneToggleRequest is the request body for enabling or disabling a zone.
type ZoneToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// ZoneListResponse is the response for listing zones.
type ZoneListResponse struct {
	Items []Zone `json:"items"`
}
