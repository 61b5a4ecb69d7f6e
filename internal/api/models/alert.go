package models

// SOSRequest is the request body for triggering an alert.
type SOSRequest struct {
	// Kind is the trigger source: manual, shake or silent.
	Kind string `json:"kind" validate:"required,oneof=manual shake silent"`

	// Position overrides the engine's last tracked position. Optional;
	// useful when the caller has a fresher fix than the tracker.
	Position *Point `json:"position,omitempty"`
}

// AlertRecipient represents per-recipient delivery state in API responses.
type AlertRecipient struct {
	Kind       string `json:"kind"`
	Address    string `json:"address"`
	Name       string `json:"name,omitempty"`
	Status     string `json:"status"`
	DeliveryID string `json:"deliveryId,omitempty"`
	Error      string `json:"error,omitempty"`
	Attempts   int    `json:"attempts"`
}

// AlertJob represents an alert dispatch job in API responses.
type AlertJob struct {
	ID           string           `json:"id"`
	Kind         string           `json:"kind"`
	ZoneID       *string          `json:"zoneId,omitempty"`
	Position     Point            `json:"position"`
	Message      string           `json:"message"`
	Status       string           `json:"status"`
	Coalesced    bool             `json:"coalesced,omitempty"`
	AttemptCount int              `json:"attemptCount"`
	Recipients   []AlertRecipient `json:"recipients"`
	CreatedAt    Timestamp        `json:"createdAt"`
	UpdatedAt    Timestamp        `json:"updatedAt"`
}

// AlertListResponse is the response for listing alert jobs.
type AlertListResponse struct {
	Items []AlertJob `json:"items"`
}
