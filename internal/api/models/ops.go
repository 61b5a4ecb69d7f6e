package models

// Health represents the health status of the engine.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the overall engine status.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Online     bool              `json:"online"`
	Subsystems []SubsystemStatus `json:"subsystems"`

	// ZonesSyncedAt is when the zone cache last refreshed from the store.
	ZonesSyncedAt *Timestamp `json:"zonesSyncedAt,omitempty"`

	// QueuedAlerts is the number of jobs waiting in the offline queue.
	QueuedAlerts int `json:"queuedAlerts"`
}

// SubsystemStatus represents the status of one engine subsystem.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}
