// internal/model/snapshot.go
package model

import "time"

// ProcessorSnapshot is what one processor instance exposes for observation.
type ProcessorSnapshot struct {
	InstanceID       string    `json:"instance_id"`
	CampaignID       int       `json:"campaign_id"`
	State            string    `json:"state"`
	IsRunning        bool      `json:"is_running"`
	Sent             int       `json:"sent"`
	Failed           int       `json:"failed"`
	Pending          int       `json:"pending"`
	Total            int       `json:"total"`
	LastRecipient    string    `json:"last_recipient,omitempty"`
	LastOutcome      string    `json:"last_outcome,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
	SecondsUntilNext int       `json:"seconds_until_next"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CampaignEvent is published when a campaign reaches Completed.
type CampaignEvent struct {
	Type        string    `json:"type"`
	CampaignID  int       `json:"campaign_id"`
	Sent        int       `json:"sent"`
	Failed      int       `json:"failed"`
	Total       int       `json:"total"`
	CompletedAt time.Time `json:"completed_at"`
}

const EventCampaignCompleted = "campaign.completed"

// ControlCommand is broadcast to every processor instance.
type ControlCommand struct {
	CampaignID int    `json:"campaign_id"`
	Action     string `json:"action"`
	// Origin is the instance that published the command; it already applied it.
	Origin string `json:"origin,omitempty"`
}

const (
	ActionStart  = "start"
	ActionPause  = "pause"
	ActionResume = "resume"
)
