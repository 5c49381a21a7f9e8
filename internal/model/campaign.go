// internal/model/campaign.go
package model

import "time"

const (
	ChannelWhatsApp = "WhatsApp"

	CampaignDraft     = "Draft"
	CampaignRunning   = "Running"
	CampaignCompleted = "Completed"

	DefaultDelaySeconds = 120
)

type Campaign struct {
	ID           int           `db:"id" json:"id"`
	Name         string        `db:"name" json:"name"`
	Channel      string        `db:"channel" json:"channel"`
	Status       string        `db:"status" json:"status"`
	SenderID     string        `db:"sender_id" json:"sender_id"`
	Content      string        `db:"content" json:"content"`
	ImageURL     string        `db:"image_url" json:"image_url"`
	Content2     string        `db:"content2" json:"content2"`
	DelaySeconds int           `db:"delay_seconds" json:"delay_seconds"`
	Stats        CampaignStats `json:"stats"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    *time.Time    `db:"updated_at" json:"updated_at,omitempty"`
	CompletedAt  *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
}

// DelayOrDefault returns DelaySeconds, or def when it is unset.
func (c *Campaign) DelayOrDefault(def int) int {
	if c.DelaySeconds <= 0 {
		return def
	}
	return c.DelaySeconds
}

// CampaignStats is the cached aggregate stored on the campaign row.
// It is always recomputed from queue items, never incremented.
type CampaignStats struct {
	Sent    int `db:"stats_sent" json:"sent"`
	Failed  int `db:"stats_failed" json:"failed"`
	Pending int `json:"pending"`
	Sending int `json:"sending"`
	Total   int `db:"stats_total" json:"total"`
}

// Finished reports whether the counts describe a campaign with nothing left to send
// and at least one item that reached a terminal state.
func (s CampaignStats) Finished() bool {
	return s.Pending == 0 && s.Sent+s.Failed > 0
}
