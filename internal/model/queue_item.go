// internal/model/queue_item.go
package model

import "time"

const (
	ItemPending = "Pending"
	ItemSending = "Sending"
	ItemSent    = "Sent"
	ItemFailed  = "Failed"
)

// QueueItem is one recipient's send job within a campaign.
type QueueItem struct {
	ID             int                    `db:"id" json:"id"`
	CampaignID     int                    `db:"campaign_id" json:"campaign_id"`
	RecipientName  string                 `db:"recipient_name" json:"recipient_name"`
	RecipientPhone string                 `db:"recipient_phone" json:"recipient_phone"`
	RecipientEmail string                 `db:"recipient_email" json:"recipient_email"`
	RecipientData  map[string]interface{} `db:"recipient_data" json:"recipient_data,omitempty"`
	Status         string                 `db:"status" json:"status"`
	ClaimedAt      *time.Time             `db:"claimed_at" json:"claimed_at,omitempty"`
	SentAt         *time.Time             `db:"sent_at" json:"sent_at,omitempty"`
	ErrorMessage   string                 `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time              `db:"created_at" json:"created_at"`
}

// IsTerminal reports whether status admits no further transition.
func IsTerminal(status string) bool {
	return status == ItemSent || status == ItemFailed
}

// Recipient is the input used to create a queue item or render a preview.
type Recipient struct {
	Name  string                 `json:"name"`
	Phone string                 `json:"phone"`
	Email string                 `json:"email"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

func (q *QueueItem) Recipient() Recipient {
	return Recipient{
		Name:  q.RecipientName,
		Phone: q.RecipientPhone,
		Email: q.RecipientEmail,
		Data:  q.RecipientData,
	}
}
