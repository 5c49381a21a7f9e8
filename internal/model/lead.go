// internal/model/lead.go
package model

// Lead is a CRM contact that can be enqueued as a campaign recipient.
type Lead struct {
	ID           int                    `db:"id" json:"id"`
	Name         string                 `db:"name" json:"name"`
	Phone        string                 `db:"phone" json:"phone"`
	Email        string                 `db:"email" json:"email"`
	CustomFields map[string]interface{} `db:"custom_fields" json:"custom_fields,omitempty"`
}

func (l Lead) Recipient() Recipient {
	return Recipient{Name: l.Name, Phone: l.Phone, Email: l.Email, Data: l.CustomFields}
}
