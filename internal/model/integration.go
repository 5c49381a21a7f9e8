// internal/model/integration.go
package model

// Integration holds the gateway credentials selected by a campaign's sender id.
type Integration struct {
	SenderID string `db:"sender_id" json:"sender_id"`
	BaseURL  string `db:"base_url" json:"base_url"`
	APIKey   string `db:"api_key" json:"-"`
	Instance string `db:"instance" json:"instance"`
}

func (i *Integration) Complete() bool {
	return i != nil && i.BaseURL != "" && i.APIKey != "" && i.Instance != ""
}
