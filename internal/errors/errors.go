// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a campaign cannot move to the requested status.
var ErrInvalidTransition = errors.New("invalid campaign status transition")

// ErrValidation wraps request input that cannot be accepted.
var ErrValidation = errors.New("invalid input")

// ErrCampaignNotFound is returned by lookups on a missing campaign
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// IsCampaignNotFound reports whether err wraps an ErrCampaignNotFound.
func IsCampaignNotFound(err error) bool {
	var nf *ErrCampaignNotFound
	return errors.As(err, &nf)
}

// ErrNoCredentials means no gateway credentials could be resolved for a sender.
type ErrNoCredentials struct {
	SenderID string
}

func (e *ErrNoCredentials) Error() string {
	if e.SenderID == "" {
		return "nenhuma credencial de WhatsApp configurada"
	}
	return fmt.Sprintf("nenhuma credencial de WhatsApp configurada para %q", e.SenderID)
}

// ErrChannelNotImplemented is recorded on items of campaigns whose channel has no sender.
type ErrChannelNotImplemented struct {
	Channel string
}

func (e *ErrChannelNotImplemented) Error() string {
	return fmt.Sprintf("Canal não implementado: %s", e.Channel)
}
