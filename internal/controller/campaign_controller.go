// internal/controller/campaign_controller.go
package controller

import (
	"net/http"
	"strconv"

	"github.com/unclebandit/whatsapp-campaigns/internal/model"
	"github.com/unclebandit/whatsapp-campaigns/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CreateCampaignInput
	if !decode(w, r, &body) {
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), body)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	channel := r.URL.Query().Get("channel")
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, channel, status)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination, // already contains total_count, total_pages, page, page_size
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := CampaignID(w, r)
	if !ok {
		return
	}

	details, err := c.CampaignService.GetCampaignDetailsWithStats(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, details)
}

// EnqueueRecipients queues leads and inline recipients for the campaign.
func (c *CampaignController) EnqueueRecipients(w http.ResponseWriter, r *http.Request) {
	id, ok := CampaignID(w, r)
	if !ok {
		return
	}

	var body struct {
		LeadIDs    []int             `json:"lead_ids"`
		Recipients []model.Recipient `json:"recipients"`
	}
	if !decode(w, r, &body) {
		return
	}

	result, err := c.CampaignService.EnqueueRecipients(r.Context(), id, body.LeadIDs, body.Recipients)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, result)
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := CampaignID(w, r)
	if !ok {
		return
	}

	var body model.Recipient
	if !decode(w, r, &body) {
		return
	}

	rendered, err := c.CampaignService.RenderPreview(r.Context(), id, body)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": id,
		"recipient":   body,
		"rendered":    rendered,
	})
}
