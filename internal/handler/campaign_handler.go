// internal/handler/campaign_handler.go
package handler

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/whatsapp-campaigns/internal/controller"
	"github.com/unclebandit/whatsapp-campaigns/internal/model"
	"github.com/unclebandit/whatsapp-campaigns/internal/service"
)

// SnapshotBoard lists the snapshots every instance has published for a campaign.
type SnapshotBoard interface {
	List(ctx context.Context, campaignID int) ([]model.ProcessorSnapshot, error)
}

// CampaignHandler holds the processor control and observation endpoints
type CampaignHandler struct {
	Service *service.CampaignService
	Runner  *service.Runner
	Board   SnapshotBoard
}

func NewCampaignHandler(svc *service.CampaignService, runner *service.Runner, board SnapshotBoard) *CampaignHandler {
	return &CampaignHandler{Service: svc, Runner: runner, Board: board}
}

// StartCampaignHandler moves a Draft campaign to Running and starts its processors
func (h *CampaignHandler) StartCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := controller.CampaignID(w, r)
	if !ok {
		return
	}

	campaign, err := h.Service.StartCampaign(r.Context(), id)
	if err != nil {
		controller.WriteError(w, err)
		return
	}

	logrus.WithField("campaign_id", id).Info("▶️ campaign started")
	controller.WriteJSON(w, http.StatusAccepted, campaign)
}

func (h *CampaignHandler) PauseCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := controller.CampaignID(w, r)
	if !ok {
		return
	}
	if err := h.Service.PauseCampaign(r.Context(), id); err != nil {
		controller.WriteError(w, err)
		return
	}

	logrus.WithField("campaign_id", id).Info("⏸️ campaign paused")
	controller.WriteJSON(w, http.StatusAccepted, map[string]interface{}{"campaign_id": id, "action": model.ActionPause})
}

func (h *CampaignHandler) ResumeCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := controller.CampaignID(w, r)
	if !ok {
		return
	}
	if err := h.Service.ResumeCampaign(r.Context(), id); err != nil {
		controller.WriteError(w, err)
		return
	}

	logrus.WithField("campaign_id", id).Info("▶️ campaign resumed")
	controller.WriteJSON(w, http.StatusAccepted, map[string]interface{}{"campaign_id": id, "action": model.ActionResume})
}

// ProcessorHandler returns this instance's snapshot and, when a board is configured,
// the snapshots of every other instance working the campaign.
func (h *CampaignHandler) ProcessorHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := controller.CampaignID(w, r)
	if !ok {
		return
	}

	details, err := h.Service.GetCampaignDetailsWithStats(r.Context(), id)
	if err != nil {
		controller.WriteError(w, err)
		return
	}

	response := map[string]interface{}{
		"campaign_id": id,
		"status":      details.Status,
		"stats":       details.Stats,
		"local":       nil,
	}
	if h.Runner != nil {
		if snap, ok := h.Runner.Snapshot(id); ok {
			response["local"] = snap
		}
	}
	if h.Board != nil {
		instances, err := h.Board.List(r.Context(), id)
		if err != nil {
			logrus.WithError(err).WithField("campaign_id", id).Warn("failed to read status board")
		} else {
			response["instances"] = instances
		}
	}

	controller.WriteJSON(w, http.StatusOK, response)
}
