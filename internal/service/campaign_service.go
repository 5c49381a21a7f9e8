// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/whatsapp-campaigns/internal/errors"
	"github.com/unclebandit/whatsapp-campaigns/internal/model"
	"github.com/unclebandit/whatsapp-campaigns/internal/repository"
)

// CommandPublisher broadcasts control commands to the other instances.
type CommandPublisher interface {
	PublishCommand(ctx context.Context, cmd model.ControlCommand) error
}

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	QueueRepo    repository.QueueRepositoryInterface
	LeadRepo     repository.LeadRepositoryInterface
	Reconciler   *StatsReconciler
	Runner       *Runner
	Commands     CommandPublisher
}

type CreateCampaignInput struct {
	Name         string `json:"name"`
	Channel      string `json:"channel"`
	SenderID     string `json:"sender_id"`
	Content      string `json:"content"`
	ImageURL     string `json:"image_url"`
	Content2     string `json:"content2"`
	DelaySeconds int    `json:"delay_seconds"`
}

type EnqueueResult struct {
	CampaignID int                 `json:"campaign_id"`
	Requested  int                 `json:"requested"`
	Queued     int                 `json:"queued"`
	Skipped    int                 `json:"skipped"`
	Stats      model.CampaignStats `json:"stats"`
}

type CampaignDetails struct {
	model.Campaign
	Stats model.CampaignStats `json:"stats"`
}

func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", appErrors.ErrValidation)
	}
	if in.DelaySeconds < 0 {
		return nil, fmt.Errorf("%w: delay_seconds cannot be negative", appErrors.ErrValidation)
	}
	c := &model.Campaign{
		Name:         in.Name,
		Channel:      in.Channel,
		SenderID:     in.SenderID,
		Content:      in.Content,
		ImageURL:     in.ImageURL,
		Content2:     in.Content2,
		DelaySeconds: in.DelaySeconds,
		Status:       model.CampaignDraft,
	}
	if c.Channel == model.ChannelWhatsApp || c.Channel == "" {
		if strings.TrimSpace(c.Content+c.ImageURL+c.Content2) == "" {
			return nil, fmt.Errorf("%w: campaign needs content, image_url or content2", appErrors.ErrValidation)
		}
	}

	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, channel, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, channel, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// GetCampaignDetailsWithStats returns the campaign with counts read live from its queue.
func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.QueueRepo.StatusCounts(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: *campaign, Stats: stats}, nil
}

// EnqueueRecipients adds leads and explicit recipients to the campaign queue.
// Recipients whose phone is already queued are skipped.
func (s *CampaignService) EnqueueRecipients(ctx context.Context, campaignID int, leadIDs []int, recipients []model.Recipient) (*EnqueueResult, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status == model.CampaignCompleted {
		return nil, fmt.Errorf("%w: campaign %d is already completed", appErrors.ErrInvalidTransition, campaignID)
	}

	all := make([]model.Recipient, 0, len(leadIDs)+len(recipients))
	if len(leadIDs) > 0 {
		leads, err := s.LeadRepo.GetByIDs(ctx, leadIDs)
		if err != nil {
			return nil, err
		}
		for _, l := range leads {
			all = append(all, l.Recipient())
		}
	}
	all = append(all, recipients...)

	valid := all[:0]
	for _, r := range all {
		if strings.TrimSpace(r.Phone) == "" {
			logrus.WithField("campaign_id", campaignID).Warnf("⚠️ skipping recipient %q without phone", r.Name)
			continue
		}
		valid = append(valid, r)
	}

	queued, err := s.QueueRepo.Enqueue(ctx, campaignID, valid)
	if err != nil {
		return nil, err
	}

	result := &EnqueueResult{
		CampaignID: campaignID,
		Requested:  len(leadIDs) + len(recipients),
		Queued:     queued,
	}
	result.Skipped = result.Requested - queued

	if s.Reconciler != nil {
		stats, _, err := s.Reconciler.Reconcile(ctx, campaignID)
		if err != nil {
			logrus.WithError(err).WithField("campaign_id", campaignID).Error("failed to reconcile after enqueue")
		}
		result.Stats = stats
	}
	return result, nil
}

// RenderPreview renders the campaign parts for a recipient without sending anything.
func (s *CampaignService) RenderPreview(ctx context.Context, campaignID int, r model.Recipient) (RenderedParts, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return RenderedParts{}, err
	}
	return RenderCampaign(campaign, r), nil
}

// StartCampaign moves a Draft campaign to Running and starts processing it on every instance.
func (s *CampaignService) StartCampaign(ctx context.Context, campaignID int) (*model.Campaign, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	switch campaign.Status {
	case model.CampaignCompleted:
		return nil, fmt.Errorf("%w: campaign %d is already completed", appErrors.ErrInvalidTransition, campaignID)
	case model.CampaignDraft:
		if err := s.CampaignRepo.UpdateStatus(ctx, campaignID, model.CampaignRunning); err != nil {
			return nil, err
		}
		campaign.Status = model.CampaignRunning
	}

	s.control(ctx, campaignID, model.ActionStart)
	return campaign, nil
}

// PauseCampaign stops new claims on every instance; sends in flight still finish.
func (s *CampaignService) PauseCampaign(ctx context.Context, campaignID int) error {
	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return err
	}
	s.control(ctx, campaignID, model.ActionPause)
	return nil
}

func (s *CampaignService) ResumeCampaign(ctx context.Context, campaignID int) error {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != model.CampaignRunning {
		return fmt.Errorf("%w: campaign %d is %s", appErrors.ErrInvalidTransition, campaignID, campaign.Status)
	}
	s.control(ctx, campaignID, model.ActionResume)
	return nil
}

func (s *CampaignService) control(ctx context.Context, campaignID int, action string) {
	cmd := model.ControlCommand{CampaignID: campaignID, Action: action}
	if s.Runner != nil {
		if err := s.Runner.Handle(ctx, cmd); err != nil {
			logrus.WithError(err).Error("failed to apply control command locally")
		}
	}
	if s.Commands != nil {
		if err := s.Commands.PublishCommand(ctx, cmd); err != nil {
			logrus.WithError(err).WithField("campaign_id", campaignID).Error("failed to broadcast control command")
		}
	}
}
