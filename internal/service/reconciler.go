package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/whatsapp-campaigns/internal/model"
	"github.com/unclebandit/whatsapp-campaigns/internal/repository"
)

// Notifier is told about a campaign completion by the instance that performed it.
type Notifier interface {
	CampaignCompleted(ctx context.Context, event model.CampaignEvent) error
}

// StatsReconciler recomputes a campaign's counts from its queue and stores them on
// the campaign record. Safe to run from any number of instances: values are
// recomputed, never incremented, and the Completed flip is a conditional update.
type StatsReconciler struct {
	Queue     repository.QueueRepositoryInterface
	Campaigns repository.CampaignRepositoryInterface
	Notifier  Notifier
	Now       func() time.Time

	// WaitForSending holds completion back while any item is still Sending.
	// Only safe when stale leases are swept, otherwise a crashed claimer
	// keeps the campaign Running forever.
	WaitForSending bool
}

// Reconcile returns the fresh counts and whether this call moved the campaign to Completed.
func (r *StatsReconciler) Reconcile(ctx context.Context, campaignID int) (model.CampaignStats, bool, error) {
	stats, err := r.Queue.StatusCounts(ctx, campaignID)
	if err != nil {
		return stats, false, err
	}
	if err := r.Campaigns.UpdateStats(ctx, campaignID, stats); err != nil {
		return stats, false, err
	}

	if !stats.Finished() || (r.WaitForSending && stats.Sending > 0) {
		return stats, false, nil
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	at := now()
	completed, err := r.Campaigns.MarkCompleted(ctx, campaignID, at)
	if err != nil || !completed {
		return stats, false, err
	}

	logrus.WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"sent":        stats.Sent,
		"failed":      stats.Failed,
		"total":       stats.Total,
	}).Info("campaign completed")

	if r.Notifier != nil {
		event := model.CampaignEvent{
			Type:        model.EventCampaignCompleted,
			CampaignID:  campaignID,
			Sent:        stats.Sent,
			Failed:      stats.Failed,
			Total:       stats.Total,
			CompletedAt: at,
		}
		if err := r.Notifier.CampaignCompleted(ctx, event); err != nil {
			logrus.WithError(err).WithField("campaign_id", campaignID).Error("failed to publish completion event")
		}
	}
	return stats, true, nil
}
