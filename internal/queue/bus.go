package queue

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/whatsapp-campaigns/internal/model"
)

// EventNotifier publishes campaign completion events.
type EventNotifier struct {
	Queue Queue
}

func (n *EventNotifier) CampaignCompleted(_ context.Context, event model.CampaignEvent) error {
	return n.Queue.Publish(TopicCampaignEvents, event)
}

// CommandBus broadcasts control commands stamped with the publishing instance.
type CommandBus struct {
	Queue  Queue
	Origin string
}

func (b *CommandBus) PublishCommand(_ context.Context, cmd model.ControlCommand) error {
	cmd.Origin = b.Origin
	return b.Queue.Publish(TopicCampaignCommands, cmd)
}

// CommandHandler applies one control command.
type CommandHandler interface {
	Handle(ctx context.Context, cmd model.ControlCommand) error
}

// StartCommandSubscriber applies broadcast commands to h, skipping the ones this
// instance published itself.
func StartCommandSubscriber(q Queue, instanceID string, h CommandHandler) error {
	return q.Subscribe(TopicCampaignCommands, func(body []byte) error {
		var cmd model.ControlCommand
		if err := Decode(body, &cmd); err != nil {
			logrus.WithError(err).Warn("⚠️ Invalid control command, dropping")
			return nil // no retry
		}
		if cmd.Origin != "" && cmd.Origin == instanceID {
			return nil
		}
		return h.Handle(context.Background(), cmd)
	})
}

// StartEventLogger logs every completion event. It keeps the events topic drained
// when nothing else consumes it.
func StartEventLogger(q Queue) error {
	return q.Subscribe(TopicCampaignEvents, func(body []byte) error {
		var event model.CampaignEvent
		if err := Decode(body, &event); err != nil {
			logrus.WithError(err).Warn("⚠️ Invalid campaign event, dropping")
			return nil
		}
		logrus.WithFields(logrus.Fields{
			"campaign_id": event.CampaignID,
			"sent":        event.Sent,
			"failed":      event.Failed,
			"total":       event.Total,
		}).Info("📣 " + event.Type)
		return nil
	})
}
