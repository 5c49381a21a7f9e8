// Package app wires the stores, bus, gateway and processor runner shared by the
// server and worker binaries.
package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/whatsapp-campaigns/internal/config"
	"github.com/unclebandit/whatsapp-campaigns/internal/db"
	"github.com/unclebandit/whatsapp-campaigns/internal/gateway"
	"github.com/unclebandit/whatsapp-campaigns/internal/model"
	"github.com/unclebandit/whatsapp-campaigns/internal/queue"
	"github.com/unclebandit/whatsapp-campaigns/internal/repository"
	"github.com/unclebandit/whatsapp-campaigns/internal/service"
	"github.com/unclebandit/whatsapp-campaigns/internal/status"
)

type App struct {
	Config     *config.Config
	InstanceID string
	Bus        queue.Queue
	Runner     *service.Runner
	Service    *service.CampaignService
	Board      *status.Board

	closers []func() error
}

// New connects to every configured backend. Postgres is required; AMQP and Redis are optional.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, InstanceID: uuid.NewString()}
	log := logrus.WithField("instance_id", a.InstanceID)

	db.Init(ctx, cfg.Database.DSN())
	a.closers = append(a.closers, db.DB.Close)

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	queueRepo := &repository.QueueRepository{DB: db.DB}
	leadRepo := &repository.LeadRepository{DB: db.DB}
	integrationRepo := &repository.IntegrationRepository{DB: db.DB}

	if cfg.AMQPURL != "" {
		bus, err := queue.DialAMQP(cfg.AMQPURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Bus = bus
		a.closers = append(a.closers, bus.Close)
		log.Info("✅ Connected to RabbitMQ")
	} else {
		bus := queue.NewInMemoryQueue()
		if err := queue.StartEventLogger(bus); err != nil {
			a.Close()
			return nil, err
		}
		a.Bus = bus
		log.Warn("⚠️ AMQP_URL not set, control commands stay in this process")
	}

	if cfg.RedisAddr != "" {
		client, err := status.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Board = status.NewBoard(client, cfg.Processor.StatusTTL)
		a.closers = append(a.closers, client.Close)
		log.Info("✅ Connected to Redis status board")
	}

	fallback := &model.Integration{
		BaseURL:  cfg.Gateway.BaseURL,
		APIKey:   cfg.Gateway.APIKey,
		Instance: cfg.Gateway.Instance,
	}
	gw := gateway.NewEvolutionClient(integrationRepo, fallback, cfg.Gateway.Timeout)

	reconciler := &service.StatsReconciler{
		Queue:          queueRepo,
		Campaigns:      campaignRepo,
		Notifier:       &queue.EventNotifier{Queue: a.Bus},
		WaitForSending: cfg.Processor.LeaseTimeout > 0,
	}
	opts := service.ProcessorOptions{
		InstanceID:          a.InstanceID,
		DefaultDelaySeconds: cfg.Processor.DefaultDelaySeconds,
		ClaimRetryDelay:     cfg.Processor.ClaimRetryDelay,
		StoreRetryDelay:     cfg.Processor.StoreRetryDelay,
		LeaseTimeout:        cfg.Processor.LeaseTimeout,
	}
	a.Runner = service.NewRunner(a.InstanceID, func(campaignID int) *service.Processor {
		return service.NewProcessor(campaignID, campaignRepo, queueRepo, gw, reconciler, opts)
	})

	a.Service = &service.CampaignService{
		CampaignRepo: campaignRepo,
		QueueRepo:    queueRepo,
		LeadRepo:     leadRepo,
		Reconciler:   reconciler,
		Runner:       a.Runner,
		Commands:     &queue.CommandBus{Queue: a.Bus, Origin: a.InstanceID},
	}

	if err := queue.StartCommandSubscriber(a.Bus, a.InstanceID, a.Runner); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// ResumeRunning starts a processor for every campaign already in Running.
func (a *App) ResumeRunning(ctx context.Context) error {
	const pageSize = 100
	for offset := 0; ; offset += pageSize {
		campaigns, total, err := a.Service.CampaignRepo.ListCampaigns(ctx, offset, pageSize, "", model.CampaignRunning)
		if err != nil {
			return err
		}
		for _, c := range campaigns {
			a.Runner.Start(c.ID)
			logrus.WithField("campaign_id", c.ID).Info("▶️ resumed running campaign")
		}
		if offset+pageSize >= total || len(campaigns) == 0 {
			return nil
		}
	}
}

// ReportStatus publishes snapshots to the board until ctx is done. No-op without Redis.
func (a *App) ReportStatus(ctx context.Context) {
	if a.Board == nil {
		return
	}
	interval := a.Config.Processor.StatusTTL / 3
	if interval < time.Second {
		interval = time.Second
	}
	go a.Board.Run(ctx, a.Runner, interval)
}

// Shutdown stops every processor, clears this instance from the board and closes connections.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Runner.Shutdown(ctx)
	if a.Board != nil {
		for _, snap := range a.Runner.Snapshots() {
			if rerr := a.Board.Remove(ctx, snap.CampaignID, snap.InstanceID); rerr != nil {
				logrus.WithError(rerr).Warn("failed to clear status board entry")
			}
		}
	}
	a.Close()
	return err
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && err != redis.ErrClosed {
			logrus.WithError(err).Warn("close failed")
		}
	}
	a.closers = nil
}
