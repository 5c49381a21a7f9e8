// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/whatsapp-campaigns/internal/app"
	"github.com/unclebandit/whatsapp-campaigns/internal/config"
	"github.com/unclebandit/whatsapp-campaigns/internal/controller"
	"github.com/unclebandit/whatsapp-campaigns/internal/handler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	config.SetupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logrus.Fatalf("failed to start: %v", err)
	}
	if err := a.ResumeRunning(ctx); err != nil {
		logrus.WithError(err).Error("failed to resume running campaigns")
	}
	a.ReportStatus(ctx)

	campaignController := &controller.CampaignController{
		CampaignService: a.Service,
	}

	var board handler.SnapshotBoard
	if a.Board != nil {
		board = a.Board
	}
	campaignHandler := handler.NewCampaignHandler(a.Service, a.Runner, board)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaignDetails)
	r.Post("/campaigns/{id}/recipients", campaignController.EnqueueRecipients)
	r.Post("/campaigns/{id}/preview", campaignController.PersonalizedPreview)

	// Processor routes
	r.Post("/campaigns/{id}/start", campaignHandler.StartCampaignHandler)
	r.Post("/campaigns/{id}/pause", campaignHandler.PauseCampaignHandler)
	r.Post("/campaigns/{id}/resume", campaignHandler.ResumeCampaignHandler)
	r.Get("/campaigns/{id}/processor", campaignHandler.ProcessorHandler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithField("instance_id", a.InstanceID).Infof("🚀 Server running on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.Timeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("http shutdown")
	}
	if err := a.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("processors did not stop in time")
	}
}
