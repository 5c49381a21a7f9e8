// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/whatsapp-campaigns/internal/app"
	"github.com/unclebandit/whatsapp-campaigns/internal/config"
)

// A headless processor instance. It resumes every Running campaign and then follows
// start/pause/resume commands broadcast by the API servers.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	config.SetupLogging(cfg)
	if cfg.AMQPURL == "" {
		logrus.Warn("⚠️ AMQP_URL not set, this worker will only process campaigns already Running at startup")
	}

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

	logrus.WithField("instance_id", a.InstanceID).Info("👷 Worker waiting for campaign commands")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.Timeout+5*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("processors did not stop in time")
	}
	logrus.Info("worker stopped")
}
