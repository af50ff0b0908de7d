// Package bot implements lifecycle management and component orchestration
// for the relay bot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/replybot/internal/metrics"
)

// Listener receives Telegram updates until its context is cancelled.
// *bot.Bot from go-telegram/bot satisfies it.
type Listener interface {
	Start(ctx context.Context)
}

// Bot represents the main bot application and manages its components' lifecycle.
type Bot struct {
	logger      *slog.Logger
	listener    Listener
	scheduler   *Scheduler
	metricsAddr string
	health      metrics.HealthCheck
}

// NewBot creates the orchestrator for the Telegram listener, the task
// scheduler and the metrics endpoint (disabled when metricsAddr is empty).
// health backs the endpoint's /health route and may be nil.
func NewBot(logger *slog.Logger, listener Listener, scheduler *Scheduler, metricsAddr string, health metrics.HealthCheck) *Bot {
	return &Bot{
		logger:      logger.With("component", "bot_orchestrator"),
		listener:    listener,
		scheduler:   scheduler,
		metricsAddr: metricsAddr,
		health:      health,
	}
}

// Run starts the bot and all its components, handling graceful shutdown on context cancellation.
// It returns an error if any component fails during startup or execution.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")

		b.listener.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped.")

		if gCtx.Err() == nil {
			b.logger.Warn("Telegram bot listener stopped unexpectedly without context cancellation.")
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting scheduler...")
		if err := b.scheduler.Start(); err != nil {
			b.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		return metrics.Serve(gCtx, b.metricsAddr, b.health, b.logger)
	})

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
