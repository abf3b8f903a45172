// TeleMVC - annotation-style update routing for Telegram bots
// License: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhaopengme/telemvc/pkg/bus"
	"github.com/zhaopengme/telemvc/pkg/channels"
	"github.com/zhaopengme/telemvc/pkg/config"
	"github.com/zhaopengme/telemvc/pkg/dispatch"
	"github.com/zhaopengme/telemvc/pkg/logger"
	"github.com/zhaopengme/telemvc/pkg/metrics"
	"github.com/zhaopengme/telemvc/pkg/routing"
	"github.com/zhaopengme/telemvc/pkg/session"
	"github.com/zhaopengme/telemvc/pkg/update"
)

func newGatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Poll the configured bots and dispatch their updates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if len(cfg.BotTokens) == 0 {
				return errors.New("no bot tokens configured (TELEMVC_BOT_TOKENS)")
			}
			if err := logger.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGateway(ctx, cfg)
		},
	}
}

func runGateway(ctx context.Context, cfg *config.Config) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	registry := routing.NewRegistry()
	if err := registerBuiltins(registry); err != nil {
		return err
	}

	sessions, err := session.NewStore[*session.Session](cfg.SessionTTL(),
		session.WithDestroyHook(func(key update.SessionKey, _ *session.Session) {
			logger.DebugCF("session", "Session expired", map[string]interface{}{"session": string(key)})
		}),
	)
	if err != nil {
		return err
	}
	defer sessions.Close()

	pool, err := dispatch.NewPool(cfg.Workers.Min, cfg.Workers.Max, cfg.WorkerKeepAlive())
	if err != nil {
		return err
	}

	meters, err := metrics.Setup(ctx, "telemvc")
	if err != nil {
		return fmt.Errorf("setup metrics: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := meters.Shutdown(flushCtx); err != nil {
			logger.WarnCF("gateway", "Metrics shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()
	recorder, err := metrics.New(meters.Meter())
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	outbound := bus.NewMessageBus(cfg.OutboundQueueSize)
	dispatcher, err := dispatch.New(registry, sessions, pool, dispatch.WithMetrics(recorder))
	if err != nil {
		return err
	}

	var bots []*channels.TelegramChannel
	for _, token := range cfg.BotTokens {
		ch, err := channels.NewTelegramChannel(token, channels.TelegramOptions{
			Proxy:       cfg.Proxy,
			PollTimeout: cfg.PollTimeout(),
			AllowFrom:   cfg.AllowFrom,
		}, dispatcher, outbound)
		if err != nil {
			return err
		}
		outbound.RegisterSender(ch.Bot(), ch)
		bots = append(bots, ch)
	}

	// The bus outlives ctx so replies produced while draining still go out.
	busCtx, cancelBus := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBus()
	busDone := make(chan struct{})
	go func() {
		defer close(busDone)
		outbound.Run(busCtx)
	}()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return sessions.RunSweeper(egCtx, cfg.Session.SweepSchedule)
	})
	eg.Go(func() error {
		meters.RunReporter(egCtx, cfg.MetricsInterval())
		return nil
	})
	var startErr error
	for _, ch := range bots {
		if startErr = ch.Start(egCtx); startErr != nil {
			cancelRun()
			break
		}
	}

	if startErr == nil {
		logger.InfoCF("gateway", "Gateway started", map[string]interface{}{
			"bots":     len(bots),
			"handlers": registry.Len(),
			"workers":  fmt.Sprintf("%d-%d", cfg.Workers.Min, cfg.Workers.Max),
		})
	}

	<-egCtx.Done()
	logger.InfoC("gateway", "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	// ingestion first; senders stay open until the bus has drained
	for _, ch := range bots {
		if err := ch.Stop(shutdownCtx); err != nil {
			logger.WarnCF("gateway", "Channel did not stop in time", map[string]interface{}{"error": err.Error()})
		}
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.WarnCF("gateway", "Dispatches still running at shutdown", map[string]interface{}{"error": err.Error()})
	}

	outbound.Close()
	select {
	case <-busDone:
	case <-shutdownCtx.Done():
		cancelBus()
	}
	for _, ch := range bots {
		ch.Close()
	}

	if err := errors.Join(startErr, eg.Wait()); err != nil {
		return err
	}
	logger.InfoC("gateway", "Gateway stopped")
	return nil
}
