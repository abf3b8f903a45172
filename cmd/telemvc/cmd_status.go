// TeleMVC - annotation-style update routing for Telegram bots
// License: MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhaopengme/telemvc/pkg/config"
	"github.com/zhaopengme/telemvc/pkg/routing"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the effective configuration and built-in handlers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			registry := routing.NewRegistry()
			if err := registerBuiltins(registry); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s telemvc Status\n", logo)
			fmt.Fprintf(out, "Version: %s\n", formatVersion())
			fmt.Fprintln(out)

			if len(cfg.BotTokens) == 0 {
				fmt.Fprintln(out, "Bots: not set")
			}
			for _, token := range cfg.BotTokens {
				fmt.Fprintf(out, "Bot: %s ✓\n", maskToken(token))
			}
			fmt.Fprintf(out, "Session TTL: %s (sweep %q)\n", cfg.SessionTTL(), cfg.Session.SweepSchedule)
			fmt.Fprintf(out, "Workers: %d-%d (keep-alive %s)\n", cfg.Workers.Min, cfg.Workers.Max, cfg.WorkerKeepAlive())
			fmt.Fprintf(out, "Outbound queue: %d\n", cfg.OutboundQueueSize)
			if cfg.Proxy != "" {
				fmt.Fprintf(out, "Proxy: %s\n", cfg.Proxy)
			}
			if len(cfg.AllowFrom) > 0 {
				fmt.Fprintf(out, "Allow from: %v\n", cfg.AllowFrom)
			}

			fmt.Fprintln(out, "\nHandlers:")
			for _, d := range registry.Descriptors() {
				fmt.Fprintf(out, "  %s\n", d)
			}
			return nil
		},
	}
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}
