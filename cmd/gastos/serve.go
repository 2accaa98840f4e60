package main

import (
	"context"
	"errors"
	"fmt"

	"gastos/internal/amqp"
	"gastos/internal/cache"
	"gastos/internal/format"
	apphttp "gastos/internal/http"
	"gastos/internal/log"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var rateLimit int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON API",
		Long: `Serve the ledger over HTTP. When AMQP_URL is set, changes made by other
gastos processes invalidate this server's cache.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			currency, err := format.NewCurrency(s.Config.DisplayLocale, s.Config.CurrencySymbol)
			if err != nil {
				return err
			}
			srv := apphttp.NewServer(s.Config.Addr(), s.Store, apphttp.Options{
				Logger:    s.logger,
				Currency:  currency,
				RateLimit: rateLimit,
			})

			manager := cache.NewManager(s.logger.With(log.FieldComponent, log.ComponentCache).Logger)
			manager.Register(s.Store.Cache())

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return srv.Run(ctx) })
			g.Go(func() error { return manager.Run(ctx, s.Config.CacheCleanupInterval) })
			if s.Changes != nil {
				g.Go(func() error {
					return s.Changes.ConsumeChanges(ctx, func(ctx context.Context, msg *amqp.ChangeMessage) error {
						s.Store.Invalidate(msg.Table)
						return nil
					})
				})
			}

			s.logger.Info("Starting gastos server",
				"addr", s.Config.Addr(),
				"backend", s.Config.DataBackend,
				"change_events", s.Changes != nil)

			err = g.Wait()
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("serve: %w", err)
			}
			s.logger.Info("Server stopped gracefully")
			return nil
		},
	}
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 60, "mutating requests per client and minute (negative disables)")
	return cmd
}
