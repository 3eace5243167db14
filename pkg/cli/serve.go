package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gots/slice"
	"github.com/m-mizutani/hubsync/pkg/cli/config"
	"github.com/m-mizutani/hubsync/pkg/controller/server"
	"github.com/m-mizutani/hubsync/pkg/infra"
	"github.com/m-mizutani/hubsync/pkg/infra/ghapp"
	"github.com/m-mizutani/hubsync/pkg/infra/queue"
	"github.com/m-mizutani/hubsync/pkg/repository/memory"
	"github.com/m-mizutani/hubsync/pkg/usecase"
	"github.com/m-mizutani/hubsync/pkg/utils/errutil"
	"github.com/m-mizutani/hubsync/pkg/utils/logging"

	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		addr string

		githubApp config.GitHubApp
		firestore config.Firestore
		bigQuery  config.BigQuery
		sentry    config.Sentry
		syncCfg   config.Sync
	)
	serveFlags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Binding address",
			Value:       "127.0.0.1:8000",
			Sources:     cli.EnvVars("HUBSYNC_ADDR"),
			Destination: &addr,
		},
	}

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Server mode",
		Flags: slice.Flatten(
			serveFlags,
			githubApp.Flags(),
			firestore.Flags(),
			bigQuery.Flags(),
			sentry.Flags(),
			syncCfg.Flags(),
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			logging.Default().Info("starting serve",
				slog.Any("Addr", addr),
				slog.Any("GitHubApp", githubApp),
				slog.Any("Firestore", firestore),
				slog.Any("BigQuery", bigQuery),
				slog.Any("Sentry", sentry),
				slog.Any("Sync", syncCfg),
			)

			if err := sentry.Configure(ctx); err != nil {
				return err
			}

			tokens, err := githubApp.NewTokenResolver()
			if err != nil {
				return err
			}

			repo := memory.New()
			if firestore.Enabled() {
				fsRepo, err := firestore.NewRepository(ctx)
				if err != nil {
					return err
				}
				repo = fsRepo
			} else {
				logging.Default().Warn("no Firestore configured, using in-memory repository")
			}

			q := queue.New()

			infraOptions := []infra.Option{
				infra.WithGitHub(ghapp.New(tokens)),
				infra.WithTokens(tokens),
				infra.WithSyncRepository(repo),
				infra.WithQueue(q),
			}

			if bqClient, err := bigQuery.NewClient(ctx); err != nil {
				return err
			} else if bqClient != nil {
				infraOptions = append(infraOptions, infra.WithBigQuery(bqClient))
			}

			clients := infra.New(infraOptions...)

			uc := usecase.New(clients, syncCfg.Options()...)
			q.SetHandler(uc.HandleTask)
			s := server.New(uc, server.WithGitHubSecret(githubApp.Secret()))

			pollCtx, stopPollers := context.WithCancel(
				logging.With(context.Background(), logging.Default()),
			)
			defer stopPollers()

			startPoller(pollCtx, syncCfg.FastPoll(), "process events", func(ctx context.Context) error {
				return uc.ProcessPendingEvents(ctx, syncCfg.BatchLimit())
			})
			startPoller(pollCtx, syncCfg.SlowPoll(), "promote retries", uc.PromoteRetryEvents)
			startPoller(pollCtx, syncCfg.ReapPoll(), "reap stuck jobs", uc.ReapStuckJobs)

			serverErr := make(chan error, 1)
			httpServer := &http.Server{
				Addr:    addr,
				Handler: s.Mux(),

				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
			}

			go func() {
				logging.Default().Info("starting http server", "addr", addr)
				if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
					serverErr <- goerr.Wrap(err, "failed to listen and serve")
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-serverErr:
				return err

			case sig := <-quit:
				logging.Default().Info("shutting down server", "signal", sig)

				stopPollers()

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := httpServer.Shutdown(ctx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server")
				}

				q.Wait()
			}

			return nil
		},
	}
}

// startPoller runs fn on every tick until the context is cancelled.
func startPoller(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					errutil.HandleError(ctx, "poller failed: "+name, err)
				}
			}
		}
	}()
}
