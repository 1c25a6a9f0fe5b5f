package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/Bonii97/Heimbas-Calender/internal/config"
	appLog "github.com/Bonii97/Heimbas-Calender/internal/log"
	"github.com/Bonii97/Heimbas-Calender/internal/pipeline"
	"github.com/Bonii97/Heimbas-Calender/internal/schedule"
	"github.com/Bonii97/Heimbas-Calender/internal/web"
)

// cronLogger adapts the app logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var listen string
	var noServer bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Synchronize on the refresh schedule and serve the calendars over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			return watch(cmd.Context(), cfg, !noServer)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	cmd.Flags().BoolVar(&noServer, "no-server", false, "Do not start the HTTP server")
	return cmd
}

func watch(ctx context.Context, cfg *config.Config, serve bool) error {
	store := web.NewStore()
	runner := pipeline.NewRunner(cfg)
	runner.Sink = store

	tick := func() {
		if err := runner.RunAll(ctx); err != nil {
			appLog.Warn("scheduled run finished with errors", "err", err)
		}
	}

	c := cron.New(
		cron.WithLocation(schedule.Location),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{})),
	)
	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{})).Then(cron.FuncJob(tick))
	if _, err := c.AddJob(cfg.RefreshCron, job); err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.RefreshCron, err)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	if serve {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := web.Serve(ctx, cfg, store); err != nil {
				errCh <- err
			}
		}()
	}

	appLog.Info("watch started", "refresh", cfg.RefreshCron, "timezone", schedule.TimezoneName, "users", len(cfg.Users))

	// The first tick runs through the same job so a slow initial run and the
	// first scheduled tick never overlap.
	wg.Add(1)
	go func() {
		defer wg.Done()
		job.Run()
	}()
	c.Start()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	appLog.Info("watch stopping")
	<-c.Stop().Done()
	wg.Wait()
	return runErr
}
