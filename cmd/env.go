package main

import (
	"context"

	"github.com/sells-group/brandpulse/internal/poller"
	"github.com/sells-group/brandpulse/internal/resilience"
	"github.com/sells-group/brandpulse/internal/session"
	"github.com/sells-group/brandpulse/internal/store"
	"github.com/sells-group/brandpulse/pkg/pipelineapi"
)

func initClient() (pipelineapi.Client, error) {
	if err := cfg.Validate("client"); err != nil {
		return nil, err
	}
	opts := []pipelineapi.Option{
		pipelineapi.WithBaseURL(cfg.API.BaseURL),
		pipelineapi.WithToken(cfg.API.Token),
		pipelineapi.WithTimeout(cfg.API.Timeout()),
		pipelineapi.WithRetry(resilience.FromSettings(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)),
	}
	if cfg.API.RatePerSec > 0 {
		opts = append(opts, pipelineapi.WithRateLimit(cfg.API.RatePerSec, cfg.API.Burst))
	}
	return pipelineapi.NewClient(opts...), nil
}

func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	return store.New(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		DatabaseURL: cfg.Store.DatabaseURL,
		MaxConns:    cfg.Store.MaxConns,
	})
}

func newPoller(client pipelineapi.Client) *poller.Poller {
	return poller.New(client, poller.WithInterval(cfg.Poll.Interval()))
}

func sessionOptions(st store.Store) []session.Option {
	opts := []session.Option{
		session.WithStalenessIntervals(cfg.Staleness.ActiveInterval(), cfg.Staleness.IdleInterval()),
	}
	if st != nil {
		opts = append(opts, session.WithStore(st))
	}
	return opts
}
