package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/harunnryd/frontdesk/pkg/agent"
	"github.com/harunnryd/frontdesk/pkg/calllog"
	"github.com/harunnryd/frontdesk/pkg/config"
	"github.com/harunnryd/frontdesk/pkg/configutil"
	"github.com/harunnryd/frontdesk/pkg/conversation"
	"github.com/harunnryd/frontdesk/pkg/crm"
	"github.com/harunnryd/frontdesk/pkg/dispatch"
	"github.com/harunnryd/frontdesk/pkg/guard"
	"github.com/harunnryd/frontdesk/pkg/handoff"
	"github.com/harunnryd/frontdesk/pkg/logging"
	"github.com/harunnryd/frontdesk/pkg/metrics"
	"github.com/harunnryd/frontdesk/pkg/observers"
	"github.com/harunnryd/frontdesk/pkg/payments"
	"github.com/harunnryd/frontdesk/pkg/prompt"
	"github.com/harunnryd/frontdesk/pkg/providers"
	"github.com/harunnryd/frontdesk/pkg/resilience"
	"github.com/harunnryd/frontdesk/pkg/runner"
	"github.com/harunnryd/frontdesk/pkg/server"
	"github.com/harunnryd/frontdesk/pkg/store"
	"github.com/harunnryd/frontdesk/pkg/tools"
)

// bootstrap wires every component from cfg. Resources opened here are
// released by the runner's OnStop hook.
func bootstrap(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runner.LifecycleRunner, error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	st, err := store.Open(ctx, cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}
	closers = append(closers, func() { _ = st.Close() })
	if cfg.Storage.SeedFile != "" {
		n, err := st.SeedFromFile(ctx, cfg.Storage.SeedFile)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("seed tenants: %w", err)
		}
		logger.Info("tenants_seeded", "created", n, "file", cfg.Storage.SeedFile)
	}

	obs, closeObs := buildObserver(cfg.Observability, logger)
	closers = append(closers, closeObs)

	adapter, err := providers.NewRegistry(obs).BuildLLM(cfg.Vendors.LLM)
	if err != nil {
		cleanup()
		return nil, err
	}
	logger.Info("llm_adapter_ready", "provider", adapter.Name())

	var recorder calllog.Recorder = st
	dispatchers := dispatch.Fanout{}
	if cfg.Dispatch.NATSURL != "" {
		nc, err := dispatch.ConnectNATS(cfg.Dispatch.NATSURL, cfg.Dispatch.Subject)
		if err != nil {
			cleanup()
			return nil, err
		}
		closers = append(closers, nc.Close)
		dispatchers = append(dispatchers, nc)
		recorder = dispatch.AnnouncingRecorder{
			Recorder:  st,
			Announcer: nc,
			OnError: func(err error) {
				logger.Warn("call_log_announce_failed", "error", err)
			},
		}
		logger.Info("dispatch_nats_ready", "subject", nc.Subject())
	}
	if cfg.Handoff.Provider == "twilio" {
		dispatchers = append(dispatchers, handoff.NewTwilio(handoff.Config{
			AccountSID: cfg.Handoff.AccountSID,
			AuthToken:  cfg.Handoff.AuthToken,
			CallerID:   cfg.Handoff.CallerID,
		}, logging.NewComponentLogger(logger, "handoff")))
	}

	crmFactory := crm.NewFactory(
		crm.WithHTTPClient(&http.Client{Timeout: configutil.Millis(cfg.CRM.TimeoutMS, 15*time.Second)}),
		crm.WithLogger(logging.NewComponentLogger(logger, "crm")),
		crm.WithServiceTitanEndpoints(cfg.CRM.ServiceTitanAuthURL, cfg.CRM.ServiceTitanAPIBase),
		crm.WithRetry(resilience.NewRetryPolicy(cfg.CRM.Retries, configutil.Millis(cfg.CRM.RetryBackoffMS, 250*time.Millisecond))),
	)
	registry := tools.NewRegistry(tools.Deps{
		CRM:      crmFactory,
		Payments: payments.NewStripe(payments.StripeConfig{SecretKey: cfg.Payments.StripeSecretKey}),
		CallLogs: recorder,
		Logger:   logging.NewComponentLogger(logger, "tools"),
	})

	loop := agent.New(adapter, registry, agent.Config{
		MaxIterations:   cfg.Agent.MaxIterations,
		MaxToolFailures: cfg.Agent.MaxToolFailures,
		Observer:        obs,
		Logger:          logging.NewComponentLogger(logger, "agent"),
	})
	prompts := prompt.NewAssembler(cfg.Templates.Dir, logging.NewComponentLogger(logger, "prompt"))
	svc := conversation.NewService(conversation.Deps{
		Tenants:    st,
		Guard:      guard.New(logging.NewComponentLogger(logger, "guard")),
		Prompts:    prompts,
		Loop:       loop,
		Dispatcher: dispatchers,
		Observer:   obs,
		Logger:     logging.NewComponentLogger(logger, "conversation"),
	})

	model, _ := cfg.Vendors.LLM.Settings["model"].(string)
	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		Secret:         cfg.Server.Secret,
		AllowAnonymous: cfg.AllowsAnonymous(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Model:          model,
	}, server.Deps{
		Conversation: svc,
		Clients:      st,
		Prompts:      prompts,
		CallLogs:     recorder,
		Logger:       logging.NewComponentLogger(logger, "http"),
	})
	if cfg.Server.Secret == "" && cfg.AllowsAnonymous() {
		logger.Warn("server_secret_empty", "hint", "mock provider accepts unauthenticated requests")
	}

	return runner.NewLifecycleRunner(
		[]runner.Service{srv},
		runner.Hooks{OnStop: cleanup},
		configutil.Millis(cfg.Server.DrainTimeoutMS, 10*time.Second),
		logger,
	), nil
}

// buildObserver logs metrics events and, when configured, writes per-call
// timelines. Recording is asynchronous so a slow disk never stalls a turn.
func buildObserver(cfg config.ObservabilityConfig, logger *slog.Logger) (metrics.Observer, func()) {
	logged := metrics.NewSamplingObserver(
		observers.NewLoggerObserver(logging.NewComponentLogger(logger, "metrics")),
		cfg.LogSampleRate,
		metrics.EventToolEscalated, metrics.EventMaxIterations, metrics.EventBreakerOpen,
		metrics.EventRateLimit, metrics.EventShortCircuit,
	)
	list := []metrics.Observer{logged}
	var timeline *observers.TimelineObserver
	if cfg.TimelinesDir != "" {
		if cfg.RetentionDays > 0 {
			n, err := observers.PurgeTimelines(cfg.TimelinesDir, time.Duration(cfg.RetentionDays)*24*time.Hour)
			if err != nil {
				logger.Warn("timeline_purge_failed", "error", err)
			}
			logger.Info("timeline_purge", "removed", n)
		}
		timeline = observers.NewTimelineObserver(cfg.TimelinesDir)
		list = append(list, timeline)
	}
	async := metrics.NewAsyncObserver(observers.NewMultiObserver(list...), cfg.MetricsBuffer)
	return async, func() {
		async.Close()
		if dropped := async.Dropped(); dropped > 0 {
			logger.Warn("metrics_events_dropped", "count", dropped)
		}
		if timeline != nil {
			_ = timeline.Close()
		}
	}
}
