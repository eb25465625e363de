package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"triggerhub/internal/common/httpx"
	"triggerhub/internal/common/logging"
	"triggerhub/internal/config"
	"triggerhub/internal/providers/calendar"
	"triggerhub/internal/providers/dropbox"
	"triggerhub/internal/providers/github"
	"triggerhub/internal/providers/gmail"
	"triggerhub/internal/providers/slack"
	"triggerhub/internal/providers/sns"
	"triggerhub/internal/providers/telegram"
	"triggerhub/internal/renewal"
	"triggerhub/internal/server"
	"triggerhub/internal/store"
	"triggerhub/internal/trigger"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	logging.InitGlobalLogger(cfg.LogLevel)

	st, err := store.DefaultRegistry.Create(cfg.StoreType, store.Config{
		Path:     cfg.SQLitePath,
		URL:      cfg.PostgresURL,
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logging.Error("failed to open store", err)
		os.Exit(1)
	}
	defer st.Close()

	subs := trigger.NewSubscriptions(st)
	checkpoint := trigger.NewCheckpoint(st)

	registry, err := assembleRegistry(cfg, checkpoint)
	if err != nil {
		logging.Error("failed to assemble provider registry", err)
		os.Exit(1)
	}

	handler := server.NewRouter(registry, subs, logEvents)
	srv := server.New(handler, cfg.Port)
	if err := srv.Start(); err != nil {
		logging.Error("failed to start server", err)
		os.Exit(1)
	}
	logging.Info("trigger hub listening",
		logging.Field{Key: "port", Value: cfg.Port},
		logging.Field{Key: "store", Value: cfg.StoreType},
		logging.Field{Key: "providers", Value: registry.Providers()})

	var scheduler *renewal.Scheduler
	if cfg.RenewalEnabled {
		scheduler = renewal.New(registry, subs, nil, cfg.RenewalLead)
		if err := scheduler.Start(cfg.RenewalSchedule); err != nil {
			logging.Error("failed to start renewal scheduler", err)
			os.Exit(1)
		}
		logging.Info("renewal scheduler started",
			logging.Field{Key: "schedule", Value: cfg.RenewalSchedule},
			logging.Field{Key: "lead", Value: cfg.RenewalLead.String()})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down")
	if scheduler != nil {
		scheduler.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("server shutdown failed", err)
	}
}

func assembleRegistry(cfg *config.Config, checkpoint *trigger.Checkpoint) (*trigger.Registry, error) {
	registry := trigger.NewRegistry()
	client := httpx.NewClient()

	if err := github.Register(registry, client); err != nil {
		return nil, err
	}
	if err := slack.Register(registry, client); err != nil {
		return nil, err
	}
	if err := telegram.Register(registry, client); err != nil {
		return nil, err
	}
	if err := dropbox.Register(registry, checkpoint, client); err != nil {
		return nil, err
	}
	if err := calendar.Register(registry, checkpoint, client); err != nil {
		return nil, err
	}
	if err := sns.Register(registry, nil); err != nil {
		return nil, err
	}

	gmailDeps := gmail.Deps{
		Checkpoint: checkpoint,
		Client:     client,
		TopicID:    cfg.GmailTopic,
	}
	if cfg.GCPProject != "" {
		provisioner, err := gmail.NewPubSubProvisioner(context.Background(), cfg.GCPProject)
		if err != nil {
			return nil, err
		}
		gmailDeps.Provisioner = provisioner
	}
	if err := gmail.Register(registry, gmailDeps); err != nil {
		return nil, err
	}

	return registry, nil
}

// logEvents is the default sink: projected events land in the structured
// log. A host embedding this service swaps in its own consumer.
func logEvents(ctx context.Context, provider string, sub *trigger.Subscription, batches []trigger.EventBatch) {
	for _, batch := range batches {
		logging.Info("event dispatched",
			logging.Field{Key: "provider", Value: provider},
			logging.Field{Key: "subscription", Value: sub.ID},
			logging.Field{Key: "event", Value: batch.Event},
			logging.Field{Key: "variables", Value: batch.Variables})
	}
}
