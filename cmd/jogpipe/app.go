package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/JogPipe/internal/config"
	"github.com/BTreeMap/JogPipe/internal/dispatch"
	"github.com/BTreeMap/JogPipe/internal/engine"
	"github.com/BTreeMap/JogPipe/internal/push"
	"github.com/BTreeMap/JogPipe/internal/store"
)

// app bundles the components shared by every subcommand.
type app struct {
	cfg    *config.Config
	loc    *time.Location
	store  store.Store
	engine *engine.Engine
}

// newSender builds the push transport selected by push.transport.
func newSender(ctx context.Context, cfg config.PushConfig) (push.Sender, error) {
	switch cfg.Transport {
	case config.TransportLog, "":
		return push.NewLogSender(), nil
	case config.TransportFCM:
		return push.NewFCMSender(ctx,
			push.WithCredentialsFile(cfg.FCM.CredentialsFile),
			push.WithCredentialsBase64(cfg.FCM.CredentialsBase64),
			push.WithProjectID(cfg.FCM.ProjectID),
			push.WithSendTimeout(cfg.SendTimeout),
		)
	case config.TransportTwilio:
		return push.NewTwilioSender(
			push.WithAccountSID(cfg.Twilio.AccountSID),
			push.WithAuthToken(cfg.Twilio.AuthToken),
			push.WithFromNumber(cfg.Twilio.FromNumber),
		)
	default:
		return nil, fmt.Errorf("unknown push transport %q", cfg.Transport)
	}
}

// newApp opens the store and wires the dispatcher and engine.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	sender, err := newSender(ctx, cfg.Push)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create %s sender: %w", cfg.Push.Transport, err)
	}

	d := dispatch.New(sender, st, dispatch.WithRateLimit(cfg.Push.Rate, cfg.Push.Burst))
	eng := engine.New(st, d,
		engine.WithLocation(loc),
		engine.WithWorkers(cfg.Engine.Workers),
		engine.WithOverdueLag(cfg.Engine.OverdueLag),
		engine.WithDedupRetention(cfg.Engine.DedupRetention),
	)
	slog.Debug("app wired", "timezone", loc.String(), "transport", cfg.Push.Transport, "dsn_set", cfg.Store.DSN != "")

	return &app{cfg: cfg, loc: loc, store: st, engine: eng}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
