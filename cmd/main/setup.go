package main

import (
	"time"

	"trading-relay/src/activity"
	"trading-relay/src/analytics"
	"trading-relay/src/config"
	"trading-relay/src/gateway"
	"trading-relay/src/hub"
	"trading-relay/src/interfaces"
	"trading-relay/src/logger"
	"trading-relay/src/models"
	"trading-relay/src/state"
	"trading-relay/src/storage"
	"trading-relay/src/upstream"
	"trading-relay/src/utils"
)

// relay holds every long-lived component of the process.
type relay struct {
	cfg       *config.Config
	log       *logger.Logger
	store     *state.StateStore
	hub       *hub.Hub
	rec       *activity.Recorder
	audit     interfaces.IAuditStore
	link      *upstream.Link
	gw        *gateway.Gateway
	analytics *analytics.Manager
}

// -----------------------------------------------------------------------------

// setupAudit opens the audit trail if one is configured.
func setupAudit(cfg *config.Config, appLogger *logger.Logger) (interfaces.IAuditStore, error) {
	audit, err := storage.NewAuditStore(cfg, logger.NewLogger(cfg.LogLevel, "AuditStore"))
	if err != nil {
		return nil, err
	}
	if audit == nil {
		appLogger.Info("Audit trail disabled")
		return nil, nil
	}
	if err := audit.Initialize(); err != nil {
		appLogger.Error("Failed to migrate audit store: %v", err)
		return nil, err
	}
	return audit, nil
}

// -----------------------------------------------------------------------------

// credentials turns configured accounts into in-memory credentials.
func credentials(cfg *config.Config) []models.Credential {
	out := make([]models.Credential, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		if a.Token == "" {
			continue
		}
		out = append(out, models.Credential{
			ID:    utils.NewID(time.Now()),
			Label: a.Label,
			Token: a.Token,
			AppID: a.AppID,
		})
	}
	return out
}

// -----------------------------------------------------------------------------

// setupRelay builds the store, hub, link and command handlers.
func setupRelay(cfg *config.Config, appLogger *logger.Logger) (*relay, error) {
	r := &relay{cfg: cfg, log: appLogger}

	r.store = state.NewStateStore(cfg.State.TickHistory, cfg.State.LogHistory, nil)
	if cfg.Trading.MaxOpenTrades > 0 {
		limit := cfg.Trading.MaxOpenTrades
		r.store.UpdateSettings(models.MSettingsPatch{MaxOpenTrades: &limit})
	}

	r.hub = hub.NewHub(cfg.Broadcast.ClientQueue, hub.StoreBootstrap(r.store, cfg.State.TickHistory, cfg.State.LogHistory),
		logger.NewLogger(cfg.LogLevel, "Hub"))
	r.rec = activity.NewRecorder(r.store, r.hub, appLogger.Named("activity"), nil)

	audit, err := setupAudit(cfg, appLogger)
	if err != nil {
		return nil, err
	}
	if audit != nil {
		r.audit = audit
		r.rec.AttachAudit(audit)
	}

	creds := credentials(cfg)
	var first models.Credential
	if len(creds) > 0 {
		first = creds[0]
	} else {
		appLogger.Warning("No account token configured; add one through /api/accounts/add")
	}

	r.link = upstream.NewLink(upstream.Options{
		URL:               cfg.Upstream.URL,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		RequestTimeout:    cfg.RequestTimeout(),
		SweepInterval:     cfg.SweepInterval(),
		ReconnectBase:     cfg.ReconnectBase(),
		ReconnectMax:      cfg.ReconnectMax(),
		Symbols:           cfg.Upstream.Symbols,
	}, upstream.NewWebsocketDialer(), first, r.store, r.hub, r.rec, logger.NewLogger(cfg.LogLevel, "Upstream"))

	r.gw, err = gateway.NewGateway(gateway.Options{
		AwaitFill:       cfg.Trading.AwaitFill,
		DefaultCurrency: cfg.Trading.DefaultCurrency,
		DefaultAppID:    cfg.Upstream.AppID,
		Cooldown:        cfg.Cooldown(),
		SymbolsTTL:      cfg.SymbolsCacheTTL(),
	}, r.link, r.store, r.rec, r.hub, creds, logger.NewLogger(cfg.LogLevel, "Gateway"))
	if err != nil {
		return nil, err
	}

	sources, err := analytics.NewSources(cfg.Analytics, logger.NewLogger(cfg.LogLevel, "Analytics"))
	if err != nil {
		return nil, err
	}
	r.analytics = analytics.NewManager(sources, r.hub, logger.NewLogger(cfg.LogLevel, "Analytics"))
	return r, nil
}
