package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wayfarer/pkg/agent"
	"wayfarer/pkg/channels"
	_ "wayfarer/pkg/channels/autoload" // Channel factory registration
	"wayfarer/pkg/config"
	"wayfarer/pkg/gateway"
	"wayfarer/pkg/handler"
	"wayfarer/pkg/llm"
	_ "wayfarer/pkg/llm/autoload" // LLM provider factory registration
	"wayfarer/pkg/monitor"
	"wayfarer/pkg/places"
	"wayfarer/pkg/tools"
)

func main() {
	// --- 0. Load configuration ---
	cfg, sysCfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	monitor.Startup(sysCfg.LogLevel)

	gw, cleanup, err := buildGateway(cfg, sysCfg)
	if err != nil {
		slog.Error("Failed to build gateway", "error", err)
		os.Exit(1)
	}

	// --- Config hot reload ---
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	reloadCh := config.WatchConfig(watchCtx, "config.json", "system.json")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-reloadCh:
			slog.Info("Configuration changed, reloading")
			gw, cleanup, cfg, sysCfg = reloadGateway(gw, cleanup, cfg, sysCfg)

		case <-sigChan:
			slog.Info("Received shutdown signal, stopping services")
			gw.StopAll()
			cleanup()
			slog.Info("Bye!")
			return
		}
	}
}

// reloadGateway swaps the running gateway for one built from freshly loaded
// configuration. A configuration that fails to load or validate leaves the
// running gateway untouched, so a half-written config file cannot take the
// service down. A failed rebuild falls back to the previous known-good
// configuration.
func reloadGateway(gw *gateway.GatewayManager, cleanup func(), cfg *config.Config, sysCfg *config.SystemConfig) (*gateway.GatewayManager, func(), *config.Config, *config.SystemConfig) {
	newCfg, newSysCfg, err := config.Load()
	if err != nil {
		slog.Error("Reload skipped, configuration invalid", "error", err)
		return gw, cleanup, cfg, sysCfg
	}

	gw.StopAll()
	cleanup()

	newGw, newCleanup, err := buildGateway(newCfg, newSysCfg)
	if err == nil {
		slog.Info("Gateway rebuilt")
		return newGw, newCleanup, newCfg, newSysCfg
	}

	slog.Error("Failed to rebuild gateway, restoring previous configuration", "error", err)
	newGw, newCleanup, err = buildGateway(cfg, sysCfg)
	if err != nil {
		slog.Error("Failed to restore gateway", "error", err)
		os.Exit(1)
	}
	return newGw, newCleanup, cfg, sysCfg
}

// buildGateway assembles the full service graph: places backend, LLM client,
// session store, tools, experts, engine, handler, and channels.
func buildGateway(cfg *config.Config, sysCfg *config.SystemConfig) (*gateway.GatewayManager, func(), error) {
	// --- 1. Places backend (with optional Redis response cache) ---
	var cache *places.Cache
	if cfg.Places.RedisAddr != "" {
		ttl := time.Duration(cfg.Places.CacheTTLMin) * time.Minute
		if ttl <= 0 {
			ttl = time.Hour
		}
		cache = places.NewCache(cfg.Places.RedisAddr, cfg.Places.RedisDB, ttl)
	}
	placesClient := places.NewClient(
		cfg.ResolvedPlacesKey(),
		cfg.Places.BaseURL,
		time.Duration(sysCfg.PlacesTimeoutMs)*time.Millisecond,
		cache,
	)

	// --- 2. LLM client ---
	client, err := llm.NewFromConfig(cfg.LLM, sysCfg)
	if err != nil {
		return nil, nil, err
	}

	// --- 3. Session store ---
	sessions := llm.NewSessionManager(sysCfg.SessionDir)

	// --- 4. Agent engine with specialist experts ---
	engine := agent.NewAgentEngine(client, cfg, sysCfg, sessions)
	engine.RegisterTool(agent.BuildExperts(client, placesClient, sysCfg)...)
	engine.RegisterTool(
		tools.NewGeocodeTool(placesClient),
		tools.NewFindHotelsTool(placesClient, sysCfg),
		tools.NewFindActivitiesTool(placesClient, sysCfg),
	)

	// --- 5. Gateway assembly ---
	chs := channels.LoadFromConfig(cfg.Channels, sessions, sysCfg)

	gw, err := gateway.NewGatewayBuilder().
		WithSystemConfig(sysCfg).
		WithMonitor(monitor.NewCLIMonitor()).
		WithChannel(chs...).
		WithAgentEngine(engine).
		WithHandler(handler.NewChatHandler(engine, sessions)).
		Build()
	if err != nil {
		if cache != nil {
			cache.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		if cache != nil {
			cache.Close()
		}
	}
	return gw, cleanup, nil
}
