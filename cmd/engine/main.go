package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tradeforge/position-engine/internal/config"
	"github.com/tradeforge/position-engine/internal/engine"
	"github.com/tradeforge/position-engine/internal/exchange/bybit"
	"github.com/tradeforge/position-engine/internal/logger"
	"github.com/tradeforge/position-engine/internal/market"
	"github.com/tradeforge/position-engine/internal/monitoring"
	"github.com/tradeforge/position-engine/internal/notifications"
	"github.com/tradeforge/position-engine/internal/state"
	"github.com/tradeforge/position-engine/pkg/reporting"
)

func main() {
	var (
		configFile = flag.String("config", "engine.json", "Configuration file (bare names resolve against configs/)")
		envFile    = flag.String("env", ".env", "Environment file path")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	// Load environment variables from .env file
	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("Warning: Could not load %s (%v), using environment variables", *envFile, err)
	}

	cfg, err := config.LoadEngineConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.NewLoggerWithDebug(cfg.Engine.Instance, *debug)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Close()

	if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
		log.Fatal("Please set EXCHANGE_API_KEY and EXCHANGE_API_SECRET in .env file or environment variables")
	}

	adapter := bybit.NewAdapter(cfg.Exchange)
	provider := market.NewSnapshotProvider(adapter)
	predictor := market.NewHeuristicPredictor(provider)
	persistence := state.NewPersistence(lg, cfg.Engine.StateDir, cfg.Engine.Instance)
	health := monitoring.NewHealthChecker()

	var notifier *notifications.TelegramNotifier
	if cfg.Notifications != nil && cfg.Notifications.Enabled {
		notifier = notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChat)
	}

	eng := engine.New(cfg, lg, engine.Deps{
		Data:        provider,
		Prices:      provider,
		Exec:        adapter,
		Predictor:   predictor,
		Persistence: persistence,
		Notifier:    notifier,
		Health:      health,
	})

	console := reporting.NewConsoleReporter()
	console.PrintStartupBanner(cfg.Engine.Instance, adapter.Environment(), eng.ActivePreset(), cfg.Engine.Watchlist)

	startMonitoringServers(cfg.Monitoring, health, lg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		lg.Error("Engine startup failed: %v", err)
		os.Exit(1)
	}
	health.SetConnected(true)

	fmt.Printf("🚀 Engine running, cycle every %s. Press Ctrl+C to stop.\n", cfg.CycleInterval())

	if err := eng.Run(ctx); err != nil {
		lg.Error("Engine stopped with error: %v", err)
	}

	exportAndSummarize(eng, console, cfg, lg)
	fmt.Println("👋 Engine stopped")
}

// startMonitoringServers starts the metrics and health HTTP listeners on
// their configured ports; a zero port disables the endpoint
func startMonitoringServers(cfg config.MonitoringConfig, health *monitoring.HealthChecker, lg *logger.Logger) {
	if cfg.PrometheusPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", monitoring.NewMetricsHandler())
		addr := fmt.Sprintf(":%d", cfg.PrometheusPort)
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				lg.Error("Metrics server failed: %v", err)
			}
		}()
		lg.Info("Metrics endpoint listening on %s/metrics", addr)
	}

	if cfg.HealthPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/health", health)
		addr := fmt.Sprintf(":%d", cfg.HealthPort)
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				lg.Error("Health server failed: %v", err)
			}
		}()
		lg.Info("Health endpoint listening on %s/health", addr)
	}
}

// exportAndSummarize writes the session's trade history to a workbook and
// prints the closing summary tables
func exportAndSummarize(eng *engine.Engine, console *reporting.ConsoleReporter, cfg *config.EngineConfig, lg *logger.Logger) {
	records := eng.TradeHistory()
	console.PrintTradeSummary(records)
	console.PrintRiskStatus(eng.RiskSnapshot(), eng.GetRiskStatus().TotalValue)

	if len(records) == 0 {
		return
	}

	path := filepath.Join("results", fmt.Sprintf("%s_trades_%s.xlsx",
		cfg.Engine.Instance, time.Now().UTC().Format("20060102_150405")))
	if err := reporting.NewExcelReporter().WriteTradeHistory(records, eng.RiskSnapshot(), path); err != nil {
		lg.Error("Excel export failed: %v", err)
		return
	}
	fmt.Printf("📊 Trade history exported to %s\n", path)
}
