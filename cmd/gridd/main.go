package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l1jgo/cartgrid/internal/config"
	"github.com/l1jgo/cartgrid/internal/core/event"
	coresys "github.com/l1jgo/cartgrid/internal/core/system"
	"github.com/l1jgo/cartgrid/internal/data"
	"github.com/l1jgo/cartgrid/internal/handler"
	"github.com/l1jgo/cartgrid/internal/metrics"
	gonet "github.com/l1jgo/cartgrid/internal/net"
	"github.com/l1jgo/cartgrid/internal/net/packet"
	"github.com/l1jgo/cartgrid/internal/persist"
	"github.com/l1jgo/cartgrid/internal/scripting"
	"github.com/l1jgo/cartgrid/internal/system"
	"github.com/l1jgo/cartgrid/internal/world"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              gridd  v0.1.0                \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m       cartesian grid zone service         \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s \033[90m(id: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("GRIDD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Connect to PostgreSQL and run migrations
	printSection("database")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	printOK("PostgreSQL connected")

	schemaVersion, err := persist.RunMigrations(ctx, db.Pool, log)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK(fmt.Sprintf("schema at version %d", schemaVersion))

	peerRepo := persist.NewPeerRepo(db)
	if err := peerRepo.ResetOnline(ctx); err != nil {
		return fmt.Errorf("reset online flags: %w", err)
	}
	assignRepo := persist.NewAssignmentRepo(db)
	zoneLogRepo := persist.NewZoneLogRepo(db)
	if cfg.Persist.ZoneLogRetention > 0 {
		pruned, err := zoneLogRepo.Prune(ctx, time.Now().Add(-cfg.Persist.ZoneLogRetention))
		if err != nil {
			return fmt.Errorf("prune zone log: %w", err)
		}
		printStat("zone log entries pruned", int(pruned))
	}
	fmt.Println()

	// 4. Wire protocol charset
	if err := packet.SetCharset(cfg.Network.Charset); err != nil {
		return fmt.Errorf("network charset: %w", err)
	}

	// 5. Metrics
	var collector metrics.Collector = metrics.NewNop()
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		pc, err := metrics.NewPrometheus(promReg, cfg.Metrics.Namespace)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		collector = pc

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(promReg))
		metricsSrv = &http.Server{Addr: cfg.Metrics.BindAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	// 6. Event bus, scheduler and grids
	printSection("grids")

	bus := event.NewBus()
	sched := coresys.NewScheduler()
	svc := world.NewService(world.Deps{
		Scheduler:    sched,
		Notifier:     world.NewBusNotifier(bus),
		Metrics:      collector,
		Log:          log,
		PollInterval: cfg.Grid.PollInterval,
	})

	gridTable, err := data.LoadGridTable(cfg.Grid.DefinitionsPath)
	if err != nil {
		return fmt.Errorf("grid table: %w", err)
	}
	for _, def := range gridTable.All() {
		part, err := def.Partition()
		if err != nil {
			return fmt.Errorf("grid %d: %w", def.ID, err)
		}
		if _, err := svc.CreateGrid(world.GridID(def.ID), def.Name, part); err != nil {
			return fmt.Errorf("grid %d: %w", def.ID, err)
		}
	}
	printStat("grids", gridTable.Count())

	if cfg.Persist.Enabled && cfg.Grid.RestoreOnBoot {
		n, err := system.RestoreGrids(ctx, svc, assignRepo, log)
		if err != nil {
			return fmt.Errorf("restore grids: %w", err)
		}
		printStat("restored objects", n)
	}
	fmt.Println()

	// 7. Lua hooks
	if cfg.Scripting.Enabled {
		luaEngine, err := scripting.NewEngine(cfg.Scripting.Dir, log)
		if err != nil {
			return fmt.Errorf("scripting: %w", err)
		}
		defer luaEngine.Close()
		event.Subscribe(bus, luaEngine.OnZoneChanged)
		event.Subscribe(bus, luaEngine.OnObjectRemoved)
		printOK(fmt.Sprintf("lua hooks loaded from %s", cfg.Scripting.Dir))
	}

	// 8. Packet handlers
	sessions := gonet.NewSessionStore()
	pktReg := packet.NewRegistry(log)
	pktReg.OnDispatch = collector.IncPackets
	handler.RegisterAll(pktReg, &handler.Deps{
		Config:   cfg,
		Log:      log,
		Service:  svc,
		Peers:    peerRepo,
		Sessions: sessions,
		Bus:      bus,
	})
	handler.SubscribeBroadcasts(bus, sessions)

	// 9. Create network server
	packetsPerSecond := 0
	if cfg.RateLimit.Enabled {
		packetsPerSecond = cfg.RateLimit.PacketsPerSecond
	}
	netServer, err := gonet.NewServer(cfg.Network.BindAddress, gonet.SessionConfig{
		InQueueSize:      cfg.Network.InQueueSize,
		OutQueueSize:     cfg.Network.OutQueueSize,
		PacketsPerSecond: packetsPerSecond,
		WriteTimeout:     cfg.Network.WriteTimeout,
		ReadTimeout:      cfg.Network.ReadTimeout,
		Hello:            helloPacket(cfg),
	}, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.AcceptLoop()

	// 10. Create systems and register with runner
	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(netServer, pktReg, sessions, cfg.Network.MaxPacketsPerTick, peerRepo, bus, log))
	dispatchSys := system.NewEventDispatchSystem(bus)
	runner.Register(dispatchSys)
	runner.Register(sched)
	runner.Register(system.NewOutputSystem(sessions, collector))
	var persistSys *system.PersistenceSystem
	if cfg.Persist.Enabled {
		persistSys = system.NewPersistenceSystem(bus, svc, zoneLogRepo, assignRepo, collector, log, cfg.Persist.FlushInterval)
		runner.Register(persistSys)
	}

	// 11. Start game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	printSection("ready")
	printReady(fmt.Sprintf("listening on %s", netServer.Addr().String()))
	if metricsSrv != nil {
		printReady(fmt.Sprintf("metrics on http://%s/metrics", cfg.Metrics.BindAddress))
	}
	printReady(fmt.Sprintf("game loop running (tick: %s, poll: %s)", cfg.Network.TickRate, cfg.Grid.PollInterval))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Network.TickRate)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			netServer.Shutdown()
			if n := dispatchSys.Drain(); n > 0 {
				log.Info("delivered pending events", zap.Int("events", n))
			}
			if persistSys != nil {
				persistSys.SaveAll()
			}
			svc.Close()
			if metricsSrv != nil {
				shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
				metricsSrv.Shutdown(shutCtx)
				shutCancel()
			}
			log.Info("server stopped")
			return nil
		}
	}
}

// helloPacket builds S_SERVER_HELLO, sent to every peer on connect.
func helloPacket(cfg *config.Config) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_SERVER_HELLO)
	w.WriteDU(uint32(cfg.Server.ID))
	w.WriteH(packet.ProtocolVersion)
	w.WriteS(cfg.Server.Name)
	w.WriteS(packet.Charset())
	return w.Bytes()
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
