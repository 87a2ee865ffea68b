package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/skillcast/server/internal/combat"
	"github.com/skillcast/server/internal/config"
	"github.com/skillcast/server/internal/core/event"
	coresys "github.com/skillcast/server/internal/core/system"
	"github.com/skillcast/server/internal/cost"
	"github.com/skillcast/server/internal/data"
	"github.com/skillcast/server/internal/gate"
	"github.com/skillcast/server/internal/handler"
	gonet "github.com/skillcast/server/internal/net"
	"github.com/skillcast/server/internal/net/proto"
	"github.com/skillcast/server/internal/persist"
	"github.com/skillcast/server/internal/scripting"
	"github.com/skillcast/server/internal/skill"
	"github.com/skillcast/server/internal/system"
	"github.com/skillcast/server/internal/timing"
	"github.com/skillcast/server/internal/world"
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
	fmt.Println("\033[36;1m  │\033[0m            skillcast  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      技能引擎 · Go 遊戲伺服器             \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m伺服器:\033[0m %s \033[90m(編號: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	// Use rune count for CJK width calculation (each CJK char = 2 columns)
	displayWidth := 0
	for _, r := range title {
		if r > 0x7F {
			displayWidth += 2
		} else {
			displayWidth++
		}
	}
	lineLen := 46 - displayWidth - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	displayWidth := 0
	for _, r := range label {
		if r > 0x7F {
			displayWidth += 2
		} else {
			displayWidth++
		}
	}
	dotsLen := 42 - displayWidth - len(numStr)
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
	if p := os.Getenv("SKILLCAST_CONFIG"); p != "" {
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

	world.SeedRand(time.Now().UnixNano())

	// 3. Connect to PostgreSQL and run migrations (optional)
	var db *persist.DB
	var accountRepo *persist.AccountRepo
	var journalRepo *persist.JournalRepo
	if cfg.Database.Enabled {
		printSection("資料庫")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		db, err = persist.NewDB(ctx, cfg.Database, log)
		cancel()
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL 連線成功")

		migCtx, migCancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = persist.RunMigrations(migCtx, db.Pool)
		migCancel()
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("資料庫遷移完成")
		fmt.Println()

		accountRepo = persist.NewAccountRepo(db)
		journalRepo = persist.NewJournalRepo(db)
	}

	// 4. Load data tables
	printSection("資料載入")

	skillTable, err := data.LoadSkillTable("data/yaml/skill_list.yaml")
	if err != nil {
		return fmt.Errorf("load skill table: %w", err)
	}
	printStat("技能", skillTable.Count())

	timingTable, err := data.LoadTimingTable("data/yaml/timing_list.yaml")
	if err != nil {
		return fmt.Errorf("load timing table: %w", err)
	}
	printStat("時序類別", timingTable.Count())

	// 5. Initialize Lua scripting engine
	luaEngine, err := scripting.NewEngine("scripts", log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer luaEngine.Close()
	printOK("Lua 腳本載入完成")
	fmt.Println()

	// 6. Core wiring: world, bus, engine components
	worldState := world.NewState()
	bus := event.NewBus()

	resolver := timing.NewResolver(timingTable, cfg.Engine.MinTempo, cfg.Engine.MaxTempo, log)
	modifiers := combat.NewRegistry()
	composer := combat.NewComposer(modifiers, log)

	store := skill.NewStore(cfg.Engine.MaxSessionDuration, func(ev skill.Event) {
		event.Emit(bus, ev)
	}, log)

	gateTracker := gate.NewTracker(skillTable, cfg.Engine.GlobalCooldown, log)
	costResolver := cost.NewResolver(luaEngine, log)

	manager := skill.NewManager(worldState, skillTable, resolver, composer, store,
		gateTracker, costResolver, luaEngine, log)

	event.Subscribe(bus, gateTracker.OnSessionEvent)

	// 7. Message handler registry
	msgReg := proto.NewRegistry(log)
	deps := &handler.Deps{
		Config:      cfg,
		Log:         log,
		World:       worldState,
		Skills:      skillTable,
		Manager:     manager,
		Gate:        gateTracker,
		AccountRepo: accountRepo,
	}
	handler.RegisterAll(msgReg, deps)

	// 8. Network server
	netServer, err := gonet.NewServer(
		cfg.Network.BindAddress,
		cfg.Network.InQueueSize,
		cfg.Network.OutQueueSize,
		cfg.Network.PacketsPerSecond,
		cfg.Network.WriteTimeout,
		log,
	)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.AcceptLoop()

	sessionStore := gonet.NewSessionStore()
	broadcaster := handler.NewBroadcaster(sessionStore, log)
	event.Subscribe(bus, broadcaster.OnSessionEvent)

	// 9. Systems
	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(netServer, msgReg, sessionStore,
		cfg.Network.MaxPacketsPerTick, worldState, manager, gateTracker, accountRepo, log))
	runner.Register(system.NewEventSystem(bus))
	runner.Register(system.NewSkillTickSystem(store))
	runner.Register(system.NewOutputSystem(sessionStore))
	runner.Register(system.NewCleanupSystem(store))

	var journalSys *system.JournalSystem
	if journalRepo != nil {
		journalSys = system.NewJournalSystem(journalRepo, cfg.Engine.JournalBatchSize, log)
		event.Subscribe(bus, journalSys.OnSessionEvent)
		runner.Register(journalSys)
	}

	// 10. Game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	printSection("伺服器就緒")
	printReady(fmt.Sprintf("監聽位址 %s", netServer.Addr().String()))
	printReady(fmt.Sprintf("遊戲迴圈啟動 (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Network.TickRate)
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			netServer.Shutdown()
			// Deliver buffered events so the journal sees final transitions,
			// then flush whatever is still pending.
			bus.SwapBuffers()
			bus.DispatchAll()
			if journalSys != nil {
				journalSys.Flush()
			}
			log.Info("伺服器已停止")
			return nil
		}
	}
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
