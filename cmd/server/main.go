package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/annel0/constructs/internal/api"
	"github.com/annel0/constructs/internal/coherence"
	"github.com/annel0/constructs/internal/config"
	"github.com/annel0/constructs/internal/eventbus"
	"github.com/annel0/constructs/internal/logging"
	"github.com/annel0/constructs/internal/middleware"
	"github.com/annel0/constructs/internal/observability"
	"github.com/annel0/constructs/internal/registry"
	"github.com/annel0/constructs/internal/session"
	"github.com/annel0/constructs/internal/spawn"
	"github.com/annel0/constructs/internal/storage"
	"github.com/annel0/constructs/internal/tick"
	"github.com/annel0/constructs/internal/vec"
	"github.com/annel0/constructs/internal/world"
)

func main() {
	configPath := flag.String("config", "", "Путь к YAML конфигурации (по умолчанию CONSTRUCTS_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	logging.LogDir = cfg.Logging.Dir
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	level := logging.ParseLevel(cfg.Logging.Level)
	logging.Default().SetLevels(level, logging.TRACE)
	logging.Info("🏗️  Запуск сервера построек...")

	if err := run(cfg, level); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func componentLogger(name string, level logging.LogLevel) *logging.Logger {
	l := logging.GetComponentLogger(name)
	l.SetLevels(level, logging.TRACE)
	return l
}

func run(cfg *config.Config, level logging.LogLevel) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === OBSERVABILITY ===
	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled, logging.Default())
	if err != nil {
		return fmt.Errorf("инициализация OpenTelemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("остановка OpenTelemetry: %v", err)
		}
	}()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// === EVENT BUS ===
	var bus eventbus.EventBus
	if cfg.EventBus.URL != "" {
		js, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream, time.Duration(cfg.EventBus.Retention)*time.Hour)
		if err != nil {
			return fmt.Errorf("подключение к NATS %s: %w", cfg.EventBus.URL, err)
		}
		bus = js
		logging.Info("📨 EventBus: JetStream %s (stream=%s)", cfg.EventBus.URL, cfg.EventBus.Stream)
	} else {
		bus = eventbus.NewMemoryBus(cfg.EventBus.Buffer)
		logging.Info("📨 EventBus: in-memory (buffer=%d)", cfg.EventBus.Buffer)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Warn("закрытие EventBus: %v", err)
		}
	}()

	busLogger := componentLogger("eventbus", level)
	if sub, err := eventbus.StartLoggingListener(ctx, bus, busLogger); err == nil {
		defer sub.Unsubscribe()
	} else {
		logging.Warn("LoggingListener не запущен: %v", err)
	}
	exporter, err := eventbus.NewMetricsExporter(bus, promReg, 5*time.Second)
	if err != nil {
		return err
	}
	exporter.Start()
	defer exporter.Stop()

	events := eventbus.NewPublisher(bus, "constructs", busLogger)

	// === STORAGE + REGISTRY ===
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("открытие хранилища %s: %w", cfg.Storage.Backend, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Warn("закрытие хранилища: %v", err)
		}
	}()
	logging.Info("💾 Хранилище: %s", cfg.Storage.Backend)

	reg, err := registry.New(
		registry.WithLogger(componentLogger("registry", level)),
		registry.WithListener(events.ChangeListener()),
	)
	if err != nil {
		return err
	}
	defer reg.Close()
	if err := reg.InitStorage(ctx, store); err != nil {
		return err
	}
	if err := reg.LoadAll(ctx); err != nil {
		return err
	}
	logging.Info("✅ Загружено построек: %d", reg.Len())

	// === WORLD + TICK LOOP ===
	loop := tick.New(cfg.Server.TickRate, componentLogger("tick", level))
	worldLogger := componentLogger("world", level)
	worlds := world.NewManager()
	gen := world.NewGenerator(cfg.World.Seed)
	for _, name := range cfg.World.Levels {
		worlds.Add(world.NewLevel(name, gen, worldLogger))
	}

	spawnLogger := componentLogger("spawn", level)
	spawnMetrics, err := spawn.NewMetrics(promReg)
	if err != nil {
		return err
	}
	occupied := spawn.NewOccupiedChunks()
	evaluator := &spawn.ReservingEvaluator{
		Occupied: occupied,
		Next: spawn.EvaluatorFunc(func(_ context.Context, l spawn.Level, chunk vec.ChunkPos) error {
			spawnLogger.Trace("оценка чанка %s (%d,%d)", l.Name(), chunk.X, chunk.Z)
			return nil
		}),
	}
	queue := spawn.NewQueue(cfg.Spawn, worlds, evaluator, occupied, spawnLogger,
		spawn.WithClock(loop), spawn.WithMetrics(spawnMetrics))
	worlds.FeedSpawnQueue(queue)

	loop.OnTick(func(ctx context.Context, t uint64) {
		res := queue.Tick(ctx, t)
		if res.Cleared {
			events.PublishJSON(eventbus.EventOccupancyCleared, 2, eventbus.OccupancyEvent{Tick: t, Chunks: res.Released})
		}
	})

	checker := coherence.NewChecker(componentLogger("coherence", level), nil)
	sessions := make(map[string]*session.Session, len(cfg.World.Levels))
	for _, name := range worlds.Names() {
		l, _ := worlds.Level(name)
		sessions[name] = session.New(reg, l, loop, checker, componentLogger("session", level))
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	// === REST API + METRICS ===
	restPort := cfg.Server.GetRESTPort()
	metricsPort := cfg.Server.GetMetricsPort()

	rest, err := api.NewRestServer(api.Config{
		Port:         fmt.Sprintf(":%d", restPort),
		Registry:     reg,
		Sessions:     sessions,
		DefaultLevel: cfg.World.Levels[0],
		Queue:        queue,
		Loop:         loop,
		Registerer:   promReg,
		Gatherer:     promReg,
		Events:       events,
		Logger:       componentLogger("api", level),
	})
	if err != nil {
		return err
	}

	metricsRouter := gin.New()
	middleware.RegisterMetricsEndpoint(metricsRouter, promReg)
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", metricsPort),
		Handler:           metricsRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() { errCh <- rest.Start() }()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost:%d", restPort)
	logging.Info("   📈 Prometheus: http://localhost:%d/metrics", metricsPort)
	logging.Info("   ❤️  Health check: http://localhost:%d/health", restPort)
	logging.Info("   ⏱️  Тиков в секунду: %d, уровни: %v", cfg.Server.TickRate, cfg.World.Levels)

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, останавливаемся...")
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("HTTP сервер: %w", err)
		}
		stop()
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rest.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки сервера метрик: %v", err)
	}

	<-loopDone
	// поток тиков остановлен: дальше единственный писатель: этот goroutine
	queue.Clear()
	if err := reg.SaveAll(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка сохранения построек: %v", err)
		if runErr == nil {
			runErr = err
		}
	}
	reg.Clear()
	for _, s := range sessions {
		s.Reset()
	}
	logging.Info("💾 Постройки сохранены и выгружены")

	return runErr
}
