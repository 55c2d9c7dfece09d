package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/constructs/internal/block"
	"github.com/annel0/constructs/internal/coherence"
	"github.com/annel0/constructs/internal/construction"
	"github.com/annel0/constructs/internal/eventbus"
	"github.com/annel0/constructs/internal/logging"
	"github.com/annel0/constructs/internal/middleware"
	"github.com/annel0/constructs/internal/registry"
	"github.com/annel0/constructs/internal/session"
	"github.com/annel0/constructs/internal/spawn"
	"github.com/annel0/constructs/internal/tick"
	"github.com/annel0/constructs/internal/vec"
)

// RestServer административный REST API над реестром построек и очередью появления
type RestServer struct {
	router   *gin.Engine
	srv      *http.Server
	registry *registry.Registry
	sessions map[string]*session.Session
	level    string
	queue    *spawn.Queue
	loop     *tick.Loop
	events   *eventbus.Publisher
	metrics  *ServerMetrics
	logger   *logging.Logger
}

// Config зависимости REST сервера
type Config struct {
	Port         string                      // адрес вида ":8088"
	Registry     *registry.Registry          // реестр построек
	Sessions     map[string]*session.Session // сессии по имени уровня
	DefaultLevel string                      // уровень, если ?level не задан
	Queue        *spawn.Queue                // очередь появления
	Loop         *tick.Loop                  // поток тиков
	Registerer   prometheus.Registerer       // куда регистрировать HTTP-метрики
	Gatherer     prometheus.Gatherer         // что отдавать на /metrics
	Events       *eventbus.Publisher         // ValidationFailed; nil отключает
	Logger       *logging.Logger
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// CreateRequest запрос на регистрацию постройки
type CreateRequest struct {
	ID     string   `json:"id" binding:"required"`
	Origin vec.Vec3 `json:"origin"`
}

// BlockRequest правка блока; пустой Room означает базовое состояние
type BlockRequest struct {
	Room  string   `json:"room"`
	Pos   vec.Vec3 `json:"pos"`
	Block string   `json:"block"`
}

// RoomRequest вход в комнату
type RoomRequest struct {
	Room string `json:"room" binding:"required"`
}

// PullRequest перенос постройки; пустой Facing означает перенос без поворота
type PullRequest struct {
	Min    vec.Vec3 `json:"min"`
	Facing string   `json:"facing"`
}

// SpawnRequest регион для очереди появления
type SpawnRequest struct {
	Level  string `json:"level" binding:"required"`
	ChunkX int    `json:"chunk_x"`
	ChunkZ int    `json:"chunk_z"`
}

// NewRestServer создает REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.NewRegistry()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New() // без стандартного logger
	router.Use(gin.Recovery())

	// otelgin первым, чтобы RequestLogger видел trace-id спана
	router.Use(otelgin.Middleware("constructs_api"))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())

	promMw, err := middleware.NewPrometheusMiddleware("constructs_api", config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("регистрация HTTP-метрик: %w", err)
	}
	router.Use(promMw.Handler())
	if config.Gatherer != nil {
		middleware.RegisterMetricsEndpoint(router, config.Gatherer)
	}

	rs := &RestServer{
		router:   router,
		registry: config.Registry,
		sessions: config.Sessions,
		level:    config.DefaultLevel,
		queue:    config.Queue,
		loop:     config.Loop,
		events:   config.Events,
		metrics:  NewServerMetrics(),
		logger:   config.Logger,
	}
	rs.srv = &http.Server{
		Addr:              config.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	rs.setupRoutes()
	return rs, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	api.GET("/stats", rs.handleStats)

	constructions := api.Group("/constructions")
	{
		constructions.GET("", rs.handleList)
		constructions.POST("", rs.handleCreate)
		constructions.GET("/:id", rs.handleGet)
		constructions.DELETE("/:id", rs.handleDestroy)
		constructions.POST("/:id/save", rs.handleSave)
		constructions.POST("/:id/materialize", rs.handleMaterialize)
		constructions.POST("/:id/blocks", rs.handleAddBlock)
		constructions.DELETE("/:id/blocks", rs.handleRemoveBlock)
		constructions.POST("/:id/room", rs.handleEnterRoom)
		constructions.DELETE("/:id/room", rs.handleExitRoom)
		constructions.POST("/:id/pull", rs.handlePull)
		constructions.GET("/:id/validate", rs.handleValidate)
	}

	spawnGroup := api.Group("/spawn")
	{
		spawnGroup.GET("", rs.handleSpawnStats)
		spawnGroup.POST("", rs.handleEnqueue)
		spawnGroup.POST("/clear", rs.handleSpawnClear)
	}
}

// Handler HTTP-обработчик (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

func (rs *RestServer) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, construction.ErrRoomNotFound):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrDuplicate), errors.Is(err, construction.ErrRoomExists):
		status = http.StatusConflict
	case errors.Is(err, construction.ErrInvalidID), errors.Is(err, construction.ErrNoBounds),
		errors.Is(err, construction.ErrIndexOutOfRange):
		status = http.StatusBadRequest
	case errors.Is(err, registry.ErrInvalidState):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		rs.logger.Error("❌ %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, GenericResponse{Success: false, Message: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: msg})
}

func (rs *RestServer) session(c *gin.Context) (*session.Session, bool) {
	name := c.DefaultQuery("level", rs.level)
	s, ok := rs.sessions[name]
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("уровень %q не найден", name),
		})
	}
	return s, ok
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"registry": rs.registry.State().String(),
		"tick":     rs.loop.CurrentTick(),
		"time":     time.Now().Unix(),
	})
}

// handleStats возвращает статистику сервера
func (rs *RestServer) handleStats(c *gin.Context) {
	cpuPercent, _ := rs.metrics.GetCPUUsage()
	rss, _ := rs.metrics.GetRSS()

	stats := map[string]interface{}{
		"server": map[string]interface{}{
			"uptime":      rs.metrics.GetUptime(),
			"rss_mb":      fmt.Sprintf("%.2f", rss),
			"cpu_percent": fmt.Sprintf("%.2f", cpuPercent),
			"tick":        rs.loop.CurrentTick(),
			"server_time": time.Now().Unix(),
		},
		"registry": map[string]interface{}{
			"state":         rs.registry.State().String(),
			"constructions": rs.registry.Len(),
		},
		"memory_details": rs.metrics.GetDetailedMemoryStats(),
	}
	if rs.queue != nil {
		stats["spawn_queue"] = rs.queue.Stats()
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

func (rs *RestServer) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список построек",
		Data:    rs.registry.IDs(),
	})
}

func (rs *RestServer) handleCreate(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}

	err := rs.loop.Do(c.Request.Context(), func() error {
		_, err := rs.registry.Create(req.ID, req.Origin)
		return err
	})
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Постройка зарегистрирована",
		Data:    gin.H{"id": req.ID},
	})
}

func (rs *RestServer) handleGet(c *gin.Context) {
	id := c.Param("id")
	var snap construction.Snapshot
	err := rs.loop.Do(c.Request.Context(), func() error {
		cons, err := rs.registry.Get(id)
		if err != nil {
			return err
		}
		snap = cons.ToSnapshot()
		return nil
	})
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Постройка", Data: snap})
}

// handleDestroy убирает постройку из мира уровня ?level и из реестра.
// Сессии остальных уровней забывают её сущности и активную комнату.
func (rs *RestServer) handleDestroy(c *gin.Context) {
	s, ok := rs.session(c)
	if !ok {
		return
	}
	id := c.Param("id")
	ctx := c.Request.Context()
	if err := s.Destroy(ctx, id); err != nil {
		rs.fail(c, err)
		return
	}
	for _, other := range rs.sessions {
		if other == s {
			continue
		}
		if err := other.Forget(ctx, id); err != nil {
			rs.logger.Warn("сессия не сброшена для %s: %v", id, err)
		}
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Постройка удалена"})
}

// handleSave снимок берётся в потоке тиков, запись в хранилище идёт из горутины запроса
func (rs *RestServer) handleSave(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()
	var snap construction.Snapshot
	err := rs.loop.Do(ctx, func() error {
		var err error
		snap, err = rs.registry.Snapshot(id)
		return err
	})
	if err == nil {
		err = rs.registry.Persist(ctx, snap)
	}
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Постройка сохранена"})
}

func (rs *RestServer) handleMaterialize(c *gin.Context) {
	s, ok := rs.session(c)
	if !ok {
		return
	}
	if err := s.Materialize(c.Request.Context(), c.Param("id")); err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Постройка выставлена в мир"})
}

func (rs *RestServer) handleAddBlock(c *gin.Context) {
	s, ok := rs.session(c)
	if !ok {
		return
	}
	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}
	d, err := block.Parse(req.Block)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.AddBlock(c.Request.Context(), c.Param("id"), req.Room, req.Pos, d); err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Блок добавлен"})
}

func (rs *RestServer) handleRemoveBlock(c *gin.Context) {
	s, ok := rs.session(c)
	if !ok {
		return
	}
	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}
	if err := s.RemoveBlock(c.Request.Context(), c.Param("id"), req.Room, req.Pos); err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Блок удалён"})
}

func (rs *RestServer) handleEnterRoom(c *gin.Context) {
	s, ok := rs.session(c)
	if !ok {
		return
	}
	var req RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}
	if err := s.EnterRoom(c.Request.Context(), c.Param("id"), req.Room); err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Комната активна"})
}

func (rs *RestServer) handleExitRoom(c *gin.Context) {
	s, ok := rs.session(c)
	if !ok {
		return
	}
	if err := s.ExitRoom(c.Request.Context(), c.Param("id")); err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Базовое состояние"})
}

func (rs *RestServer) handlePull(c *gin.Context) {
	s, ok := rs.session(c)
	if !ok {
		return
	}
	var req PullRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}

	var err error
	if req.Facing == "" {
		err = s.Move(c.Request.Context(), c.Param("id"), req.Min)
	} else {
		facing, perr := vec.ParseFacing(req.Facing)
		if perr != nil {
			badRequest(c, perr.Error())
			return
		}
		err = s.Pull(c.Request.Context(), c.Param("id"), req.Min, facing)
	}
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Постройка перенесена"})
}

// handleValidate проверка согласованности: ?world=true сверяет с миром
func (rs *RestServer) handleValidate(c *gin.Context) {
	s, ok := rs.session(c)
	if !ok {
		return
	}
	checkWorld, _ := strconv.ParseBool(c.DefaultQuery("world", "false"))

	var (
		rep coherence.Report
		err error
	)
	if room, ok := c.GetQuery("room"); ok {
		rep, err = s.ValidateRoom(c.Request.Context(), c.Param("id"), room, checkWorld)
	} else {
		rep, err = s.Validate(c.Request.Context(), c.Param("id"), checkWorld)
	}
	if err != nil {
		rs.fail(c, err)
		return
	}

	status := http.StatusOK
	msg := "Постройка согласована"
	switch {
	case rep.Reason == coherence.ReasonConstructionNotFound:
		status = http.StatusNotFound
		msg = "Постройка не найдена"
	case !rep.Passed:
		msg = fmt.Sprintf("Найдено расхождений: %d", rep.Failures())
		rs.events.PublishJSON(eventbus.EventValidationFailed, 5, eventbus.ValidationEvent{
			ConstructionID: rep.ConstructionID,
			RoomID:         rep.ActiveRoom,
			Mismatches:     rep.Failures(),
		})
	}
	c.JSON(status, GenericResponse{Success: rep.Passed, Message: msg, Data: rep})
}

func (rs *RestServer) handleSpawnStats(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Очередь появления",
		Data:    rs.queue.Stats(),
	})
}

func (rs *RestServer) handleEnqueue(c *gin.Context) {
	var req SpawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}
	rs.queue.Enqueue(req.Level, req.ChunkX, req.ChunkZ)
	c.JSON(http.StatusAccepted, GenericResponse{Success: true, Message: "Регион поставлен в очередь"})
}

// handleSpawnClear опустошает очередь и снимает отложенную очистку занятых чанков (в потоке тиков).
// Сами занятые чанки освобождает только срабатывание отложенной очистки.
func (rs *RestServer) handleSpawnClear(c *gin.Context) {
	err := rs.loop.Do(c.Request.Context(), func() error {
		rs.queue.Clear()
		return nil
	})
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Очередь очищена"})
}

// Start запускает REST сервер; блокирует до Stop
func (rs *RestServer) Start() error {
	rs.logger.Info("🌐 REST API слушает %s", rs.srv.Addr)
	if err := rs.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop плавно останавливает REST сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.srv.Shutdown(ctx)
}
