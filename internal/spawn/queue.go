package spawn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/annel0/constructs/internal/logging"
	"github.com/annel0/constructs/internal/vec"
)

// Config параметры очереди в тиках
type Config struct {
	MaxPerTick      int    `yaml:"max_per_tick"`
	DelayTicks      uint64 `yaml:"delay_ticks"`
	ClearDelayTicks uint64 `yaml:"clear_delay_ticks"`
}

// DefaultConfig значения по умолчанию: 5 секунд тишины при 20 TPS
func DefaultConfig() Config {
	return Config{
		MaxPerTick:      4,
		DelayTicks:      20,
		ClearDelayTicks: 100,
	}
}

// WorkItem регион, ожидающий оценки. Хранит координаты, а не ссылку на чанк:
// к моменту обработки чанк может быть выгружен.
type WorkItem struct {
	Level            string
	ChunkX, ChunkZ   int
	ProcessAfterTick uint64
}

// Level уровень, в котором ищутся места появления
type Level interface {
	Name() string
	IsChunkLoaded(x, z int) bool
}

// LevelResolver находит уровень по имени в момент обработки
type LevelResolver interface {
	ResolveLevel(name string) (Level, bool)
}

// Evaluator решает, пригоден ли регион. Логика выбора места вне очереди.
type Evaluator interface {
	Evaluate(ctx context.Context, level Level, chunk vec.ChunkPos) error
}

// EvaluatorFunc адаптер функции к Evaluator
type EvaluatorFunc func(ctx context.Context, level Level, chunk vec.ChunkPos) error

func (f EvaluatorFunc) Evaluate(ctx context.Context, level Level, chunk vec.ChunkPos) error {
	return f(ctx, level, chunk)
}

// Clock источник текущего тика
type Clock interface {
	CurrentTick() uint64
}

// Outcome результат обработки элемента
type Outcome uint8

const (
	OutcomeProcessed Outcome = iota
	OutcomeFailed
	OutcomeRegionUnloaded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeFailed:
		return "failed"
	case OutcomeRegionUnloaded:
		return "region_unloaded"
	default:
		return "unknown"
	}
}

// ItemResult итог по одному элементу
type ItemResult struct {
	Item    WorkItem
	Outcome Outcome
	Err     error
}

// DrainResult итог одного тика
type DrainResult struct {
	Results   []ItemResult
	Remaining int
	Cleared   bool
	Released  int // снятые резервы чанков при Cleared
}

// Stats снимок состояния очереди
type Stats struct {
	Length        int    `json:"length"`
	Occupied      int    `json:"occupied_chunks"`
	DeadlineArmed bool   `json:"clear_deadline_armed"`
	ClearDeadline uint64 `json:"clear_deadline"`
	Enqueued      uint64 `json:"enqueued"`
	Processed     uint64 `json:"processed"`
	Failed        uint64 `json:"failed"`
	Dropped       uint64 `json:"dropped"`
	Clears        uint64 `json:"clears"`
}

// ErrEvaluatorPanic оборачивает панику вычислителя
var ErrEvaluatorPanic = errors.New("паника вычислителя")

// Queue FIFO-очередь регионов с ограничением обработки за тик.
//
// Enqueue безопасен из любых горутин и не блокируется на обработке: мьютекс
// держится только на время вставки или извлечения. Tick вызывается одним
// владельцем потока тиков; вычислитель работает вне мьютекса.
type Queue struct {
	cfg       Config
	resolver  LevelResolver
	evaluator Evaluator
	occupied  *OccupiedChunks
	metrics   *Metrics
	clock     Clock
	logger    *logging.Logger

	mu      sync.Mutex
	items   []WorkItem
	head    int
	armed   bool
	clearAt uint64

	lastTick  atomic.Uint64
	enqueued  atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	clears    atomic.Uint64
}

// QueueOption настройка очереди
type QueueOption func(*Queue)

// WithClock задаёт источник тика для Enqueue. По умолчанию: последний тик, переданный в Tick.
func WithClock(c Clock) QueueOption {
	return func(q *Queue) { q.clock = c }
}

// WithMetrics подключает Prometheus-метрики
func WithMetrics(m *Metrics) QueueOption {
	return func(q *Queue) { q.metrics = m }
}

// NewQueue создаёт очередь
func NewQueue(cfg Config, resolver LevelResolver, evaluator Evaluator, occupied *OccupiedChunks, logger *logging.Logger, opts ...QueueOption) *Queue {
	if cfg.MaxPerTick <= 0 {
		cfg.MaxPerTick = DefaultConfig().MaxPerTick
	}
	if occupied == nil {
		occupied = NewOccupiedChunks()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	q := &Queue{
		cfg:       cfg,
		resolver:  resolver,
		evaluator: evaluator,
		occupied:  occupied,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) currentTick() uint64 {
	if q.clock != nil {
		return q.clock.CurrentTick()
	}
	return q.lastTick.Load()
}

// Enqueue ставит регион в очередь с задержкой DelayTicks. Никогда не блокируется надолго.
func (q *Queue) Enqueue(level string, x, z int) {
	item := WorkItem{
		Level:            level,
		ChunkX:           x,
		ChunkZ:           z,
		ProcessAfterTick: q.currentTick() + q.cfg.DelayTicks,
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	n := len(q.items) - q.head
	q.mu.Unlock()

	q.enqueued.Add(1)
	q.metrics.enqueue(n)
}

// popReady извлекает голову, если её тик наступил. Задержка одинакова для всех
// элементов, поэтому неготовая голова означает, что готовых нет.
func (q *Queue) popReady(tick uint64) (WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		return WorkItem{}, false
	}
	item := q.items[q.head]
	if item.ProcessAfterTick > tick {
		return WorkItem{}, false
	}
	q.items[q.head] = WorkItem{}
	q.head++
	q.compact()
	return item, true
}

// compact возвращает память, когда прочитанная часть занимает больше половины
func (q *Queue) compact() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head > 64 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
}

// Tick обрабатывает не больше MaxPerTick готовых элементов и проверяет срок очистки.
// Вызывается ровно один раз за тик из потока тиков.
func (q *Queue) Tick(ctx context.Context, currentTick uint64) DrainResult {
	q.lastTick.Store(currentTick)

	var res DrainResult
	evaluated := 0
	for len(res.Results) < q.cfg.MaxPerTick {
		if ctx.Err() != nil {
			break
		}
		item, ok := q.popReady(currentTick)
		if !ok {
			break
		}
		r := q.process(ctx, item)
		res.Results = append(res.Results, r)
		if r.Outcome != OutcomeRegionUnloaded {
			evaluated++
		}
	}

	q.mu.Lock()
	if evaluated > 0 {
		q.armed = true
		q.clearAt = currentTick + q.cfg.ClearDelayTicks
	}
	res.Remaining = len(q.items) - q.head
	if q.armed && currentTick >= q.clearAt && res.Remaining == 0 {
		q.armed = false
		res.Cleared = true
	}
	q.mu.Unlock()

	if res.Cleared {
		res.Released = q.occupied.Clear()
		q.clears.Add(1)
		q.metrics.cleared()
		q.logger.Debug("тик %d: снято резервов чанков: %d", currentTick, res.Released)
	}
	q.metrics.setLength(res.Remaining)
	return res
}

func (q *Queue) process(ctx context.Context, item WorkItem) ItemResult {
	r := ItemResult{Item: item}
	defer func() {
		switch r.Outcome {
		case OutcomeProcessed:
			q.processed.Add(1)
		case OutcomeFailed:
			q.failed.Add(1)
		case OutcomeRegionUnloaded:
			q.dropped.Add(1)
		}
		q.metrics.observe(r.Outcome)
	}()

	level, ok := q.resolver.ResolveLevel(item.Level)
	if !ok || !level.IsChunkLoaded(item.ChunkX, item.ChunkZ) {
		r.Outcome = OutcomeRegionUnloaded
		q.logger.Trace("регион %s (%d,%d) выгружен, пропуск", item.Level, item.ChunkX, item.ChunkZ)
		return r
	}

	if err := q.evaluate(ctx, level, vec.ChunkPos{X: item.ChunkX, Z: item.ChunkZ}); err != nil {
		r.Outcome = OutcomeFailed
		r.Err = err
		q.logger.Warn("оценка региона %s (%d,%d): %v", item.Level, item.ChunkX, item.ChunkZ, err)
		return r
	}
	r.Outcome = OutcomeProcessed
	return r
}

// evaluate вызывает вычислитель, превращая панику в ошибку
func (q *Queue) evaluate(ctx context.Context, level Level, chunk vec.ChunkPos) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrEvaluatorPanic, p)
		}
	}()
	return q.evaluator.Evaluate(ctx, level, chunk)
}

// Clear опустошает очередь и снимает срок очистки (выгрузка мира)
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.head = 0
	q.armed = false
	q.clearAt = 0
	q.mu.Unlock()

	q.metrics.setLength(0)
}

// Len количество ожидающих элементов
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// ClearDeadline возвращает тик очистки резервов, если срок взведён
func (q *Queue) ClearDeadline() (uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.clearAt, q.armed
}

// Occupied множество резервов, которое очищает очередь
func (q *Queue) Occupied() *OccupiedChunks {
	return q.occupied
}

// Stats снимок счётчиков
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	s := Stats{
		Length:        len(q.items) - q.head,
		DeadlineArmed: q.armed,
		ClearDeadline: q.clearAt,
	}
	q.mu.Unlock()

	s.Occupied = q.occupied.Len()
	s.Enqueued = q.enqueued.Load()
	s.Processed = q.processed.Load()
	s.Failed = q.failed.Load()
	s.Dropped = q.dropped.Load()
	s.Clears = q.clears.Load()
	return s
}
