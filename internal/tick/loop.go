package tick

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/constructs/internal/logging"
)

// DefaultTPS частота тиков по умолчанию
const DefaultTPS = 20

// Hook вызывается в потоке тиков после выполнения команд
type Hook func(ctx context.Context, tick uint64)

type command struct {
	fn   func()
	done chan struct{}
}

// Loop поток тиков с фиксированной частотой. Единственный писатель состояния
// построек: изменения попадают сюда через Exec/Do и выполняются в начале тика.
type Loop struct {
	interval time.Duration
	logger   *logging.Logger
	current  atomic.Uint64

	mu      sync.Mutex
	pending []command
	hooks   []Hook
}

// New создаёт цикл с частотой tps тиков в секунду
func New(tps int, logger *logging.Logger) *Loop {
	if tps <= 0 {
		tps = DefaultTPS
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Loop{
		interval: time.Second / time.Duration(tps),
		logger:   logger,
	}
}

// Interval длительность одного тика
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// CurrentTick номер последнего начатого тика
func (l *Loop) CurrentTick() uint64 {
	return l.current.Load()
}

// OnTick добавляет обработчик тика
func (l *Loop) OnTick(h Hook) {
	l.mu.Lock()
	l.hooks = append(l.hooks, h)
	l.mu.Unlock()
}

// Exec ставит fn в очередь потока тиков. Канал закрывается после выполнения.
func (l *Loop) Exec(fn func()) <-chan struct{} {
	done := make(chan struct{})
	l.mu.Lock()
	l.pending = append(l.pending, command{fn: fn, done: done})
	l.mu.Unlock()
	return done
}

// Do выполняет fn в потоке тиков и ждёт результата или отмены ctx.
// При отмене fn всё равно будет выполнена в ближайшем тике.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	var err error
	done := l.Exec(func() { err = fn() })
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Step выполняет один тик синхронно. Не вызывать параллельно с Run.
func (l *Loop) Step(ctx context.Context) uint64 {
	tick := l.current.Add(1)

	l.mu.Lock()
	cmds := l.pending
	l.pending = nil
	hooks := append([]Hook(nil), l.hooks...)
	l.mu.Unlock()

	for _, c := range cmds {
		l.run(tick, c)
	}
	for _, h := range hooks {
		l.runHook(ctx, tick, h)
	}
	return tick
}

func (l *Loop) run(tick uint64, c command) {
	defer close(c.done)
	defer func() {
		if p := recover(); p != nil {
			l.logger.Error("тик %d: паника в команде: %v", tick, p)
		}
	}()
	c.fn()
}

func (l *Loop) runHook(ctx context.Context, tick uint64, h Hook) {
	defer func() {
		if p := recover(); p != nil {
			l.logger.Error("тик %d: паника в обработчике: %v", tick, p)
		}
	}()
	h(ctx, tick)
}

// Run крутит тики до отмены ctx
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("поток тиков запущен: %v на тик", l.interval)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("поток тиков остановлен на тике %d", l.CurrentTick())
			return
		case <-ticker.C:
			start := time.Now()
			tick := l.Step(ctx)
			if elapsed := time.Since(start); elapsed > l.interval {
				l.logger.Warn("тик %d занял %v (бюджет %v)", tick, elapsed, l.interval)
			}
		}
	}
}
