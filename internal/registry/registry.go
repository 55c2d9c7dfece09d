package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/constructs/internal/construction"
	"github.com/annel0/constructs/internal/logging"
	"github.com/annel0/constructs/internal/storage"
	"github.com/annel0/constructs/internal/vec"
)

// State стадия жизненного цикла реестра
type State int32

const (
	StateUninitialized State = iota
	StateLoaded
	StateCleared
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoaded:
		return "loaded"
	case StateCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Registry каталог построек мира, ключ: идентификатор.
//
// Переходы: Uninitialized -> Loaded (LoadAll), Loaded -> Cleared (Clear),
// Cleared -> Loaded (LoadAll при следующей загрузке мира).
// Сам каталог защищён мьютексом; содержимое построек изменяется только в потоке тиков.
type Registry struct {
	mu       sync.RWMutex
	state    State
	store    storage.ConstructionStore
	codec    *storage.Codec
	items    map[string]*construction.Construction
	listener construction.ChangeListener
	logger   *logging.Logger
}

// Option настройка реестра
type Option func(*Registry)

// WithListener задаёт слушателя изменений, который получает каждая постройка
func WithListener(l construction.ChangeListener) Option {
	return func(r *Registry) { r.listener = l }
}

// WithLogger задаёт логгер
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New создаёт реестр в состоянии Uninitialized
func New(opts ...Option) (*Registry, error) {
	codec, err := storage.NewCodec()
	if err != nil {
		return nil, err
	}
	r := &Registry{
		codec:  codec,
		items:  make(map[string]*construction.Construction),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// State текущее состояние
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// InitStorage привязывает хранилище. Допускается до загрузки и после очистки.
func (r *Registry) InitStorage(ctx context.Context, store storage.ConstructionStore) error {
	if store == nil {
		return ErrNoStorage
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateLoaded {
		return fmt.Errorf("%w: хранилище нельзя менять у загруженного реестра", ErrInvalidState)
	}
	r.store = store
	return nil
}

// LoadAll загружает все постройки из хранилища. Повреждённые записи пропускаются с предупреждением.
func (r *Registry) LoadAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateLoaded {
		return fmt.Errorf("%w: реестр уже загружен", ErrInvalidState)
	}
	if r.store == nil {
		return ErrNoStorage
	}

	records, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("ошибка загрузки построек: %w", err)
	}

	items := make(map[string]*construction.Construction, len(records))
	for key, data := range records {
		snap, err := r.codec.Decode(data)
		if err != nil {
			r.logger.Warn("пропуск записи %s: %v", key, err)
			continue
		}
		c, err := construction.FromSnapshot(snap)
		if err != nil {
			r.logger.Warn("пропуск записи %s: %v", key, err)
			continue
		}
		if c.ID() != key {
			r.logger.Warn("ключ %s не совпадает с идентификатором %s", key, c.ID())
		}
		c.SetListener(r.listener)
		items[c.ID()] = c
	}

	r.items = items
	r.state = StateLoaded
	r.logger.Info("загружено построек: %d", len(items))
	return nil
}

// SaveAll сохраняет все постройки. Ошибки по отдельным постройкам объединяются.
// Содержимое построек читается без потока тиков, поэтому вызывать только при остановленном потоке.
func (r *Registry) SaveAll(ctx context.Context) error {
	r.mu.RLock()
	if err := r.requireLoaded(); err != nil {
		r.mu.RUnlock()
		return err
	}
	snaps := make([]construction.Snapshot, 0, len(r.items))
	for _, id := range r.sortedIDs() {
		snaps = append(snaps, r.items[id].ToSnapshot())
	}
	r.mu.RUnlock()

	var errs []error
	for _, snap := range snaps {
		if err := r.Persist(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	r.logger.Info("сохранено построек: %d", len(snaps))
	return nil
}

// Snapshot снимает состояние постройки. Вызывается в потоке тиков.
func (r *Registry) Snapshot(id string) (construction.Snapshot, error) {
	c, err := r.Get(id)
	if err != nil {
		return construction.Snapshot{}, err
	}
	return c.ToSnapshot(), nil
}

// Persist кодирует снимок и пишет его в хранилище. Выполняется вне потока тиков:
// у сетевых хранилищ запись занимает неопределённое время.
func (r *Registry) Persist(ctx context.Context, snap construction.Snapshot) error {
	store, err := r.loadedStore()
	if err != nil {
		return err
	}
	data, err := r.codec.Encode(snap)
	if err != nil {
		return err
	}
	if err := store.Save(ctx, snap.ID, data); err != nil {
		return fmt.Errorf("ошибка сохранения %s: %w", snap.ID, err)
	}
	return nil
}

// Save сохраняет одну постройку: Snapshot и Persist подряд.
// Из потока тиков вызывать только Snapshot, а Persist выносить наружу.
func (r *Registry) Save(ctx context.Context, id string) error {
	snap, err := r.Snapshot(id)
	if err != nil {
		return err
	}
	return r.Persist(ctx, snap)
}

func (r *Registry) loadedStore() (storage.ConstructionStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.requireLoaded(); err != nil {
		return nil, err
	}
	return r.store, nil
}

// Get возвращает постройку по идентификатору
func (r *Registry) Get(id string) (*construction.Construction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.requireLoaded(); err != nil {
		return nil, err
	}
	c, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// Create регистрирует новую постройку с границами в точке origin
func (r *Registry) Create(id string, origin vec.Vec3) (*construction.Construction, error) {
	c, err := construction.New(id)
	if err != nil {
		return nil, err
	}
	c.SetBounds(construction.NewBounds(origin, origin))
	if err := r.Put(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Put регистрирует готовую постройку (например, полученную из удалённого хранилища)
func (r *Registry) Put(c *construction.Construction) error {
	if err := construction.ValidateID(c.ID()); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireLoaded(); err != nil {
		return err
	}
	if _, ok := r.items[c.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, c.ID())
	}
	c.SetListener(r.listener)
	r.items[c.ID()] = c
	r.logger.Debug("зарегистрирована постройка %s", c.ID())
	return nil
}

// Detach убирает постройку из каталога, хранилище не трогает. Вызывается в потоке тиков.
func (r *Registry) Detach(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireLoaded(); err != nil {
		return err
	}
	c, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.SetListener(nil)
	delete(r.items, id)
	r.logger.Info("постройка %s удалена", id)
	return nil
}

// DeleteStored удаляет запись постройки из хранилища. Выполняется вне потока тиков.
func (r *Registry) DeleteStored(ctx context.Context, id string) error {
	store, err := r.loadedStore()
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, id); err != nil {
		return fmt.Errorf("ошибка удаления %s: %w", id, err)
	}
	return nil
}

// Destroy удаляет постройку из реестра и хранилища
func (r *Registry) Destroy(ctx context.Context, id string) error {
	if err := r.Detach(id); err != nil {
		return err
	}
	return r.DeleteStored(ctx, id)
}

// IDs идентификаторы по возрастанию
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedIDs()
}

// Len количество зарегистрированных построек
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Clear выгружает все постройки (выгрузка мира). Несохранённые изменения теряются.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.items {
		c.SetListener(nil)
	}
	r.items = make(map[string]*construction.Construction)
	if r.state == StateLoaded {
		r.state = StateCleared
	}
}

// Close освобождает кодек. Хранилище закрывает его владелец.
func (r *Registry) Close() {
	r.codec.Close()
}

func (r *Registry) requireLoaded() error {
	if r.state != StateLoaded {
		return fmt.Errorf("%w: %s", ErrInvalidState, r.state)
	}
	return nil
}

func (r *Registry) sortedIDs() []string {
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
