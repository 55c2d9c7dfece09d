// Package session связывает реестр построек, живой уровень и поток тиков:
// команды редактирования выполняются только в потоке тиков.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/annel0/constructs/internal/block"
	"github.com/annel0/constructs/internal/coherence"
	"github.com/annel0/constructs/internal/construction"
	"github.com/annel0/constructs/internal/logging"
	"github.com/annel0/constructs/internal/registry"
	"github.com/annel0/constructs/internal/tick"
	"github.com/annel0/constructs/internal/vec"
	"github.com/annel0/constructs/internal/world"
)

// Session слой команд над постройками одного уровня
type Session struct {
	registry *registry.Registry
	level    *world.Level
	loop     *tick.Loop
	checker  *coherence.Checker
	logger   *logging.Logger

	mu      sync.RWMutex
	active  map[string]string   // постройка -> активная комната
	spawned map[string][]uint64 // постройка -> сущности, выставленные в мир
}

// New создаёт сессию
func New(reg *registry.Registry, level *world.Level, loop *tick.Loop, checker *coherence.Checker, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.Discard()
	}
	if checker == nil {
		checker = coherence.NewChecker(logger, nil)
	}
	return &Session{
		registry: reg,
		level:    level,
		loop:     loop,
		checker:  checker,
		logger:   logger,
		active:   make(map[string]string),
		spawned:  make(map[string][]uint64),
	}
}

// ActiveRoom активная комната постройки ("": только база)
func (s *Session) ActiveRoom(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[id]
}

func (s *Session) setActive(id, room string) {
	s.mu.Lock()
	if room == "" {
		delete(s.active, id)
	} else {
		s.active[id] = room
	}
	s.mu.Unlock()
}

// withConstruction выполняет fn с постройкой в потоке тиков
func (s *Session) withConstruction(ctx context.Context, id string, fn func(c *construction.Construction) error) error {
	return s.loop.Do(ctx, func() error {
		c, err := s.registry.Get(id)
		if err != nil {
			return err
		}
		return fn(c)
	})
}

// Materialize переносит видимое состояние постройки в мир
func (s *Session) Materialize(ctx context.Context, id string) error {
	return s.withConstruction(ctx, id, func(c *construction.Construction) error {
		s.rematerialize(c)
		return nil
	})
}

// AddBlock добавляет блок в базу (room == "") или в комнату и отражает его в мире, если он видим
func (s *Session) AddBlock(ctx context.Context, id, room string, pos vec.Vec3, d block.Descriptor) error {
	return s.withConstruction(ctx, id, func(c *construction.Construction) error {
		active := s.ActiveRoom(id)
		if room == "" {
			c.AddBlock(pos, d)
			if r, ok := c.Room(active); ok && r.HasBlockChange(pos) {
				return nil
			}
			s.level.SetBlock(pos, d)
			return nil
		}
		if err := c.AddRoomBlock(room, pos, d); err != nil {
			return err
		}
		if room == active {
			s.level.SetBlock(pos, d)
		}
		return nil
	})
}

// RemoveBlock удаляет блок из базы или комнаты. В мире остаётся то, что должно быть видно.
func (s *Session) RemoveBlock(ctx context.Context, id, room string, pos vec.Vec3) error {
	return s.withConstruction(ctx, id, func(c *construction.Construction) error {
		active := s.ActiveRoom(id)
		if room == "" {
			if !c.RemoveBlock(pos) {
				return nil
			}
			if r, ok := c.Room(active); ok && r.HasBlockChange(pos) {
				return nil
			}
			s.level.SetBlock(pos, block.Air)
			return nil
		}
		removed, err := c.RemoveRoomBlock(room, pos)
		if err != nil || !removed || room != active {
			return err
		}
		if base, ok := c.Block(pos); ok {
			s.level.SetBlock(pos, base)
		} else {
			s.level.SetBlock(pos, block.Air)
		}
		return nil
	})
}

// AddEntity добавляет сущность в базу или комнату и возвращает её индекс
func (s *Session) AddEntity(ctx context.Context, id, room string, e construction.EntityData) (int, error) {
	var index int
	err := s.withConstruction(ctx, id, func(c *construction.Construction) error {
		active := s.ActiveRoom(id)
		if room == "" {
			index = c.AddEntity(e)
		} else {
			i, err := c.AddRoomEntity(room, e)
			if err != nil {
				return err
			}
			index = i
		}
		if room == active {
			s.spawn(c, e)
		}
		return nil
	})
	return index, err
}

// EnterRoom делает комнату активной и перерисовывает постройку
func (s *Session) EnterRoom(ctx context.Context, id, room string) error {
	return s.withConstruction(ctx, id, func(c *construction.Construction) error {
		if _, ok := c.Room(room); !ok {
			return fmt.Errorf("%w: %s", construction.ErrRoomNotFound, room)
		}
		s.setActive(id, room)
		s.rematerialize(c)
		s.logger.Debug("%s: активна комната %s", id, room)
		return nil
	})
}

// ExitRoom возвращает постройку к базовому состоянию
func (s *Session) ExitRoom(ctx context.Context, id string) error {
	return s.withConstruction(ctx, id, func(c *construction.Construction) error {
		s.setActive(id, "")
		s.rematerialize(c)
		return nil
	})
}

// Pull переносит постройку в newMin, разворачивая её в сторону facing
func (s *Session) Pull(ctx context.Context, id string, newMin vec.Vec3, facing vec.Facing) error {
	return s.withConstruction(ctx, id, func(c *construction.Construction) error {
		return s.transform(c, c.PullTransform(newMin, facing))
	})
}

// Move переносит постройку без поворота
func (s *Session) Move(ctx context.Context, id string, newMin vec.Vec3) error {
	return s.withConstruction(ctx, id, func(c *construction.Construction) error {
		return s.transform(c, construction.Transform{Rotation: vec.Rotate0, NewMin: newMin})
	})
}

func (s *Session) transform(c *construction.Construction, t construction.Transform) error {
	old := c.Bounds()
	if err := c.ApplyTransform(t); err != nil {
		return err
	}
	s.despawn(c.ID())
	s.level.ClearArea(old.Min, old.Max)
	s.rematerialize(c)
	s.logger.Info("%s перенесена в (%d,%d,%d), направление %s", c.ID(), t.NewMin.X, t.NewMin.Y, t.NewMin.Z, c.Facing())
	return nil
}

// Destroy убирает постройку из мира и реестра. Запись в хранилище удаляется
// уже вне потока тиков.
func (s *Session) Destroy(ctx context.Context, id string) error {
	err := s.withConstruction(ctx, id, func(c *construction.Construction) error {
		s.despawn(id)
		if b := c.Bounds(); b.Valid() {
			s.level.ClearArea(b.Min, b.Max)
		}
		s.setActive(id, "")
		return s.registry.Detach(id)
	})
	if err != nil {
		return err
	}
	return s.registry.DeleteStored(ctx, id)
}

// Forget снимает выставленные сущности и активную комнату постройки,
// удалённой через сессию другого уровня. Блоки в мире не трогаются.
func (s *Session) Forget(ctx context.Context, id string) error {
	return s.loop.Do(ctx, func() error {
		s.despawn(id)
		s.setActive(id, "")
		return nil
	})
}

// Reset сбрасывает состояние сессии при выгрузке мира
func (s *Session) Reset() {
	s.mu.Lock()
	s.active = make(map[string]string)
	s.spawned = make(map[string][]uint64)
	s.mu.Unlock()
}

// Validate проверяет постройку в потоке тиков с учётом активной комнаты
func (s *Session) Validate(ctx context.Context, id string, checkWorld bool) (coherence.Report, error) {
	return s.validate(ctx, id, checkWorld, func() string { return s.ActiveRoom(id) })
}

// ValidateRoom проверяет постройку так, будто активна комната room.
// Сверка с миром для неактивной комнаты ожидаемо даст расхождения.
func (s *Session) ValidateRoom(ctx context.Context, id, room string, checkWorld bool) (coherence.Report, error) {
	return s.validate(ctx, id, checkWorld, func() string { return room })
}

func (s *Session) validate(ctx context.Context, id string, checkWorld bool, room func() string) (coherence.Report, error) {
	var rep coherence.Report
	err := s.loop.Do(ctx, func() error {
		rep = s.checker.ValidateByID(ctx, s.registry, id, s.level, coherence.Options{
			CheckInWorld: checkWorld,
			ActiveRoom:   room(),
		})
		return nil
	})
	return rep, err
}

// rematerialize очищает охват и выставляет видимое состояние заново
func (s *Session) rematerialize(c *construction.Construction) {
	s.despawn(c.ID())
	b := c.Bounds()
	if !b.Valid() {
		return
	}
	s.level.ClearArea(b.Min, b.Max)

	room, _ := c.Room(s.ActiveRoom(c.ID()))
	for _, e := range c.Blocks() {
		if room != nil && room.HasBlockChange(e.Pos) {
			continue
		}
		s.level.SetBlock(e.Pos, e.Block)
	}

	entities := c.Entities()
	if room != nil {
		for _, e := range room.BlockChanges() {
			s.level.SetBlock(e.Pos, e.Block)
		}
		entities = room.Entities()
	}
	for _, e := range entities {
		s.spawn(c, e)
	}
}

func (s *Session) spawn(c *construction.Construction, e construction.EntityData) {
	id := s.level.SpawnEntity(e.Type, e.Rel.Abs(c.Bounds().Min))
	s.mu.Lock()
	s.spawned[c.ID()] = append(s.spawned[c.ID()], id)
	s.mu.Unlock()
}

func (s *Session) despawn(id string) {
	s.mu.Lock()
	ids := s.spawned[id]
	delete(s.spawned, id)
	s.mu.Unlock()

	for _, eid := range ids {
		s.level.RemoveEntity(eid)
	}
}
