package coherence

import (
	"context"

	"github.com/annel0/constructs/internal/block"
	"github.com/annel0/constructs/internal/construction"
	"github.com/annel0/constructs/internal/logging"
	"github.com/annel0/constructs/internal/vec"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EntityTolerance полуширина кубического окна поиска сущности (включительно)
const EntityTolerance = 0.5

// EntityRef сущность живого мира
type EntityRef struct {
	ID   uint64        `json:"id"`
	Type string        `json:"type"`
	Pos  vec.Vec3Float `json:"pos"`
}

// WorldReader доступ на чтение к живому миру
type WorldReader interface {
	DescriptorAt(pos vec.Vec3) block.Descriptor
	FindEntities(entityType string, box vec.AABB) []EntityRef
	IsChunkLoaded(x, z int) bool
}

// Lookup источник построек по идентификатору (реестр)
type Lookup interface {
	Get(id string) (*construction.Construction, error)
}

// Options параметры проверки
type Options struct {
	CheckInWorld bool
	ActiveRoom   string
}

// Checker сверяет постройку с её инвариантами и живым миром.
// Не хранит состояния и ничего не изменяет.
type Checker struct {
	logger *logging.Logger
	tracer trace.Tracer
}

// NewChecker создаёт проверяющего. tracer == nil берёт глобальный провайдер otel.
func NewChecker(logger *logging.Logger, tracer trace.Tracer) *Checker {
	if logger == nil {
		logger = logging.Discard()
	}
	if tracer == nil {
		tracer = otel.Tracer("github.com/annel0/constructs/internal/coherence")
	}
	return &Checker{logger: logger, tracer: tracer}
}

// CheckBlock проверяет одну запись блока. roomID пуст для базовой карты.
// Возвращает расхождение и false при провале.
func (ch *Checker) CheckBlock(c *construction.Construction, roomID string, pos vec.Vec3, expected block.Descriptor, world WorldReader, checkWorld bool) (Mismatch, bool) {
	m := Mismatch{
		ConstructionID: c.ID(),
		RoomID:         roomID,
		Pos:            pos,
		EntityIndex:    -1,
		Expected:       expected.String(),
	}

	b := c.Bounds()
	if b.Valid() && !b.Contains(pos) {
		m.Reason = ReasonOutOfBounds
		m.Actual = b.String()
		return m, false
	}

	var (
		recorded block.Descriptor
		ok       bool
	)
	if roomID == "" {
		recorded, ok = c.Block(pos)
	} else {
		r, found := c.Room(roomID)
		if !found {
			m.Reason = ReasonRoomNotFound
			return m, false
		}
		recorded, ok = r.BlockChange(pos)
	}
	if !ok {
		m.Reason = ReasonMissingEntry
		return m, false
	}
	if !recorded.Equal(expected) {
		m.Reason = ReasonDescriptorMismatch
		m.Actual = recorded.String()
		return m, false
	}

	if !checkWorld {
		return m, true
	}
	chunk := pos.Chunk()
	if !world.IsChunkLoaded(chunk.X, chunk.Z) {
		m.Reason = ReasonChunkNotLoaded
		return m, false
	}
	if actual := world.DescriptorAt(pos); !actual.Equal(expected) {
		m.Reason = ReasonWorldMismatch
		m.Actual = actual.String()
		return m, false
	}
	return m, true
}

// CheckEntity проверяет сущность с индексом index из списка постройки или комнаты
func (ch *Checker) CheckEntity(c *construction.Construction, roomID string, index int, e construction.EntityData, world WorldReader, checkWorld bool) (Mismatch, bool) {
	abs := e.Rel.Abs(c.Bounds().Min)
	m := Mismatch{
		ConstructionID: c.ID(),
		RoomID:         roomID,
		Pos:            abs.Block(),
		EntityIndex:    index,
		EntityType:     e.Type,
		Expected:       e.Type,
	}

	count := len(c.Entities())
	if roomID != "" {
		r, found := c.Room(roomID)
		if !found {
			m.Reason = ReasonRoomNotFound
			return m, false
		}
		count = len(r.Entities())
	}
	if index < 0 || index >= count {
		m.Reason = ReasonIndexOutOfRange
		return m, false
	}

	if !checkWorld {
		return m, true
	}
	if len(world.FindEntities(e.Type, vec.Around(abs, EntityTolerance))) == 0 {
		m.Reason = ReasonMissingWorldEntity
		return m, false
	}
	return m, true
}

// ValidateConstruction сверяет базовые блоки, базовые сущности и все комнаты.
// Мир проверяется только для видимого состояния: базовых позиций без
// переопределения активной комнатой, базовых сущностей при отсутствии
// активной комнаты и содержимого самой активной комнаты.
func (ch *Checker) ValidateConstruction(ctx context.Context, c *construction.Construction, world WorldReader, opts Options) Report {
	_, span := ch.tracer.Start(ctx, "coherence.ValidateConstruction", trace.WithAttributes(
		attribute.String("construction.id", c.ID()),
		attribute.String("construction.room", opts.ActiveRoom),
		attribute.Bool("check.world", opts.CheckInWorld),
	))
	defer span.End()

	checkWorld := opts.CheckInWorld && world != nil
	rep := Report{
		ConstructionID: c.ID(),
		ActiveRoom:     opts.ActiveRoom,
		CheckInWorld:   checkWorld,
		BaseBlocks:     newCategory(CategoryBaseBlocks),
		BaseEntities:   newCategory(CategoryBaseEntities),
		Rooms:          newCategory(CategoryRooms),
	}

	var active *construction.Room
	if opts.ActiveRoom != "" {
		r, ok := c.Room(opts.ActiveRoom)
		if !ok {
			ch.fail(&rep.Rooms, Mismatch{
				Reason:         ReasonRoomNotFound,
				ConstructionID: c.ID(),
				RoomID:         opts.ActiveRoom,
				EntityIndex:    -1,
			})
		}
		active = r
	}

	for _, e := range c.Blocks() {
		rep.BaseBlocks.Checked++
		overridden := active != nil && active.HasBlockChange(e.Pos)
		if m, ok := ch.CheckBlock(c, "", e.Pos, e.Block, world, checkWorld && !overridden); !ok {
			ch.fail(&rep.BaseBlocks, m)
		}
	}

	for i, e := range c.Entities() {
		rep.BaseEntities.Checked++
		if m, ok := ch.CheckEntity(c, "", i, e, world, checkWorld && opts.ActiveRoom == ""); !ok {
			ch.fail(&rep.BaseEntities, m)
		}
	}

	for _, id := range c.RoomIDs() {
		r, _ := c.Room(id)
		roomWorld := checkWorld && id == opts.ActiveRoom
		for _, e := range r.BlockChanges() {
			rep.Rooms.Checked++
			if m, ok := ch.CheckBlock(c, id, e.Pos, e.Block, world, roomWorld); !ok {
				ch.fail(&rep.Rooms, m)
			}
		}
		for i, e := range r.Entities() {
			rep.Rooms.Checked++
			if m, ok := ch.CheckEntity(c, id, i, e, world, roomWorld); !ok {
				ch.fail(&rep.Rooms, m)
			}
		}
	}

	rep.Passed = rep.BaseBlocks.Passed && rep.BaseEntities.Passed && rep.Rooms.Passed

	span.SetAttributes(
		attribute.Bool("check.passed", rep.Passed),
		attribute.Int("check.failures", rep.Failures()),
	)
	if rep.Passed {
		ch.logger.Debug("постройка %s согласована (комната %q)", c.ID(), opts.ActiveRoom)
	} else {
		span.SetStatus(codes.Error, "incoherent")
		ch.logger.Warn("постройка %s не согласована: блоки %d, сущности %d, комнаты %d",
			c.ID(), rep.BaseBlocks.Failures, rep.BaseEntities.Failures, rep.Rooms.Failures)
	}
	return rep
}

// ValidateByID ищет постройку и проверяет её. Отсутствие постройки: проваленный отчёт.
func (ch *Checker) ValidateByID(ctx context.Context, lookup Lookup, id string, world WorldReader, opts Options) Report {
	c, err := lookup.Get(id)
	if err != nil {
		ch.logger.Warn("проверка %s: %v", id, err)
		return Report{
			ConstructionID: id,
			ActiveRoom:     opts.ActiveRoom,
			CheckInWorld:   opts.CheckInWorld,
			Reason:         ReasonConstructionNotFound,
			BaseBlocks:     newCategory(CategoryBaseBlocks),
			BaseEntities:   newCategory(CategoryBaseEntities),
			Rooms:          newCategory(CategoryRooms),
		}
	}
	return ch.ValidateConstruction(ctx, c, world, opts)
}

// fail учитывает провал и логирует записанные расхождения
func (ch *Checker) fail(cat *CategoryReport, m Mismatch) {
	if cat.record(m) {
		ch.logger.Warn("[%s] %s", cat.Category, m)
	}
}
