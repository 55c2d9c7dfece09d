package construction

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/annel0/constructs/internal/block"
	"github.com/annel0/constructs/internal/vec"
)

// ChangeKind тип изменения постройки
type ChangeKind uint8

const (
	ChangeBlockAdded ChangeKind = iota
	ChangeBlockRemoved
	ChangeEntityAdded
	ChangeEntityRemoved
	ChangeRoomAdded
	ChangeRoomRemoved
	ChangeBounds
	ChangeTransformed
)

var changeNames = [...]string{
	"block_added", "block_removed", "entity_added", "entity_removed",
	"room_added", "room_removed", "bounds", "transformed",
}

func (k ChangeKind) String() string {
	if int(k) < len(changeNames) {
		return changeNames[k]
	}
	return "unknown"
}

// Change уведомление об изменении. RoomID пуст для базового состояния.
type Change struct {
	ConstructionID string
	RoomID         string
	Kind           ChangeKind
	Pos            vec.Vec3
}

// ChangeListener получает уведомления (каркас, интерфейс и т.п. синхронизируются снаружи)
type ChangeListener func(Change)

var idPattern = regexp.MustCompile(`^[a-z0-9_-]+(\.[a-z0-9_-]+){2,}$`)

// ValidateID проверяет идентификатор вида tld.author.name
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Construction агрегат постройки: границы, базовые блоки и сущности, комнаты.
// Не потокобезопасна: все изменения выполняются в потоке тиков.
type Construction struct {
	id       string
	bounds   Bounds
	facing   vec.Facing
	blocks   map[vec.Vec3]block.Descriptor
	entities []EntityData
	rooms    map[string]*Room
	listener ChangeListener
}

// New создаёт пустую постройку с незаданными границами
func New(id string) (*Construction, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return &Construction{
		id:     id,
		blocks: make(map[vec.Vec3]block.Descriptor),
		rooms:  make(map[string]*Room),
	}, nil
}

// ID возвращает идентификатор постройки
func (c *Construction) ID() string {
	return c.id
}

// Bounds возвращает текущие границы
func (c *Construction) Bounds() Bounds {
	return c.bounds
}

// Facing возвращает текущую ориентацию постройки
func (c *Construction) Facing() vec.Facing {
	return c.facing
}

// SetListener устанавливает получателя уведомлений (nil отключает)
func (c *Construction) SetListener(l ChangeListener) {
	c.listener = l
}

func (c *Construction) notify(roomID string, kind ChangeKind, pos vec.Vec3) {
	if c.listener != nil {
		c.listener(Change{ConstructionID: c.id, RoomID: roomID, Kind: kind, Pos: pos})
	}
}

// SetBounds явно задаёт границы (выделение области при редактировании)
func (c *Construction) SetBounds(b Bounds) {
	c.bounds = b
	c.notify("", ChangeBounds, b.Min)
}

// include расширяет границы до pos. Если сдвинулся минимальный угол, смещения
// сущностей базы и комнат пересчитываются: абсолютные позиции не меняются.
func (c *Construction) include(pos vec.Vec3) {
	if c.bounds.Contains(pos) {
		return
	}
	wasValid := c.bounds.Valid()
	oldMin := c.bounds.Min
	c.bounds.ExpandToInclude(pos)
	if wasValid && c.bounds.Min != oldMin {
		c.shiftEntities(oldMin.Sub(c.bounds.Min))
	}
}

func (c *Construction) shiftEntities(d vec.Vec3) {
	shift := func(list []EntityData) {
		for i := range list {
			list[i].Rel.X += float64(d.X)
			list[i].Rel.Y += float64(d.Y)
			list[i].Rel.Z += float64(d.Z)
		}
	}
	shift(c.entities)
	for _, r := range c.rooms {
		shift(r.entities)
	}
}

// AddBlock добавляет блок в базовое состояние, расширяя границы при необходимости
func (c *Construction) AddBlock(pos vec.Vec3, d block.Descriptor) {
	c.blocks[pos] = d
	c.include(pos)
	c.notify("", ChangeBlockAdded, pos)
}

// RemoveBlock удаляет блок из базового состояния. Границы не сжимаются.
func (c *Construction) RemoveBlock(pos vec.Vec3) bool {
	if _, ok := c.blocks[pos]; !ok {
		return false
	}
	delete(c.blocks, pos)
	c.notify("", ChangeBlockRemoved, pos)
	return true
}

// ContainsBlock проверка членства в базовой карте (переопределения комнат не учитываются)
func (c *Construction) ContainsBlock(pos vec.Vec3) bool {
	_, ok := c.blocks[pos]
	return ok
}

// Block возвращает базовый блок в позиции
func (c *Construction) Block(pos vec.Vec3) (block.Descriptor, bool) {
	d, ok := c.blocks[pos]
	return d, ok
}

// Blocks возвращает базовые блоки в детерминированном порядке
func (c *Construction) Blocks() []BlockEntry {
	return sortedEntries(c.blocks)
}

// BlockCount количество базовых блоков
func (c *Construction) BlockCount() int {
	return len(c.blocks)
}

// AddEntity добавляет базовую сущность и возвращает её индекс
func (c *Construction) AddEntity(e EntityData) int {
	c.entities = append(c.entities, e)
	c.notify("", ChangeEntityAdded, e.Rel.Abs(c.bounds.Min).Block())
	return len(c.entities) - 1
}

// RemoveEntity удаляет базовую сущность по индексу
func (c *Construction) RemoveEntity(i int) error {
	if i < 0 || i >= len(c.entities) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	e := c.entities[i]
	c.entities = append(c.entities[:i], c.entities[i+1:]...)
	c.notify("", ChangeEntityRemoved, e.Rel.Abs(c.bounds.Min).Block())
	return nil
}

// Entities возвращает копию базового списка сущностей
func (c *Construction) Entities() []EntityData {
	return append([]EntityData(nil), c.entities...)
}

// Entity возвращает базовую сущность по индексу
func (c *Construction) Entity(i int) (EntityData, bool) {
	if i < 0 || i >= len(c.entities) {
		return EntityData{}, false
	}
	return c.entities[i], true
}

// AddRoom создаёт пустую комнату
func (c *Construction) AddRoom(id string) (*Room, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: пустой идентификатор", ErrRoomNotFound)
	}
	if _, ok := c.rooms[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomExists, id)
	}
	r := newRoom(id)
	c.rooms[id] = r
	c.notify(id, ChangeRoomAdded, c.bounds.Min)
	return r, nil
}

// RemoveRoom удаляет комнату со всем содержимым
func (c *Construction) RemoveRoom(id string) error {
	if _, ok := c.rooms[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	delete(c.rooms, id)
	c.notify(id, ChangeRoomRemoved, c.bounds.Min)
	return nil
}

// Room возвращает комнату по идентификатору
func (c *Construction) Room(id string) (*Room, bool) {
	r, ok := c.rooms[id]
	return r, ok
}

// RoomIDs возвращает идентификаторы комнат по возрастанию
func (c *Construction) RoomIDs() []string {
	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Construction) room(id string) (*Room, error) {
	r, ok := c.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s в %s", ErrRoomNotFound, id, c.id)
	}
	return r, nil
}

// AddRoomBlock добавляет переопределение блока в комнату. Расширяются границы постройки.
func (c *Construction) AddRoomBlock(roomID string, pos vec.Vec3, d block.Descriptor) error {
	r, err := c.room(roomID)
	if err != nil {
		return err
	}
	r.blocks[pos] = d
	c.include(pos)
	c.notify(roomID, ChangeBlockAdded, pos)
	return nil
}

// RemoveRoomBlock удаляет переопределение из комнаты
func (c *Construction) RemoveRoomBlock(roomID string, pos vec.Vec3) (bool, error) {
	r, err := c.room(roomID)
	if err != nil {
		return false, err
	}
	if _, ok := r.blocks[pos]; !ok {
		return false, nil
	}
	delete(r.blocks, pos)
	c.notify(roomID, ChangeBlockRemoved, pos)
	return true, nil
}

// AddRoomEntity добавляет сущность в комнату; смещение отсчитывается от границ постройки
func (c *Construction) AddRoomEntity(roomID string, e EntityData) (int, error) {
	r, err := c.room(roomID)
	if err != nil {
		return 0, err
	}
	r.entities = append(r.entities, e)
	c.notify(roomID, ChangeEntityAdded, e.Rel.Abs(c.bounds.Min).Block())
	return len(r.entities) - 1, nil
}

// RemoveRoomEntity удаляет сущность комнаты по индексу
func (c *Construction) RemoveRoomEntity(roomID string, i int) error {
	r, err := c.room(roomID)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(r.entities) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	e := r.entities[i]
	r.entities = append(r.entities[:i], r.entities[i+1:]...)
	c.notify(roomID, ChangeEntityRemoved, e.Rel.Abs(c.bounds.Min).Block())
	return nil
}

// Clone возвращает глубокую копию без слушателя
func (c *Construction) Clone() *Construction {
	out := &Construction{
		id:       c.id,
		bounds:   c.bounds,
		facing:   c.facing,
		blocks:   make(map[vec.Vec3]block.Descriptor, len(c.blocks)),
		entities: c.Entities(),
		rooms:    make(map[string]*Room, len(c.rooms)),
	}
	for p, d := range c.blocks {
		out.blocks[p] = d
	}
	for id, r := range c.rooms {
		out.rooms[id] = r.clone()
	}
	return out
}
