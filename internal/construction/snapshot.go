package construction

import "github.com/annel0/constructs/internal/vec"

// Snapshot сериализуемое представление постройки
type Snapshot struct {
	ID       string          `json:"id"`
	Bounds   *BoundsSnapshot `json:"bounds,omitempty"`
	Facing   string          `json:"facing"`
	Blocks   []BlockEntry    `json:"blocks"`
	Entities []EntityData    `json:"entities,omitempty"`
	Rooms    []RoomSnapshot  `json:"rooms,omitempty"`
}

// BoundsSnapshot углы границ
type BoundsSnapshot struct {
	Min vec.Vec3 `json:"min"`
	Max vec.Vec3 `json:"max"`
}

// RoomSnapshot сериализуемое представление комнаты
type RoomSnapshot struct {
	ID       string       `json:"id"`
	Blocks   []BlockEntry `json:"blocks"`
	Entities []EntityData `json:"entities,omitempty"`
}

// ToSnapshot снимает состояние постройки
func (c *Construction) ToSnapshot() Snapshot {
	s := Snapshot{
		ID:       c.id,
		Facing:   c.facing.String(),
		Blocks:   c.Blocks(),
		Entities: c.Entities(),
	}
	if c.bounds.Valid() {
		s.Bounds = &BoundsSnapshot{Min: c.bounds.Min, Max: c.bounds.Max}
	}
	for _, id := range c.RoomIDs() {
		r := c.rooms[id]
		s.Rooms = append(s.Rooms, RoomSnapshot{ID: id, Blocks: r.BlockChanges(), Entities: r.Entities()})
	}
	return s
}

// FromSnapshot восстанавливает постройку. Границы берутся как сохранены и не
// подгоняются под блоки: расхождение должна обнаружить проверка согласованности.
func FromSnapshot(s Snapshot) (*Construction, error) {
	c, err := New(s.ID)
	if err != nil {
		return nil, err
	}
	if s.Bounds != nil {
		c.bounds = Bounds{Min: s.Bounds.Min, Max: s.Bounds.Max, set: true}
	}
	if s.Facing != "" {
		f, err := vec.ParseFacing(s.Facing)
		if err != nil {
			return nil, err
		}
		c.facing = f
	}
	for _, e := range s.Blocks {
		c.blocks[e.Pos] = e.Block
	}
	c.entities = append([]EntityData(nil), s.Entities...)
	for _, rs := range s.Rooms {
		if _, ok := c.rooms[rs.ID]; ok || rs.ID == "" {
			return nil, ErrRoomExists
		}
		r := newRoom(rs.ID)
		for _, e := range rs.Blocks {
			r.blocks[e.Pos] = e.Block
		}
		r.entities = append([]EntityData(nil), rs.Entities...)
		c.rooms[rs.ID] = r
	}
	return c, nil
}

