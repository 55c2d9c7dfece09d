package coherence

import (
	"fmt"

	"github.com/annel0/constructs/internal/vec"
)

// MaxMismatches предел записанных расхождений на категорию.
// Вердикт категории при этом считается по всем записям.
const MaxMismatches = 10

// Reason код причины расхождения
type Reason string

const (
	ReasonOutOfBounds          Reason = "out_of_bounds"
	ReasonMissingEntry         Reason = "missing_entry"
	ReasonDescriptorMismatch   Reason = "descriptor_mismatch"
	ReasonWorldMismatch        Reason = "world_mismatch"
	ReasonChunkNotLoaded       Reason = "chunk_not_loaded"
	ReasonIndexOutOfRange      Reason = "index_out_of_range"
	ReasonMissingWorldEntity   Reason = "missing_world_entity"
	ReasonConstructionNotFound Reason = "construction_not_found"
	ReasonRoomNotFound         Reason = "room_not_found"
)

// Category группа проверок
type Category string

const (
	CategoryBaseBlocks   Category = "base-blocks"
	CategoryBaseEntities Category = "base-entities"
	CategoryRooms        Category = "rooms"
)

// Mismatch одно расхождение. EntityIndex равен -1 для блоков.
type Mismatch struct {
	Reason         Reason   `json:"reason"`
	ConstructionID string   `json:"construction_id"`
	RoomID         string   `json:"room_id,omitempty"`
	Pos            vec.Vec3 `json:"pos"`
	EntityIndex    int      `json:"entity_index"`
	EntityType     string   `json:"entity_type,omitempty"`
	Expected       string   `json:"expected,omitempty"`
	Actual         string   `json:"actual,omitempty"`
}

func (m Mismatch) String() string {
	where := m.ConstructionID
	if m.RoomID != "" {
		where += "/" + m.RoomID
	}
	if m.EntityIndex >= 0 {
		return fmt.Sprintf("%s: %s сущность #%d (%s) у (%d,%d,%d) ожидалось %q получено %q",
			m.Reason, where, m.EntityIndex, m.EntityType, m.Pos.X, m.Pos.Y, m.Pos.Z, m.Expected, m.Actual)
	}
	return fmt.Sprintf("%s: %s блок (%d,%d,%d) ожидалось %q получено %q",
		m.Reason, where, m.Pos.X, m.Pos.Y, m.Pos.Z, m.Expected, m.Actual)
}

// CategoryReport итог категории
type CategoryReport struct {
	Category   Category   `json:"category"`
	Passed     bool       `json:"passed"`
	Checked    int        `json:"checked"`
	Failures   int        `json:"failures"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

func newCategory(c Category) CategoryReport {
	return CategoryReport{Category: c, Passed: true}
}

// record учитывает провал; записывается не больше MaxMismatches
func (r *CategoryReport) record(m Mismatch) bool {
	r.Passed = false
	r.Failures++
	if len(r.Mismatches) >= MaxMismatches {
		return false
	}
	r.Mismatches = append(r.Mismatches, m)
	return true
}

// Report итог проверки постройки
type Report struct {
	ConstructionID string         `json:"construction_id"`
	ActiveRoom     string         `json:"active_room,omitempty"`
	CheckInWorld   bool           `json:"check_in_world"`
	Passed         bool           `json:"passed"`
	Reason         Reason         `json:"reason,omitempty"`
	BaseBlocks     CategoryReport `json:"base_blocks"`
	BaseEntities   CategoryReport `json:"base_entities"`
	Rooms          CategoryReport `json:"rooms"`
}

// Categories категории в порядке проверки
func (r *Report) Categories() []CategoryReport {
	return []CategoryReport{r.BaseBlocks, r.BaseEntities, r.Rooms}
}

// Failures общее число провалов по всем категориям
func (r *Report) Failures() int {
	return r.BaseBlocks.Failures + r.BaseEntities.Failures + r.Rooms.Failures
}

// Mismatches все записанные расхождения
func (r *Report) Mismatches() []Mismatch {
	var out []Mismatch
	for _, c := range r.Categories() {
		out = append(out, c.Mismatches...)
	}
	return out
}
