package block

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/annel0/constructs/internal/vec"
)

// Имена базовых блоков, которые использует сам сервер (генератор, очистка области)
const (
	AirName   = "air"
	StoneName = "stone"
	DirtName  = "dirt"
	GrassName = "grass_block"
	WaterName = "water"
)

// FacingState имя состояния, которое поворачивается вместе с постройкой
const FacingState = "facing"

// Descriptor описывает размещённый блок: имя и набор состояний.
// Сравнение строгое: совпадают имя и все состояния.
type Descriptor struct {
	Name   string
	States map[string]string
}

// Air пустой блок
var Air = Descriptor{Name: AirName}

// New создаёт дескриптор; states копируется
func New(name string, states map[string]string) Descriptor {
	d := Descriptor{Name: name}
	if len(states) > 0 {
		d.States = make(map[string]string, len(states))
		for k, v := range states {
			d.States[k] = v
		}
	}
	return d
}

// Of короткий конструктор дескриптора без состояний
func Of(name string) Descriptor {
	return Descriptor{Name: name}
}

// With возвращает копию с установленным состоянием
func (d Descriptor) With(key, value string) Descriptor {
	out := New(d.Name, d.States)
	if out.States == nil {
		out.States = make(map[string]string, 1)
	}
	out.States[key] = value
	return out
}

// IsAir сообщает, является ли блок пустым. Нулевой дескриптор тоже считается воздухом.
func (d Descriptor) IsAir() bool {
	return d.Name == "" || d.Name == AirName
}

// Equal строгое сравнение дескрипторов
func (d Descriptor) Equal(other Descriptor) bool {
	if d.IsAir() && other.IsAir() && len(d.States) == 0 && len(other.States) == 0 {
		return true
	}
	if d.Name != other.Name || len(d.States) != len(other.States) {
		return false
	}
	for k, v := range d.States {
		if ov, ok := other.States[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// String возвращает каноническую форму name[k=v,...] с отсортированными ключами
func (d Descriptor) String() string {
	if d.IsAir() {
		return AirName
	}
	if len(d.States) == 0 {
		return d.Name
	}
	keys := make([]string, 0, len(d.States))
	for k := range d.States {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(d.Name)
	sb.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(d.States[k])
	}
	sb.WriteByte(']')
	return sb.String()
}

// Parse разбирает каноническую форму дескриптора
func Parse(s string) (Descriptor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Descriptor{}, fmt.Errorf("пустой дескриптор блока")
	}

	open := strings.IndexByte(s, '[')
	if open < 0 {
		return Descriptor{Name: s}, nil
	}
	if !strings.HasSuffix(s, "]") || open == 0 {
		return Descriptor{}, fmt.Errorf("некорректный дескриптор блока %q", s)
	}

	d := Descriptor{Name: s[:open]}
	body := s[open+1 : len(s)-1]
	if body == "" {
		return d, nil
	}

	d.States = make(map[string]string)
	for _, pair := range strings.Split(body, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return Descriptor{}, fmt.Errorf("некорректное состояние %q в %q", pair, s)
		}
		d.States[kv[0]] = kv[1]
	}
	return d, nil
}

// MustParse как Parse, но паникует при ошибке. Только для констант и тестов.
func MustParse(s string) Descriptor {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Rotate поворачивает состояние facing, если оно задано стороной света
func (d Descriptor) Rotate(r vec.Rotation) Descriptor {
	facing, ok := d.States[FacingState]
	if !ok || r.Normalize() == vec.Rotate0 {
		return d
	}
	f, err := vec.ParseFacing(facing)
	if err != nil {
		// up/down и прочие значения не зависят от поворота
		return d
	}
	return d.With(FacingState, f.Rotate(r).String())
}

// MarshalJSON сериализует дескриптор в каноническую строку
func (d Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON разбирает каноническую строку
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
