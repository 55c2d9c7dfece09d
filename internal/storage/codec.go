package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/annel0/constructs/internal/construction"
	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Codec кодирует снимки построек: JSON, сжатый zstd.
// Несжатый JSON при чтении тоже принимается.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec создаёт кодек. Кодек безопасен для конкурентного использования.
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Encode сериализует снимок
func (c *Codec) Encode(s construction.Snapshot) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации постройки %s: %w", s.ID, err)
	}
	return c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// Decode восстанавливает снимок
func (c *Codec) Decode(data []byte) (construction.Snapshot, error) {
	var s construction.Snapshot

	raw := data
	if bytes.HasPrefix(data, zstdMagic) {
		var err error
		raw, err = c.dec.DecodeAll(data, nil)
		if err != nil {
			return s, fmt.Errorf("ошибка распаковки: %w", err)
		}
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("ошибка десериализации постройки: %w", err)
	}
	return s, nil
}

// Close освобождает ресурсы кодека
func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}
