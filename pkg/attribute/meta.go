package attribute

import (
	"errors"
	"fmt"
)

// EnumMapper errors.
var (
	ErrDuplicateEnumID   = errors.New("duplicate enum id")
	ErrDuplicateEnumName = errors.New("duplicate enum name")
)

// EnumEntry is one id/name pair of an EnumMapper.
type EnumEntry struct {
	ID   int64  `cbor:"1,keyasint" yaml:"id"`
	Name string `cbor:"2,keyasint" yaml:"name"`
}

// EnumMapper is a bidirectional id/name table.
type EnumMapper struct {
	entries []EnumEntry
	byID    map[int64]int
	byName  map[string]int
}

// NewEnumMapper builds a mapper from entries. IDs and names must be unique.
func NewEnumMapper(entries ...EnumEntry) (*EnumMapper, error) {
	m := &EnumMapper{
		entries: make([]EnumEntry, 0, len(entries)),
		byID:    make(map[int64]int, len(entries)),
		byName:  make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if _, dup := m.byID[e.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateEnumID, e.ID)
		}
		if _, dup := m.byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateEnumName, e.Name)
		}
		m.byID[e.ID] = len(m.entries)
		m.byName[e.Name] = len(m.entries)
		m.entries = append(m.entries, e)
	}
	return m, nil
}

// Name returns the name mapped to id.
func (m *EnumMapper) Name(id int64) (string, bool) {
	if m == nil {
		return "", false
	}
	i, ok := m.byID[id]
	if !ok {
		return "", false
	}
	return m.entries[i].Name, true
}

// ID returns the id mapped to name.
func (m *EnumMapper) ID(name string) (int64, bool) {
	if m == nil {
		return 0, false
	}
	i, ok := m.byName[name]
	if !ok {
		return 0, false
	}
	return m.entries[i].ID, true
}

// Len returns the number of entries.
func (m *EnumMapper) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Entries returns the entries in declaration order.
func (m *EnumMapper) Entries() []EnumEntry {
	if m == nil {
		return nil
	}
	return append([]EnumEntry(nil), m.entries...)
}

// Clone returns an independent copy.
func (m *EnumMapper) Clone() *EnumMapper {
	if m == nil {
		return nil
	}
	c, _ := NewEnumMapper(m.entries...)
	return c
}

// Equal returns true if both mappers hold the same entries in the same order.
func (m *EnumMapper) Equal(o *EnumMapper) bool {
	if m.Len() != o.Len() {
		return false
	}
	for i := 0; i < m.Len(); i++ {
		if m.entries[i] != o.entries[i] {
			return false
		}
	}
	return true
}

// SizerMode selects how an image size is derived from its source.
type SizerMode uint8

const (
	SizerIdentity SizerMode = iota
	SizerHalf
	SizerQuarter
	SizerCustom
)

// String returns the mode name.
func (m SizerMode) String() string {
	switch m {
	case SizerIdentity:
		return "IDENTITY"
	case SizerHalf:
		return "HALF"
	case SizerQuarter:
		return "QUARTER"
	case SizerCustom:
		return "CUSTOM"
	default:
		return "UNKNOWN"
	}
}

// ImageSizer derives an image's dimensions from its source image.
type ImageSizer struct {
	Mode SizerMode `cbor:"1,keyasint"`

	// Width and Height are used by SizerCustom only.
	Width  int `cbor:"2,keyasint,omitempty"`
	Height int `cbor:"3,keyasint,omitempty"`
}

// Size returns the derived dimensions for a source of srcW x srcH.
func (s ImageSizer) Size(srcW, srcH int) (int, int) {
	switch s.Mode {
	case SizerHalf:
		return srcW / 2, srcH / 2
	case SizerQuarter:
		return srcW / 4, srcH / 4
	case SizerCustom:
		return s.Width, s.Height
	default:
		return srcW, srcH
	}
}

// PixelRelation describes how pixels of an image map onto its source image.
type PixelRelation uint8

const (
	// PixelUnrelated means no pixel correspondence is defined.
	PixelUnrelated PixelRelation = iota
	// PixelAligned means pixel (x, y) shows the same point as the source's (x, y).
	PixelAligned
	// PixelScaled means pixels align after applying the image sizer.
	PixelScaled
)

// String returns the relation name.
func (r PixelRelation) String() string {
	switch r {
	case PixelUnrelated:
		return "UNRELATED"
	case PixelAligned:
		return "ALIGNED"
	case PixelScaled:
		return "SCALED"
	default:
		return "UNKNOWN"
	}
}
