// Package frame holds the per-tick data published by an engine.
//
// A Snapshot is a fixed list of typed items plus a frame id. The producer
// and the consumers share one Snapshot and take turns through its lock:
// whoever holds the lock has exclusive access, and every accessor other than
// Lock, Unlock and With must only be called while holding it.
//
//	snap.With(func(s *frame.Snapshot) {
//		if !tracker.Fresh(s) {
//			return
//		}
//		depth, err := frame.Get[[]uint16](s, depthID)
//		...
//	})
package frame

import (
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/motionsense/sense-go/pkg/result"
	"github.com/motionsense/sense-go/pkg/typeinfo"
	"github.com/motionsense/sense-go/pkg/value"
)

// ErrFrameIDRegression is returned when a frame id would decrease.
var ErrFrameIDRegression = errors.New("frame id must not decrease")

// Item declares one data item of a snapshot.
type Item struct {
	Name string
	Type typeinfo.TypeInfo
}

// Entry is one item as seen while iterating.
type Entry struct {
	Name  string
	Value value.TypedValue
	Valid bool
}

type slot struct {
	item  Item
	value value.TypedValue
	valid bool
}

// Snapshot is a lockable, versioned, id-keyed collection of TypedValues.
// Item ids are positions in the layout given to New.
type Snapshot struct {
	mu      sync.Mutex
	slots   []slot
	byName  map[string]int
	frameID uint64
}

// New creates a snapshot with the given layout. Every item starts empty and
// invalid; names must be unique.
func New(items ...Item) (*Snapshot, error) {
	s := &Snapshot{
		slots:  make([]slot, len(items)),
		byName: make(map[string]int, len(items)),
	}
	for i, it := range items {
		if it.Type.IsUnknown() {
			return nil, fmt.Errorf("item %q has no type", it.Name)
		}
		if _, dup := s.byName[it.Name]; dup {
			return nil, fmt.Errorf("duplicate item %q", it.Name)
		}
		s.byName[it.Name] = i
		s.slots[i] = slot{item: it, value: value.Empty(it.Type)}
	}
	return s, nil
}

// Lock acquires exclusive access.
func (s *Snapshot) Lock() { s.mu.Lock() }

// Unlock releases exclusive access.
func (s *Snapshot) Unlock() { s.mu.Unlock() }

// With runs fn while holding the lock.
func (s *Snapshot) With(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// Len returns the number of items.
func (s *Snapshot) Len() int { return len(s.slots) }

// Items returns the layout.
func (s *Snapshot) Items() []Item {
	out := make([]Item, len(s.slots))
	for i, sl := range s.slots {
		out[i] = sl.item
	}
	return out
}

// ID returns the id of the named item.
func (s *Snapshot) ID(name string) (int, error) {
	id, ok := s.byName[name]
	if !ok {
		return -1, result.New(result.KindNameNotFound, "no frame item %q", name)
	}
	return id, nil
}

func (s *Snapshot) slot(id int) (*slot, error) {
	if id < 0 || id >= len(s.slots) {
		return nil, result.New(result.KindInvalidIndex, "frame item %d outside [0,%d)", id, len(s.slots))
	}
	return &s.slots[id], nil
}

// Type returns the declared type of item id.
func (s *Snapshot) Type(id int) (typeinfo.TypeInfo, error) {
	sl, err := s.slot(id)
	if err != nil {
		return typeinfo.Unknown, err
	}
	return sl.item.Type, nil
}

// IsValid reports whether item id holds valid data. It never fails with
// TYPE_MISMATCH.
func (s *Snapshot) IsValid(id int) (bool, error) {
	sl, err := s.slot(id)
	if err != nil {
		return false, err
	}
	return sl.valid, nil
}

// Value returns a copy of item id.
func (s *Snapshot) Value(id int) (value.TypedValue, error) {
	sl, err := s.slot(id)
	if err != nil {
		return value.TypedValue{}, err
	}
	if !sl.valid {
		return value.TypedValue{}, result.New(result.KindInvalidHandle, "frame item %s is invalid", sl.item.Name)
	}
	return sl.value.Clone(), nil
}

func (s *Snapshot) typed(id int, want typeinfo.TypeInfo) (*slot, error) {
	sl, err := s.slot(id)
	if err != nil {
		return nil, err
	}
	if sl.item.Type != want {
		return nil, result.New(result.KindTypeMismatch, "frame item %s is %s, requested %s", sl.item.Name, sl.item.Type, want)
	}
	if !sl.valid {
		return nil, result.New(result.KindInvalidHandle, "frame item %s is invalid", sl.item.Name)
	}
	return sl, nil
}

// Ref returns a reference to the payload of item id. The reference is only
// valid while the lock is held.
func Ref[T any](s *Snapshot, id int) (*T, error) {
	sl, err := s.typed(id, typeinfo.Of[T]())
	if err != nil {
		return nil, err
	}
	return value.Get[T](sl.value)
}

// Get returns a copy of the payload of item id.
func Get[T any](s *Snapshot, id int) (T, error) {
	sl, err := s.typed(id, typeinfo.Of[T]())
	if err != nil {
		var zero T
		return zero, err
	}
	return value.GetCopy[T](sl.value)
}

// Set stores a copy of v in item id. An empty v invalidates the item.
func (s *Snapshot) Set(id int, v value.TypedValue) error {
	sl, err := s.slot(id)
	if err != nil {
		return err
	}
	if v.Type() != sl.item.Type {
		return result.New(result.KindTypeMismatch, "frame item %s is %s, not %s", sl.item.Name, sl.item.Type, v.Type())
	}
	sl.value = v.Clone()
	sl.valid = v.IsValid()
	return nil
}

// Put stores v in item id.
func Put[T any](s *Snapshot, id int, v T) error {
	return s.Set(id, value.New(v))
}

// Invalidate marks item id invalid. Its last value is dropped.
func (s *Snapshot) Invalidate(id int) error {
	sl, err := s.slot(id)
	if err != nil {
		return err
	}
	sl.value = value.Empty(sl.item.Type)
	sl.valid = false
	return nil
}

// InvalidateAll marks every item invalid.
func (s *Snapshot) InvalidateAll() {
	for i := range s.slots {
		s.slots[i].value = value.Empty(s.slots[i].item.Type)
		s.slots[i].valid = false
	}
}

// FrameID returns the current frame id.
func (s *Snapshot) FrameID() uint64 { return s.frameID }

// SetFrameID sets the frame id. Equal ids are accepted (no new data);
// smaller ones are rejected.
func (s *Snapshot) SetFrameID(id uint64) error {
	if id < s.frameID {
		return fmt.Errorf("%w: %d after %d", ErrFrameIDRegression, id, s.frameID)
	}
	s.frameID = id
	return nil
}

// All iterates over the items in id order. Values are not copied; a
// producer may inspect them but must use Set to change them.
func (s *Snapshot) All() iter.Seq2[int, Entry] {
	return func(yield func(int, Entry) bool) {
		for i, sl := range s.slots {
			if !yield(i, Entry{Name: sl.item.Name, Value: sl.value, Valid: sl.valid}) {
				return
			}
		}
	}
}

// ValidCount returns the number of valid items.
func (s *Snapshot) ValidCount() int {
	n := 0
	for _, sl := range s.slots {
		if sl.valid {
			n++
		}
	}
	return n
}
