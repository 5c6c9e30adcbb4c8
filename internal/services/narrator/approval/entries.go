package approval

import (
	"sync"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
)

// Action tells Entries what to do with an entry after an update.
type Action int

const (
	// Keep discards any change made by the update.
	Keep Action = iota
	// Save stores the updated entry.
	Save
	// Remove deletes the entry.
	Remove
)

// Entries is the concurrent pending-approval map. Updates of one key are
// serialized; unrelated keys progress independently.
type Entries interface {
	// Insert stores p, running commit while the key is held. It fails with
	// CONFLICT when the key exists or when commit fails.
	Insert(p Pending, commit func(Pending) error) error
	// Update runs fn on a copy of the entry while the key is held. It fails
	// with NOT_FOUND when the key is absent.
	Update(id string, fn func(*Pending) (Action, error)) error
	Get(id string) (Pending, bool)
	List() []Pending
}

type slot struct {
	mu      sync.Mutex
	entry   Pending
	removed bool
}

// MemoryEntries implements Entries with one lock per key.
type MemoryEntries struct {
	slots sync.Map
}

// NewMemoryEntries returns an empty map.
func NewMemoryEntries() *MemoryEntries {
	return &MemoryEntries{}
}

func notFound(id string) error {
	return apperrors.Newf(apperrors.CodeNotFound, "pending approval %q not found", id)
}

// Insert implements Entries.
func (m *MemoryEntries) Insert(p Pending, commit func(Pending) error) error {
	s := &slot{entry: p.Clone()}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, loaded := m.slots.LoadOrStore(p.ResolutionID, s); loaded {
		return apperrors.Newf(apperrors.CodeConflict, "pending approval %q already exists", p.ResolutionID)
	}
	if commit != nil {
		if err := commit(p.Clone()); err != nil {
			s.removed = true
			m.slots.CompareAndDelete(p.ResolutionID, s)
			return err
		}
	}
	return nil
}

// Update implements Entries.
func (m *MemoryEntries) Update(id string, fn func(*Pending) (Action, error)) error {
	v, ok := m.slots.Load(id)
	if !ok {
		return notFound(id)
	}
	s := v.(*slot)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return notFound(id)
	}
	working := s.entry.Clone()
	action, err := fn(&working)
	if err != nil {
		return err
	}
	switch action {
	case Save:
		s.entry = working
	case Remove:
		s.removed = true
		m.slots.CompareAndDelete(id, s)
	}
	return nil
}

// Get implements Entries.
func (m *MemoryEntries) Get(id string) (Pending, bool) {
	v, ok := m.slots.Load(id)
	if !ok {
		return Pending{}, false
	}
	s := v.(*slot)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return Pending{}, false
	}
	return s.entry.Clone(), true
}

// List implements Entries. Order is unspecified.
func (m *MemoryEntries) List() []Pending {
	var out []Pending
	m.slots.Range(func(key, _ any) bool {
		if p, ok := m.Get(key.(string)); ok {
			out = append(out, p)
		}
		return true
	})
	return out
}
