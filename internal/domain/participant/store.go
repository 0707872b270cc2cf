package participant

import (
	"context"
	"sync"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE CONTRACT
// The store is the only mutable shared state. Everything handed out is a
// copy; callers change records only through Upsert, Remove and Persist.
// ══════════════════════════════════════════════════════════════════════════════

// Store is the participant registry.
type Store interface {
	// Get returns a copy of the record for id.
	Get(id string) (Record, bool)

	// Upsert replaces the record for id in full. A new id is appended to
	// iteration order; an existing id keeps its position.
	Upsert(id string, r Record) error

	// Remove deletes id and reports whether it existed.
	Remove(id string) bool

	// All returns an ordered snapshot.
	All() []Entry

	// Load replaces in-memory state with the backing store contents. A
	// missing backing store yields an empty registry; a corrupt one returns
	// an error matching ErrCorrupt and leaves in-memory state untouched.
	Load(ctx context.Context) error

	// Persist writes the full registry to the backing store atomically.
	Persist(ctx context.Context) error
}

// Backend is durable storage for the whole registry.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// Read returns stored entries in order, or (nil, nil) when nothing has
	// been stored yet.
	Read(ctx context.Context) ([]RawEntry, error)
	// Write replaces the stored registry with entries.
	Write(ctx context.Context, entries []Entry) error
}

// MemoryStore is an insertion-ordered, mutex-guarded Store. With a nil
// backend Load and Persist are no-ops, which is what tests use.
type MemoryStore struct {
	backend Backend

	mu      sync.RWMutex
	order   []string
	records map[string]Record

	// ioMu serializes Load and Persist against each other.
	ioMu sync.Mutex
}

// NewMemoryStore creates an empty store over backend.
func NewMemoryStore(backend Backend) *MemoryStore {
	return &MemoryStore{
		backend: backend,
		records: make(map[string]Record),
	}
}

// Get returns a copy of the record for id.
func (s *MemoryStore) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return r.Clone(), true
}

// Upsert validates and stores a copy of r under id.
func (s *MemoryStore) Upsert(id string, r Record) error {
	if id == "" {
		return ErrInvalidParticipantID
	}
	if r.ParticipantID == "" {
		r.ParticipantID = id
	}
	if r.ParticipantID != id {
		return ErrIDMismatch
	}
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[id]; !exists {
		s.order = append(s.order, id)
	}
	s.records[id] = r.Clone()
	return nil
}

// Remove deletes id.
func (s *MemoryStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// All returns an ordered snapshot.
func (s *MemoryStore) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, Entry{ID: id, Record: s.records[id].Clone()})
	}
	return out
}

// Len returns the number of participants.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Load reads the backend and swaps in its contents on success.
func (s *MemoryStore) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	raws, err := s.backend.Read(ctx)
	if err != nil {
		return &StoreError{Op: "load", Backend: s.backend.Name(), Err: err}
	}
	entries, err := DecodeAll(raws)
	if err != nil {
		return &StoreError{Op: "load", Backend: s.backend.Name(), Err: err}
	}

	order := make([]string, 0, len(entries))
	records := make(map[string]Record, len(entries))
	for _, e := range entries {
		order = append(order, e.ID)
		records[e.ID] = e.Record
	}

	s.mu.Lock()
	s.order = order
	s.records = records
	s.mu.Unlock()
	return nil
}

// Persist writes a snapshot through the backend.
func (s *MemoryStore) Persist(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.backend.Write(ctx, s.All()); err != nil {
		return &StoreError{Op: "persist", Backend: s.backend.Name(), Err: err}
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
