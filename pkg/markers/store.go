package markers

import (
	"log/slog"
	"sync"

	"github.com/aretw0/abyss/internal/broadcast"
	"github.com/aretw0/abyss/internal/logging"
	"github.com/aretw0/abyss/pkg/domain"
)

// Snapshot is an immutable copy of the store contents.
type Snapshot struct {
	Mode          domain.Mode
	FixedSupports []domain.FixedSupport
	LoadVectors   []domain.LoadVector
}

// Len returns the total number of markers in the snapshot.
func (s Snapshot) Len() int {
	return len(s.FixedSupports) + len(s.LoadVectors)
}

// Store is the domain model for markers. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	ids    IDSource
	mode   domain.Mode
	fixed  []domain.FixedSupport
	loads  []domain.LoadVector
	hub    *broadcast.Hub[Snapshot]
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithIDSource injects the id generator.
func WithIDSource(ids IDSource) Option {
	return func(s *Store) {
		s.ids = ids
	}
}

// WithLogger configures a logger for the Store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates an empty store in fixed-support mode.
func NewStore(opts ...Option) *Store {
	s := &Store{
		mode:   domain.ModeFixed,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ids == nil {
		s.ids = NewCounter(0)
	}
	s.hub = broadcast.New[Snapshot]("markers", s.logger)
	return s
}

// AddFixedSupport stores a new fixed support and returns its id.
func (s *Store) AddFixedSupport(position, normal domain.Vec3) domain.MarkerID {
	s.mu.Lock()
	id := s.ids.Next()
	s.fixed = append(s.fixed, domain.FixedSupport{ID: id, Position: position, Normal: normal})
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("Marker added", "marker_id", id, "kind", domain.KindFixedSupport)
	s.hub.Publish(snap)
	return id
}

// AddLoadVector stores a new load vector and returns its id.
// Creation always succeeds; the magnitude is validated at submit time.
func (s *Store) AddLoadVector(position, direction domain.Vec3, magnitude float64) domain.MarkerID {
	s.mu.Lock()
	id := s.ids.Next()
	s.loads = append(s.loads, domain.LoadVector{ID: id, Position: position, Direction: direction, Magnitude: magnitude})
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("Marker added", "marker_id", id, "kind", domain.KindLoadVector, "magnitude", magnitude)
	s.hub.Publish(snap)
	return id
}

// AddLoadVectorDefault stores a load vector with DefaultMagnitude.
func (s *Store) AddLoadVectorDefault(position, direction domain.Vec3) domain.MarkerID {
	return s.AddLoadVector(position, direction, domain.DefaultMagnitude)
}

// Remove deletes the marker with the given id. Unknown ids are a no-op and
// report false.
func (s *Store) Remove(id domain.MarkerID) bool {
	s.mu.Lock()
	removed := false
	for i, f := range s.fixed {
		if f.ID == id {
			s.fixed = append(s.fixed[:i:i], s.fixed[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		for i, l := range s.loads {
			if l.ID == id {
				s.loads = append(s.loads[:i:i], s.loads[i+1:]...)
				removed = true
				break
			}
		}
	}
	if !removed {
		s.mu.Unlock()
		return false
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("Marker removed", "marker_id", id)
	s.hub.Publish(snap)
	return true
}

// ClearAll removes every marker. The id source is not reset.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.fixed = nil
	s.loads = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

// SetMode selects the variant the next surface click creates.
func (s *Store) SetMode(mode domain.Mode) {
	s.mu.Lock()
	if s.mode == mode {
		s.mu.Unlock()
		return
	}
	s.mode = mode
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

// Mode returns the current placement mode.
func (s *Store) Mode() domain.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Get returns the marker with the given id.
func (s *Store) Get(id domain.MarkerID) (domain.Marker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.fixed {
		if f.ID == id {
			return f, true
		}
	}
	for _, l := range s.loads {
		if l.ID == id {
			return l, true
		}
	}
	return nil, false
}

// FixedSupports returns a copy of the fixed supports in insertion order.
func (s *Store) FixedSupports() []domain.FixedSupport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.FixedSupport(nil), s.fixed...)
}

// LoadVectors returns a copy of the load vectors in insertion order.
func (s *Store) LoadVectors() []domain.LoadVector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.LoadVector(nil), s.loads...)
}

// Len returns the number of live markers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fixed) + len(s.loads)
}

// Snapshot returns a copy of the current contents.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel receiving a Snapshot after every mutation.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	return s.hub.Subscribe(0)
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Mode:          s.mode,
		FixedSupports: append([]domain.FixedSupport(nil), s.fixed...),
		LoadVectors:   append([]domain.LoadVector(nil), s.loads...),
	}
}
