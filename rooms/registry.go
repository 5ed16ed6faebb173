package rooms

import (
	"context"
	"sync"

	"github.com/omerhodo/hollypolly2/store"

	"github.com/jonboulle/clockwork"
)

// Registry owns one Synchronizer per open room. Rooms open lazily on
// first access and drop out when their document is deleted.
type Registry struct {
	store store.Store
	clock clockwork.Clock

	mu        sync.Mutex
	open      map[string]*Synchronizer
	broadcast func(roomID string, snap Snapshot)
}

func NewRegistry(st store.Store, clock clockwork.Clock) *Registry {
	return &Registry{
		store: st,
		clock: clock,
		open:  make(map[string]*Synchronizer),
	}
}

// SetBroadcast wires the fan-out used for every published snapshot,
// typically the websocket hub. Must be called before Open.
func (r *Registry) SetBroadcast(fn func(roomID string, snap Snapshot)) {
	r.mu.Lock()
	r.broadcast = fn
	r.mu.Unlock()
}

// Open returns the synchronizer for roomID, creating and starting one
// on first access. Create-if-absent room semantics live in Start.
func (r *Registry) Open(ctx context.Context, roomID, title string) (*Synchronizer, error) {
	r.mu.Lock()
	s, ok := r.open[roomID]
	if !ok {
		s = NewSynchronizer(r.store, r.clock, roomID, r.drop)
		if r.broadcast != nil {
			fn := r.broadcast
			s.Notify(func(snap Snapshot) { fn(roomID, snap) })
		}
		r.open[roomID] = s
	}
	r.mu.Unlock()

	if err := s.Start(ctx, title); err != nil {
		r.drop(roomID)
		s.Stop()
		return nil, err
	}
	return s, nil
}

// Get returns an already open synchronizer.
func (r *Registry) Get(roomID string) (*Synchronizer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.open[roomID]
	return s, ok
}

func (r *Registry) drop(roomID string) {
	r.mu.Lock()
	delete(r.open, roomID)
	r.mu.Unlock()
}

// StopAll tears down every open synchronizer; used on shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	syncs := make([]*Synchronizer, 0, len(r.open))
	for _, s := range r.open {
		syncs = append(syncs, s)
	}
	r.open = make(map[string]*Synchronizer)
	r.mu.Unlock()
	for _, s := range syncs {
		s.Stop()
	}
}
