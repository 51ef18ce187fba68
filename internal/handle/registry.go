package handle

import (
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"rvkernel/internal/kerr"
)

// Registry is the process-wide backend-id -> singleton map (§4.8). Each
// backend is constructed at most once, the first time it's requested,
// even if multiple harts race to open it concurrently.
type Registry struct {
	mu           sync.RWMutex
	constructors map[uint64]func() Backend
	singletons   map[uint64]Backend
	group        singleflight.Group
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[uint64]func() Backend),
		singletons:   make(map[uint64]Backend),
	}
}

// RegisterConstructor installs the lazy constructor for a backend id.
func (r *Registry) RegisterConstructor(id uint64, ctor func() Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[id] = ctor
}

// Get returns the singleton backend for id, constructing it on first use.
func (r *Registry) Get(id uint64) (Backend, *kerr.Error) {
	r.mu.RLock()
	if b, ok := r.singletons[id]; ok {
		r.mu.RUnlock()
		return b, nil
	}
	ctor, ok := r.constructors[id]
	r.mu.RUnlock()
	if !ok {
		return nil, kerr.New("handle", kerr.KindNotFound, fmt.Sprintf("no backend registered for id %d", id))
	}

	v, err, _ := r.group.Do(strconv.FormatUint(id, 10), func() (any, error) {
		r.mu.RLock()
		if b, ok := r.singletons[id]; ok {
			r.mu.RUnlock()
			return b, nil
		}
		r.mu.RUnlock()

		b := ctor()
		r.mu.Lock()
		r.singletons[id] = b
		r.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, kerr.New("handle", kerr.KindFatal, err.Error())
	}
	return v.(Backend), nil
}
