package negotiation

import (
	"fmt"
	"sync"

	"parley/models"
)

// Registry owns every live request of this process. Callers only ever see
// clones; changes go through Update.
type Registry struct {
	mu       sync.Mutex
	requests map[string]*models.Request
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{requests: make(map[string]*models.Request)}
}

func (r *Registry) Insert(req *models.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; ok {
		return fmt.Errorf("request %s already registered", req.ID)
	}
	r.requests[req.ID] = req.Clone()
	r.order = append(r.order, req.ID)
	return nil
}

func (r *Registry) Get(id string) (*models.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, &UnknownRequestError{ID: id}
	}
	return req.Clone(), nil
}

// Update applies fn to a working copy and commits it only when fn returns
// nil, so a rejected transition leaves the stored request untouched. fn runs
// under the registry lock and must not block.
func (r *Registry) Update(id string, fn func(req *models.Request) error) (*models.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.requests[id]
	if !ok {
		return nil, &UnknownRequestError{ID: id}
	}
	work := cur.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	r.requests[id] = work
	return work.Clone(), nil
}

// List returns every request in registration order.
func (r *Registry) List() []*models.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Request, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.requests[id].Clone())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}
