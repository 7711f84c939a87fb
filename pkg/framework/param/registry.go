package param

import (
	"fmt"
	"sync"
)

// Registry manages plugin parameters. Lookups take a read lock, so audio
// code should resolve the parameters it needs once and keep the pointers.
type Registry struct {
	params map[uint32]*Parameter
	order  []uint32 // Maintain order for indexed access
	mu     sync.RWMutex
}

// NewRegistry creates a new parameter registry
func NewRegistry() *Registry {
	return &Registry{
		params: make(map[uint32]*Parameter),
		order:  make([]uint32, 0),
	}
}

// Add registers parameters. A duplicate ID is an error and nothing after it
// is added.
func (r *Registry) Add(params ...*Parameter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range params {
		if _, exists := r.params[p.ID]; exists {
			return fmt.Errorf("parameter %d (%s) already registered", p.ID, p.Name)
		}
		r.params[p.ID] = p
		r.order = append(r.order, p.ID)
	}

	return nil
}

// Get retrieves a parameter by ID
func (r *Registry) Get(id uint32) *Parameter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.params[id]
}

// MustGet retrieves a parameter by ID and panics if it is not registered
func (r *Registry) MustGet(id uint32) *Parameter {
	p := r.Get(id)
	if p == nil {
		panic(fmt.Sprintf("param: id %d not registered", id))
	}
	return p
}

// GetByIndex retrieves a parameter by index
func (r *Registry) GetByIndex(index int32) *Parameter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index < 0 || index >= int32(len(r.order)) {
		return nil
	}

	id := r.order[index]
	return r.params[id]
}

// SetPlain sets a parameter's plain value by ID
func (r *Registry) SetPlain(id uint32, plain float64) error {
	p := r.Get(id)
	if p == nil {
		return fmt.Errorf("parameter %d not registered", id)
	}
	if p.Flags&IsReadOnly != 0 {
		return fmt.Errorf("parameter %d (%s) is read-only", id, p.Name)
	}
	p.SetPlainValue(plain)
	return nil
}

// Count returns the number of parameters
func (r *Registry) Count() int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return int32(len(r.order))
}

// All returns all parameters in order
func (r *Registry) All() []*Parameter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Parameter, len(r.order))
	for i, id := range r.order {
		result[i] = r.params[id]
	}

	return result
}

// ResetAll restores every parameter to its default
func (r *Registry) ResetAll() {
	for _, p := range r.All() {
		p.Reset()
	}
}
