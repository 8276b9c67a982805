package breaker

import (
	"sync"
)

// Registry hands out one breaker per upstream name. Breakers never share
// state, so one upstream tripping leaves the others untouched.
type Registry struct {
	settings Settings
	breakers sync.Map // name -> *Breaker
}

func NewRegistry(settings Settings) *Registry {
	return &Registry{settings: settings}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	if b, ok := r.breakers.Load(name); ok {
		return b.(*Breaker)
	}
	b, _ := r.breakers.LoadOrStore(name, New(name, r.settings))
	return b.(*Breaker)
}

func (r *Registry) Snapshot() map[string]Counts {
	out := make(map[string]Counts)
	r.breakers.Range(func(key, value any) bool {
		out[key.(string)] = value.(*Breaker).Counts()
		return true
	})
	return out
}
