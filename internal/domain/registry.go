package domain

import (
	"fmt"
	"strings"
)

// Registry is the fixed set of jobs a process runs. It is built once at
// startup and never mutated afterwards.
type Registry struct {
	defs  []Definition
	index map[string]int
}

func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{index: make(map[string]int, len(defs))}
	for _, d := range defs {
		d = d.withDefaults()
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("%w: empty name", ErrInvalidJob)
		}
		if _, ok := r.index[d.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateJob, d.Name)
		}
		_, run := d.Runner()
		_, exec := d.Executor()
		_, poll := d.Poller()
		if !run && !exec && !poll {
			return nil, fmt.Errorf("%w: %q has no Run, Execute or Poll", ErrInvalidJob, d.Name)
		}
		r.index[d.Name] = len(r.defs)
		r.defs = append(r.defs, d)
	}
	return r, nil
}

func (r *Registry) Get(name string) (Definition, bool) {
	i, ok := r.index[name]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i], true
}

// All returns the definitions in registration order.
func (r *Registry) All() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

func (r *Registry) Len() int { return len(r.defs) }
