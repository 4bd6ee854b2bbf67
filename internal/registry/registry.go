// SPDX-License-Identifier: MPL-2.0

// Package registry maps command names to the constructors that build them.
// Commands register themselves from init; the root command asks the
// registry for the finished set.
package registry

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/spf13/cobra"
)

type (
	// Factory builds one command from the shared dependencies D.
	Factory[D any] func(deps D) *cobra.Command

	// Registry is a static name-to-factory table. The zero value is not
	// usable; create one with New.
	Registry[D any] struct {
		mu        sync.RWMutex
		factories map[string]Factory[D]
	}
)

// New creates an empty Registry.
func New[D any]() *Registry[D] {
	return &Registry[D]{factories: make(map[string]Factory[D])}
}

// Register adds a factory under name. Registering an empty name, a nil
// factory or the same name twice is a programming error and panics.
func (r *Registry[D]) Register(name string, f Factory[D]) {
	if name == "" || f == nil {
		panic("registry: empty name or nil factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		panic(fmt.Sprintf("registry: command %q registered twice", name))
	}
	r.factories[name] = f
}

// Names returns the registered names in sorted order.
func (r *Registry[D]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Lookup returns the factory registered under name.
func (r *Registry[D]) Lookup(name string) (Factory[D], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Build instantiates every registered command, in name order.
func (r *Registry[D]) Build(deps D) []*cobra.Command {
	names := r.Names()
	cmds := make([]*cobra.Command, 0, len(names))
	for _, name := range names {
		f, _ := r.Lookup(name)
		cmds = append(cmds, f(deps))
	}
	return cmds
}
