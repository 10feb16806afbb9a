// Package registry holds named constructors for pluggable components, such as headset backends.
package registry

import (
	"encoding/json"
	"fmt"
	"sort"
)

type Component interface {
	any
}

type Provider interface {
	any
}

// ComponentCreator builds a component from its raw config section.
type ComponentCreator[C Component, P Provider] func(config json.RawMessage, provider P) (C, error)

type Registry[C Component, P Provider] struct {
	components map[string]ComponentCreator[C, P]
	provider   P
}

func NewRegistry[C Component, P Provider](provider P) *Registry[C, P] {
	return &Registry[C, P]{
		provider:   provider,
		components: make(map[string]ComponentCreator[C, P]),
	}
}

func (r *Registry[C, P]) Register(id string, creator ComponentCreator[C, P]) {
	if _, ok := r.components[id]; ok {
		panic("component already registered: " + id)
	}
	r.components[id] = creator
}

func (r *Registry[C, P]) Has(id string) bool {
	_, ok := r.components[id]
	return ok
}

// IDs lists registered component ids in sorted order.
func (r *Registry[C, P]) IDs() []string {
	ids := make([]string, 0, len(r.components))
	for id := range r.components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry[C, P]) New(id string, config json.RawMessage) (C, error) {
	creator, ok := r.components[id]
	if !ok {
		var component C
		return component, fmt.Errorf("component not found: %s", id)
	}
	c, err := creator(config, r.provider)
	if err != nil {
		var component C
		return component, fmt.Errorf("failed to create %s: %w", id, err)
	}
	return c, nil
}
