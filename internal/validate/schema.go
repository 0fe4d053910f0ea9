// Package validate classifies decoded samples against the registered
// metric schemas. Every sample resolves to exactly one of accepted,
// rejected or quarantined; nothing is silently dropped.
package validate

import (
	"sync"

	"github.com/nagendra0018/dcn/internal/config"
	"github.com/nagendra0018/dcn/internal/types"
)

// Schema describes one registered metric.
type Schema struct {
	Name        string
	Type        types.ValueType
	Unit        string
	Description string

	// AllowedLabels is the permitted label key set. Empty allows any.
	AllowedLabels map[string]bool

	// Min and Max bound accepted values. Nil means unbounded.
	Min *float64
	Max *float64
}

// SchemaRegistry holds the registered metric schemas. Registration after
// startup supports reclassifying quarantined samples for late-registered
// metrics.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewSchemaRegistry builds a registry from configuration.
func NewSchemaRegistry(configs []config.SchemaConfig) *SchemaRegistry {
	r := &SchemaRegistry{schemas: make(map[string]*Schema, len(configs))}
	for _, sc := range configs {
		r.RegisterConfig(sc)
	}
	return r
}

// RegisterConfig registers (or replaces) a schema from its config form.
func (r *SchemaRegistry) RegisterConfig(sc config.SchemaConfig) {
	vt, _ := types.ParseValueType(sc.Type)

	var allowed map[string]bool
	if len(sc.Labels) > 0 {
		allowed = make(map[string]bool, len(sc.Labels))
		for _, k := range sc.Labels {
			allowed[k] = true
		}
	}

	r.Register(&Schema{
		Name:          sc.Name,
		Type:          vt,
		Unit:          sc.Unit,
		Description:   sc.Description,
		AllowedLabels: allowed,
		Min:           sc.Min,
		Max:           sc.Max,
	})
}

// Register registers (or replaces) a schema.
func (r *SchemaRegistry) Register(s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Name] = s
}

// Lookup returns the schema for a metric name.
func (r *SchemaRegistry) Lookup(metric string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[metric]
	return s, ok
}

// List returns all registered schemas.
func (r *SchemaRegistry) List() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered schemas.
func (r *SchemaRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schemas)
}
