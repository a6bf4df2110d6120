// Package catalog produces the candidate variants for a workflow.
package catalog

import "github.com/rendis/adaptflow/pkg/schema"

// Catalog is a pure generator over a fixed archetype table.
type Catalog struct {
	archetypes []schema.Variant
}

// New returns a catalog over the given archetypes, kept in table order.
func New(archetypes []schema.Variant) *Catalog {
	return &Catalog{archetypes: schema.CloneVariants(archetypes)}
}

// Generate returns the candidate variants for intent. Every archetype is a
// candidate regardless of goal; goal-specific preference is applied later by
// the selector's alignment rules. The result is a fresh copy.
func (c *Catalog) Generate(intent schema.IntentRecord) []schema.Variant {
	return schema.CloneVariants(c.archetypes)
}

// Len reports the number of archetypes.
func (c *Catalog) Len() int { return len(c.archetypes) }
