// Package schema tracks the tables and relationships registered during one
// orchestration run and derives the platform identifiers (logical names,
// schema names, navigation properties) that record creation needs. Lookup
// wiring on the platform is stringly-typed; every navigation property handed
// out here provably matches a registered relationship, never a guessed
// string.
package schema

import (
	"fmt"
	"sync"
)

type TableDefinition struct {
	DisplayName string `json:"display_name"`
	LogicalName string `json:"logical_name"`
	SchemaName  string `json:"schema_name"`
}

// EntitySetName is the collection name used in OData bind targets.
func (t TableDefinition) EntitySetName() string {
	return t.LogicalName + "s"
}

type RelationshipDefinition struct {
	ParentTable        string `json:"parent_table"`
	ChildTable         string `json:"child_table"`
	NavigationProperty string `json:"navigation_property"`
	SchemaName         string `json:"schema_name"`
	LookupSchemaName   string `json:"lookup_schema_name"`
}

// UnregisteredTableError names the table a caller referenced before
// registering it.
type UnregisteredTableError struct {
	LogicalName string
}

func (e UnregisteredTableError) Error() string {
	return fmt.Sprintf("table %s is not registered; call RegisterTable with its display name first", e.LogicalName)
}

// Registry is scoped to one orchestration run. Registration is idempotent
// and definitions never mutate once registered.
type Registry struct {
	prefix string

	mu            sync.Mutex
	tables        map[string]TableDefinition
	relationships map[string]RelationshipDefinition
}

func NewRegistry(publisherPrefix string) *Registry {
	return &Registry{
		prefix:        publisherPrefix,
		tables:        map[string]TableDefinition{},
		relationships: map[string]RelationshipDefinition{},
	}
}

// RegisterTable derives and stores the definition for a display name.
// Registering the same display name again returns the existing definition.
func (r *Registry) RegisterTable(displayName string) TableDefinition {
	logical := LogicalName(r.prefix, displayName)
	r.mu.Lock()
	defer r.mu.Unlock()
	if def, ok := r.tables[logical]; ok {
		return def
	}
	def := TableDefinition{
		DisplayName: displayName,
		LogicalName: logical,
		SchemaName:  SchemaName(r.prefix, displayName),
	}
	r.tables[logical] = def
	return def
}

// Table looks up a registered table by logical name.
func (r *Registry) Table(logicalName string) (TableDefinition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.tables[logicalName]
	return def, ok
}

// Tables returns every registered definition, in no particular order.
func (r *Registry) Tables() []TableDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TableDefinition, 0, len(r.tables))
	for _, def := range r.tables {
		out = append(out, def)
	}
	return out
}

// CreateRelationship registers a one-to-many relationship between two
// previously registered tables. The lookup schema name defaults to the
// parent's schema name unless lookupDisplayName supplies an alternate.
func (r *Registry) CreateRelationship(parentLogical, childLogical, lookupDisplayName string) (RelationshipDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	parent, ok := r.tables[parentLogical]
	if !ok {
		return RelationshipDefinition{}, UnregisteredTableError{LogicalName: parentLogical}
	}
	child, ok := r.tables[childLogical]
	if !ok {
		return RelationshipDefinition{}, UnregisteredTableError{LogicalName: childLogical}
	}
	lookupSchema := parent.SchemaName
	if lookupDisplayName != "" {
		lookupSchema = SchemaName(r.prefix, lookupDisplayName)
	}
	def := RelationshipDefinition{
		ParentTable:        parentLogical,
		ChildTable:         childLogical,
		NavigationProperty: lookupSchema + "@odata.bind",
		SchemaName:         parent.SchemaName + "_" + child.SchemaName,
		LookupSchemaName:   lookupSchema,
	}
	r.relationships[relationshipKey(childLogical, parentLogical)] = def
	return def, nil
}

// NavigationProperty returns the bind property for a child-to-parent lookup.
// It fails when no relationship between the pair has been created.
func (r *Registry) NavigationProperty(childLogical, parentLogical string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.relationships[relationshipKey(childLogical, parentLogical)]
	if !ok {
		return "", fmt.Errorf("no relationship registered between child %s and parent %s", childLogical, parentLogical)
	}
	return def.NavigationProperty, nil
}

// BuildRecordWithLookup returns a copy of record with the parent lookup
// bound through the registered navigation property. The input map is not
// mutated.
func (r *Registry) BuildRecordWithLookup(record map[string]any, childLogical, parentLogical, parentID string) (map[string]any, error) {
	nav, err := r.NavigationProperty(childLogical, parentLogical)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	parent, ok := r.tables[parentLogical]
	r.mu.Unlock()
	if !ok {
		return nil, UnregisteredTableError{LogicalName: parentLogical}
	}
	out := make(map[string]any, len(record)+1)
	for k, v := range record {
		out[k] = v
	}
	out[nav] = fmt.Sprintf("/%s(%s)", parent.EntitySetName(), parentID)
	return out, nil
}

func relationshipKey(childLogical, parentLogical string) string {
	return childLogical + "|" + parentLogical
}
