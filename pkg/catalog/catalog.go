// Package catalog loads and serves the canonical contract schema.
// The catalog is loaded once at startup and is read-only process-wide state
// for the lifetime of a resolution run.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/canonform-inc/canonform-engine/pkg/models"
)

// Catalog provides read-only lookup over the canonical schema.
type Catalog struct {
	schema  models.CanonicalSchema
	byName  map[string]*models.CanonicalField
	ordered []string
}

// Load reads the canonical schema from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read canonical schema %s: %w", path, err)
	}

	var schema models.CanonicalSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse canonical schema: %w", err)
	}

	return New(schema)
}

// New builds a catalog from an in-memory schema definition.
func New(schema models.CanonicalSchema) (*Catalog, error) {
	if len(schema.Fields) == 0 {
		return nil, fmt.Errorf("canonical schema has no fields")
	}

	byName := make(map[string]*models.CanonicalField, len(schema.Fields))
	ordered := make([]string, 0, len(schema.Fields))

	for i := range schema.Fields {
		f := &schema.Fields[i]
		if f.Name == "" {
			return nil, fmt.Errorf("canonical field at index %d has no name", i)
		}
		if !models.IsValidColumnType(f.Type) {
			return nil, fmt.Errorf("canonical field %s has invalid type %q", f.Name, f.Type)
		}
		if _, dup := byName[f.Name]; dup {
			return nil, fmt.Errorf("duplicate canonical field %s", f.Name)
		}
		byName[f.Name] = f
		ordered = append(ordered, f.Name)
	}

	return &Catalog{schema: schema, byName: byName, ordered: ordered}, nil
}

// Version returns the schema version string.
func (c *Catalog) Version() string {
	return c.schema.Version
}

// FieldByName returns the field definition, or nil if unknown.
func (c *Catalog) FieldByName(name string) *models.CanonicalField {
	return c.byName[name]
}

// FieldNames returns all canonical field names in catalog order.
func (c *Catalog) FieldNames() []string {
	names := make([]string, len(c.ordered))
	copy(names, c.ordered)
	return names
}

// RequiredFieldNames returns the names of all required fields.
func (c *Catalog) RequiredFieldNames() []string {
	var names []string
	for _, name := range c.ordered {
		if c.byName[name].Required {
			names = append(names, name)
		}
	}
	return names
}

// Excerpt renders a markdown summary of the canonical schema for LLM prompts,
// including the derived-field rules.
func (c *Catalog) Excerpt() string {
	var b strings.Builder

	b.WriteString("### Canonical Contract Schema Fields\n\n")
	for _, name := range c.ordered {
		f := c.byName[name]
		b.WriteString(fmt.Sprintf("- **%s** (%s)", f.Name, f.Type))
		if f.Required {
			b.WriteString(" [REQUIRED]")
		}
		if len(f.Values) > 0 {
			b.WriteString(" - Values: " + strings.Join(f.Values, ", "))
		}
		if f.Description != "" {
			b.WriteString(" - " + f.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString(`
### Derived Field Rules
Some fields can be derived from combinations of other fields:

- **expiry_date** can be derived from:
  - effective_date + (renewal_term_months * 30) days
  - status_date + days_remaining days

- **contract_value_arr** can be derived from:
  - contract_value_ltv / (renewal_term_months / 12)

Consider these derivation rules when proposing mappings.
`)

	return b.String()
}
