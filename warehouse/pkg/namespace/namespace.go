// Package namespace models the two-level catalog/schema hierarchy that tables and
// functions are registered under, and its mapping onto ClickHouse databases.
package namespace

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultCatalog = "agents_lab"
	DefaultSchema  = "product"

	// databaseSeparator joins catalog and schema into a ClickHouse database name.
	databaseSeparator = "__"
)

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Namespace is a catalog/schema pair.
type Namespace struct {
	Catalog string
	Schema  string
}

// Default returns the agents_lab.product namespace.
func Default() Namespace {
	return Namespace{Catalog: DefaultCatalog, Schema: DefaultSchema}
}

func (n Namespace) Validate() error {
	if n.Catalog == "" {
		return errors.New("catalog is required")
	}
	if n.Schema == "" {
		return errors.New("schema is required")
	}
	if err := ValidateIdentifier(n.Catalog); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	if err := ValidateIdentifier(n.Schema); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	if strings.Contains(n.Catalog, databaseSeparator) || strings.Contains(n.Schema, databaseSeparator) {
		return fmt.Errorf("catalog and schema must not contain %q", databaseSeparator)
	}
	// An underscore next to the separator would make the database name ambiguous.
	if strings.HasSuffix(n.Catalog, "_") || strings.HasPrefix(n.Schema, "_") {
		return errors.New("catalog must not end and schema must not start with an underscore")
	}
	return nil
}

// Database returns the ClickHouse database backing the namespace.
func (n Namespace) Database() string {
	return n.Catalog + databaseSeparator + n.Schema
}

// FullName returns the three-part name of an object in the namespace.
func (n Namespace) FullName(name string) string {
	return n.Catalog + "." + n.Schema + "." + name
}

// Table returns the database-qualified ClickHouse name of an object in the namespace.
func (n Namespace) Table(name string) string {
	return n.Database() + "." + name
}

func (n Namespace) String() string {
	return n.Catalog + "." + n.Schema
}

// ParseFullName splits "catalog.schema.name" into its namespace and object name.
func ParseFullName(fullName string) (Namespace, string, error) {
	parts := strings.Split(fullName, ".")
	if len(parts) != 3 {
		return Namespace{}, "", fmt.Errorf("invalid full name %q: expected catalog.schema.name", fullName)
	}
	ns := Namespace{Catalog: parts[0], Schema: parts[1]}
	if err := ns.Validate(); err != nil {
		return Namespace{}, "", fmt.Errorf("invalid full name %q: %w", fullName, err)
	}
	if err := ValidateIdentifier(parts[2]); err != nil {
		return Namespace{}, "", fmt.Errorf("invalid full name %q: %w", fullName, err)
	}
	return ns, parts[2], nil
}

// ValidateIdentifier checks that s can be used unquoted as a database, table or
// function name.
func ValidateIdentifier(s string) error {
	if !identifierRegex.MatchString(s) {
		return fmt.Errorf("invalid identifier %q", s)
	}
	return nil
}
