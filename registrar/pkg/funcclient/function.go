// Package funcclient registers Go functions under catalog.schema.name and
// executes them by name. Registration records are persisted by a Store so that
// other processes can discover them; implementations are linked in-process.
package funcclient

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const LanguageGo = "GO"

var (
	ErrFunctionExists   = errors.New("function already exists")
	ErrFunctionNotFound = errors.New("function not found")
)

// Param is a named, typed input of a function. Types use the warehouse's SQL
// type names (STRING, INT, DATE).
type Param struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Comment string `json:"comment,omitempty"`
}

// GoFunction is a Go implementation together with the metadata it is
// registered with. Call receives one value per declared param.
type GoFunction struct {
	Name       string
	Comment    string
	Params     []Param
	ReturnType string
	Call       func(ctx context.Context, args map[string]string) (string, error)
}

func (f *GoFunction) validate() error {
	if f.Name == "" {
		return errors.New("function name is required")
	}
	if f.Call == nil {
		return fmt.Errorf("function %s has no implementation", f.Name)
	}
	if f.ReturnType == "" {
		f.ReturnType = "STRING"
	}
	return nil
}

// FunctionInfo is the registration record of a function.
type FunctionInfo struct {
	FullName         string
	CatalogName      string
	SchemaName       string
	Name             string
	Comment          string
	InputParams      []Param
	DataType         string
	FullDataType     string
	ExternalLanguage string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Store persists registration records.
type Store interface {
	// Get returns ErrFunctionNotFound when fullName has no record.
	Get(ctx context.Context, fullName string) (*FunctionInfo, error)
	// Put creates or replaces the record for info.FullName.
	Put(ctx context.Context, info *FunctionInfo) error
	// List returns the records of a catalog/schema, sorted by name.
	List(ctx context.Context, catalog, schema string) ([]FunctionInfo, error)
}
