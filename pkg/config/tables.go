package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/1qh/nexvex/pkg/crud"
)

// Table is one org-scoped table definition
type Table struct {
	Name    string
	Options crud.Options
}

type tablesFile struct {
	Tables map[string]crud.Options `yaml:"tables"`
}

// LoadTables reads table definitions from a YAML file:
//
//	tables:
//	  projects:
//	    acl: true
//	    softDelete: true
//	    rateLimit: {max: 30, window: 1m}
//	    cascade:
//	      - {foreignKey: projectId, table: tasks}
//	  tasks:
//	    aclFrom: {field: projectId, table: projects}
//
// Tables are returned sorted by name.
func LoadTables(path string) ([]Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables file: %w", err)
	}
	tables, err := ParseTables(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return tables, nil
}

// ParseTables decodes table definitions. Unknown keys are rejected.
func ParseTables(data []byte) ([]Table, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file tablesFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	tables := make([]Table, 0, len(file.Tables))
	for name, opts := range file.Tables {
		tables = append(tables, Table{Name: name, Options: opts})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables, nil
}
