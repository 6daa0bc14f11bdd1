package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk catalog layout:
//
//	tables:
//	  - name: Samples
//	    schema: core
//	    container: Container
//	    columns:
//	      - {name: RowId, type: INTEGER, key: true}
type catalogFile struct {
	Tables []*TableDef `yaml:"tables"`
}

// ParseYAML decodes a catalog document.
func ParseYAML(data []byte) ([]*TableDef, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return f.Tables, nil
}

// LoadYAML replaces the catalog with the tables of a YAML document.
func (c *Cache) LoadYAML(data []byte) error {
	tables, err := ParseYAML(data)
	if err != nil {
		return err
	}
	return c.Replace(tables)
}

// LoadFile reads a YAML catalog from disk into a new cache.
func LoadFile(path string) (*Cache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c := NewCache()
	if err := c.LoadYAML(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
