package optimizer

import (
	"sync"

	xerrors "queryflow/internal/errors"
)

// SecondaryIndex describes one GSI on a table.
type SecondaryIndex struct {
	IndexName    string `json:"indexName"`
	PartitionKey string `json:"partitionKey"`
	SortKey      string `json:"sortKey,omitempty"`
}

// TableSchema is the registered shape of one table: its attribute names and
// available secondary indexes. Populated by an external collaborator.
type TableSchema struct {
	TableName        string           `json:"tableName"`
	PartitionKey     string           `json:"partitionKey"`
	SortKey          string           `json:"sortKey,omitempty"`
	Attributes       []string         `json:"attributes,omitempty"`
	SecondaryIndexes []SecondaryIndex `json:"secondaryIndexes,omitempty"`
}

// catalog is the concurrent schema registry the optimizer consults.
type catalog struct {
	mu      sync.RWMutex
	schemas map[string]TableSchema
}

func newCatalog() *catalog {
	return &catalog{schemas: make(map[string]TableSchema)}
}

func (c *catalog) register(schema TableSchema) error {
	if schema.TableName == "" {
		return xerrors.Validation("SCHEMA_TABLE_REQUIRED", "table schema requires a table name").Build()
	}
	c.mu.Lock()
	c.schemas[schema.TableName] = schema
	c.mu.Unlock()
	return nil
}

func (c *catalog) lookup(table string) (TableSchema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[table]
	return s, ok
}
