// Package catalog is a relational catalog of databases, tables and columns
// layered on top of the transactional kvstore engine. Per spec.md §1 it is
// specified only insofar as it is a typical consumer of the core's
// keyspace/key/value/transaction API: every catalog mutation runs inside a
// scoped kvstore transaction, and every catalog record is just a
// msgpack-encoded value at some key in a dedicated keyspace.
package catalog

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/emberkv/emberkv/pkg/encode"
	"github.com/emberkv/emberkv/pkg/kvstore"
)

var (
	ErrDatabaseExists   = errors.New("catalog: database already exists")
	ErrDatabaseNotFound = errors.New("catalog: database not found")
	ErrTableExists      = errors.New("catalog: table already exists")
	ErrTableNotFound    = errors.New("catalog: table not found")
	ErrColumnNotFound   = errors.New("catalog: column not found")
)

// KeySpaceCatalog is the dedicated kvstore keyspace catalog records live in.
// Non-catalog keyspaces (application data) are defined separately by
// callers and never collide with it.
const KeySpaceCatalog = "__catalog__"

// ColumnDef describes one column of a table.
type ColumnDef struct {
	Name          string `msgpack:"name"`
	Type          string `msgpack:"type"`
	NotNull       bool   `msgpack:"not_null"`
	Unique        bool   `msgpack:"unique"`
	PrimaryKey    bool   `msgpack:"primary_key"`
	AutoIncrement bool   `msgpack:"auto_increment"`
	Default       string `msgpack:"default,omitempty"`
}

// ForeignKeyDef describes a foreign key constraint from one table to
// another.
type ForeignKeyDef struct {
	Columns           []string `msgpack:"columns"`
	ReferencedTable   string   `msgpack:"referenced_table"`
	ReferencedColumns []string `msgpack:"referenced_columns"`
	OnDelete          string   `msgpack:"on_delete"`
	OnUpdate          string   `msgpack:"on_update"`
}

// TableDef is a catalog record for one table.
type TableDef struct {
	Database    string          `msgpack:"database"`
	Name        string          `msgpack:"name"`
	Columns     []ColumnDef     `msgpack:"columns"`
	PrimaryKey  string          `msgpack:"primary_key"`
	CreatedAt   int64           `msgpack:"created_at"`
	ForeignKeys []ForeignKeyDef `msgpack:"foreign_keys,omitempty"`
}

// DatabaseDef is a catalog record for one database (a named grouping of
// tables, each of whose rows live in their own kvstore keyspace).
type DatabaseDef struct {
	Name      string `msgpack:"name"`
	CreatedAt int64  `msgpack:"created_at"`
}

// Catalog stores database/table/column metadata as records inside a
// kvstore.Store, and defines one kvstore keyspace per table for row data.
type Catalog struct {
	store *kvstore.Store[string]
}

// New returns a catalog backed by store, defining the catalog keyspace if
// it does not already exist.
func New(store *kvstore.Store[string]) *Catalog {
	store.DefineKeySpace(KeySpaceCatalog)
	return &Catalog{store: store}
}

// CreateDatabase registers a new database and returns ErrDatabaseExists if
// name is already taken.
func (c *Catalog) CreateDatabase(name string, createdAt int64) error {
	return c.store.WithTxn(func(txn kvstore.TxnId) error {
		key := databaseKey(name)
		if _, ok, err := c.store.Get(txn, KeySpaceCatalog, key); err != nil {
			return err
		} else if ok {
			return ErrDatabaseExists
		}

		val, err := msgpack.Marshal(&DatabaseDef{Name: name, CreatedAt: createdAt})
		if err != nil {
			return err
		}
		return c.store.Set(txn, KeySpaceCatalog, key, val)
	})
}

// GetDatabase looks up a database record by name.
func (c *Catalog) GetDatabase(name string) (*DatabaseDef, error) {
	var def DatabaseDef
	err := c.store.WithTxn(func(txn kvstore.TxnId) error {
		val, ok, err := c.store.Get(txn, KeySpaceCatalog, databaseKey(name))
		if err != nil {
			return err
		}
		if !ok {
			return ErrDatabaseNotFound
		}
		return msgpack.Unmarshal(val, &def)
	})
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// CreateTable registers table under database, defining a dedicated kvstore
// keyspace for its rows. Returns ErrDatabaseNotFound if the database was
// never created, or ErrTableExists if the table already exists.
func (c *Catalog) CreateTable(database string, table *TableDef) error {
	table.Database = database
	err := c.store.WithTxn(func(txn kvstore.TxnId) error {
		if _, ok, err := c.store.Get(txn, KeySpaceCatalog, databaseKey(database)); err != nil {
			return err
		} else if !ok {
			return ErrDatabaseNotFound
		}

		key := tableKey(database, table.Name)
		if _, ok, err := c.store.Get(txn, KeySpaceCatalog, key); err != nil {
			return err
		} else if ok {
			return ErrTableExists
		}

		val, err := msgpack.Marshal(table)
		if err != nil {
			return err
		}
		return c.store.Set(txn, KeySpaceCatalog, key, val)
	})
	if err != nil {
		return err
	}
	c.store.DefineKeySpace(RowKeySpace(database, table.Name))
	return nil
}

// GetTable looks up a table's catalog record.
func (c *Catalog) GetTable(database, table string) (*TableDef, error) {
	var def TableDef
	err := c.store.WithTxn(func(txn kvstore.TxnId) error {
		val, ok, err := c.store.Get(txn, KeySpaceCatalog, tableKey(database, table))
		if err != nil {
			return err
		}
		if !ok {
			return ErrTableNotFound
		}
		return msgpack.Unmarshal(val, &def)
	})
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// DropTable removes a table's catalog record. Row data left behind in the
// table's kvstore keyspace is orphaned but harmless: the core has no
// keyspace-deletion operation (spec.md scopes keyspace lifecycle to "created
// once, never destroyed").
func (c *Catalog) DropTable(database, table string) error {
	return c.store.WithTxn(func(txn kvstore.TxnId) error {
		key := tableKey(database, table)
		if _, ok, err := c.store.Get(txn, KeySpaceCatalog, key); err != nil {
			return err
		} else if !ok {
			return ErrTableNotFound
		}
		return c.store.Delete(txn, KeySpaceCatalog, key)
	})
}

// ColumnIndex returns the position of column name within a table's column
// list, or ErrColumnNotFound.
func (t *TableDef) ColumnIndex(name string) (int, error) {
	for i, col := range t.Columns {
		if col.Name == name {
			return i, nil
		}
	}
	return 0, ErrColumnNotFound
}

// RowKeySpace names the kvstore keyspace a table's rows live in.
func RowKeySpace(database, table string) string {
	return fmt.Sprintf("table:%s.%s", database, table)
}

func databaseKey(name string) []byte {
	w := encode.NewBytesWriter()
	encode.EncodeString(w, "db")
	encode.EncodeString(w, name)
	return w.Bytes()
}

func tableKey(database, table string) []byte {
	w := encode.NewBytesWriter()
	encode.EncodeString(w, "table")
	encode.EncodeString(w, database)
	encode.EncodeString(w, table)
	return w.Bytes()
}
