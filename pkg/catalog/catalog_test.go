package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberkv/emberkv/pkg/kvstore"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	return New(kvstore.NewStore[string]())
}

func TestCreateAndGetDatabase(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.CreateDatabase("app", 1000))

	db, err := c.GetDatabase("app")
	require.NoError(t, err)
	assert.Equal(t, "app", db.Name)
	assert.Equal(t, int64(1000), db.CreatedAt)
}

func TestCreateDatabaseTwiceFails(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.CreateDatabase("app", 1000))

	err := c.CreateDatabase("app", 2000)
	assert.ErrorIs(t, err, ErrDatabaseExists)
}

func TestGetMissingDatabase(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.GetDatabase("missing")
	assert.ErrorIs(t, err, ErrDatabaseNotFound)
}

func TestCreateTableRequiresDatabase(t *testing.T) {
	c := newTestCatalog(t)
	err := c.CreateTable("app", &TableDef{Name: "users"})
	assert.ErrorIs(t, err, ErrDatabaseNotFound)
}

func TestCreateAndGetTable(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.CreateDatabase("app", 1000))

	table := &TableDef{
		Name: "users",
		Columns: []ColumnDef{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "email", Type: "TEXT", NotNull: true, Unique: true},
		},
		PrimaryKey: "id",
	}
	require.NoError(t, c.CreateTable("app", table))

	got, err := c.GetTable("app", "users")
	require.NoError(t, err)
	assert.Equal(t, "app", got.Database)
	assert.Len(t, got.Columns, 2)

	idx, err := got.ColumnIndex("email")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = got.ColumnIndex("missing")
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestCreateTableTwiceFails(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.CreateDatabase("app", 1000))
	require.NoError(t, c.CreateTable("app", &TableDef{Name: "users"}))

	err := c.CreateTable("app", &TableDef{Name: "users"})
	assert.ErrorIs(t, err, ErrTableExists)
}

func TestDropTable(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.CreateDatabase("app", 1000))
	require.NoError(t, c.CreateTable("app", &TableDef{Name: "users"}))

	require.NoError(t, c.DropTable("app", "users"))

	_, err := c.GetTable("app", "users")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestDropMissingTable(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.CreateDatabase("app", 1000))

	err := c.DropTable("app", "users")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestRowKeySpaceIsDefinedAfterCreateTable(t *testing.T) {
	store := kvstore.NewStore[string]()
	c := New(store)
	require.NoError(t, c.CreateDatabase("app", 1000))
	require.NoError(t, c.CreateTable("app", &TableDef{Name: "users"}))

	txn := store.BeginTxn()
	_, _, err := store.Get(txn, RowKeySpace("app", "users"), []byte("row-1"))
	require.NoError(t, err, "the table's row keyspace must already be defined")
	require.NoError(t, store.CommitTxn(txn))
}
