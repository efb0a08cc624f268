package metadata

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/DatFlow/internal/cache"
	"github.com/koustreak/DatFlow/internal/database"
	"github.com/koustreak/DatFlow/internal/localstore"
)

// fakeExecutor answers catalog statements from canned results.
type fakeExecutor struct {
	calls   atomic.Int32
	fail    bool
	results map[string]*database.Result
}

func (f *fakeExecutor) Dialect() database.Dialect { return database.DialectSQLServer }

func (f *fakeExecutor) Execute(ctx context.Context, q database.Query) (*database.Result, error) {
	f.calls.Add(1)
	if f.fail {
		return nil, database.NewError(database.ErrKindConnectionFailed, "backend down")
	}
	for needle, res := range f.results {
		if strings.Contains(q.Text, needle) {
			return res, nil
		}
	}
	return &database.Result{Columns: []string{}, Rows: []database.Record{}, Complete: true}, nil
}

func catalogResult() *database.Result {
	return &database.Result{
		Columns: []string{"full_name", "table_name", "description"},
		Rows: []database.Record{
			{"full_name": "dbo.orders", "table_name": "orders", "description": "order headers"},
			{"full_name": "dbo.customers", "table_name": "customers", "description": nil},
		},
		RowCount: 2,
		Complete: true,
	}
}

func schemaResult() *database.Result {
	return &database.Result{
		Columns: []string{"column_name", "data_type", "is_nullable", "column_default"},
		Rows: []database.Record{
			{"column_name": "id", "data_type": "int", "is_nullable": "NO", "column_default": nil},
			{"column_name": "status", "data_type": "varchar", "is_nullable": "YES", "column_default": "'new'"},
		},
		RowCount: 2,
		Complete: true,
	}
}

func newTestService(t *testing.T, exec Executor, caches *cache.Tiered) (*Service, *localstore.Store) {
	t.Helper()
	store, err := localstore.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(exec, store, caches, Config{}), store
}

func TestService_ListTables_Merged(t *testing.T) {
	exec := &fakeExecutor{results: map[string]*database.Result{"sys.tables": catalogResult()}}
	svc, store := newTestService(t, exec, nil)

	require.NoError(t, store.Materialize(context.Background(), "uploaded_cities",
		[]string{"name"}, [][]any{{"Lyon"}}, localstore.UploadMeta{OriginalFilename: "cities.csv"}))

	tables, err := svc.ListTables(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, tables, 3)

	bySource := map[string]int{}
	for _, tab := range tables {
		bySource[tab.Source]++
	}
	assert.Equal(t, 2, bySource[SourceBackend])
	assert.Equal(t, 1, bySource[SourceUploaded])
}

func TestService_ListTables_LocalOnly(t *testing.T) {
	exec := &fakeExecutor{results: map[string]*database.Result{"sys.tables": catalogResult()}}
	svc, store := newTestService(t, exec, nil)

	require.NoError(t, store.Materialize(context.Background(), "uploaded_cities",
		[]string{"name"}, [][]any{{"Lyon"}}, localstore.UploadMeta{}))

	tables, err := svc.ListTables(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, SourceUploaded, tables[0].Source)
	assert.Equal(t, int32(0), exec.calls.Load())
}

func TestService_ListTables_BackendDownDegrades(t *testing.T) {
	exec := &fakeExecutor{fail: true}
	svc, store := newTestService(t, exec, nil)

	require.NoError(t, store.Materialize(context.Background(), "uploaded_cities",
		[]string{"name"}, [][]any{{"Lyon"}}, localstore.UploadMeta{}))

	tables, err := svc.ListTables(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "uploaded_cities", tables[0].Name)
}

func TestService_ListTables_Cached(t *testing.T) {
	exec := &fakeExecutor{results: map[string]*database.Result{"sys.tables": catalogResult()}}
	svc, _ := newTestService(t, exec, cache.NewTiered(true))

	_, err := svc.ListTables(context.Background(), true)
	require.NoError(t, err)
	_, err = svc.ListTables(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, int32(1), exec.calls.Load())
}

func TestService_GetSchema_Backend(t *testing.T) {
	exec := &fakeExecutor{results: map[string]*database.Result{"information_schema.columns": schemaResult()}}
	svc, _ := newTestService(t, exec, nil)

	cols, err := svc.GetSchema(context.Background(), "orders")
	require.NoError(t, err)
	require.Len(t, cols, 2)

	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, "int", cols[0].Type)
	assert.False(t, cols[0].Nullable)

	assert.Equal(t, "status", cols[1].Name)
	assert.True(t, cols[1].Nullable)
	assert.Equal(t, "'new'", cols[1].Default)
}

func TestService_GetSchema_Uploaded(t *testing.T) {
	exec := &fakeExecutor{}
	svc, store := newTestService(t, exec, nil)

	require.NoError(t, store.Materialize(context.Background(), "uploaded_cities",
		[]string{"name", "population"}, [][]any{{"Lyon", 522000}}, localstore.UploadMeta{}))

	cols, err := svc.GetSchema(context.Background(), "uploaded_cities")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "name", cols[0].Name)

	// Resolved locally, never through the backend.
	assert.Equal(t, int32(0), exec.calls.Load())
}

func TestService_GetSchema_NotFound(t *testing.T) {
	exec := &fakeExecutor{}
	svc, _ := newTestService(t, exec, nil)

	_, err := svc.GetSchema(context.Background(), "missing_table")
	require.Error(t, err)
	assert.True(t, database.IsNotFound(err))
}

func TestService_GetSchema_Cached(t *testing.T) {
	exec := &fakeExecutor{results: map[string]*database.Result{"information_schema.columns": schemaResult()}}
	svc, _ := newTestService(t, exec, cache.NewTiered(true))

	_, err := svc.GetSchema(context.Background(), "orders")
	require.NoError(t, err)
	_, err = svc.GetSchema(context.Background(), "Orders")
	require.NoError(t, err)

	// Case-insensitive key: one backend fetch serves both.
	assert.Equal(t, int32(1), exec.calls.Load())
}

func TestService_PreviewTable_Uploaded(t *testing.T) {
	exec := &fakeExecutor{}
	svc, store := newTestService(t, exec, nil)

	rows := [][]any{{"Kolkata"}, {"Lyon"}, {"Osaka"}, {"Pune"}, {"Chennai"}, {"Nagoya"}, {"Kyoto"}}
	require.NoError(t, store.Materialize(context.Background(), "uploaded_cities",
		[]string{"name"}, rows, localstore.UploadMeta{}))

	preview, err := svc.PreviewTable(context.Background(), "uploaded_cities", 5)
	require.NoError(t, err)

	assert.Len(t, preview.Rows, 5)
	assert.Equal(t, 7, preview.TotalRows)
}

func TestService_UploadLifecycleInvalidatesCatalog(t *testing.T) {
	exec := &fakeExecutor{}
	caches := cache.NewTiered(true)
	svc, _ := newTestService(t, exec, caches)

	// Warm the catalog cache with the empty state.
	tables, err := svc.ListTables(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, tables)

	err = svc.MaterializeUpload(context.Background(), "uploaded_cities",
		[]string{"name"}, [][]any{{"Lyon"}}, localstore.UploadMeta{})
	require.NoError(t, err)

	tables, err = svc.ListTables(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, tables, 1)

	require.NoError(t, svc.DeleteUpload(context.Background(), "uploaded_cities"))

	tables, err = svc.ListTables(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestSplitQualified(t *testing.T) {
	tests := []struct {
		in         string
		wantSchema string
		wantTable  string
	}{
		{"orders", "dbo", "orders"},
		{"sales.orders", "sales", "orders"},
		{"db.sales.orders", "db.sales", "orders"},
	}

	for _, tt := range tests {
		schema, table := splitQualified(tt.in, "dbo")
		assert.Equal(t, tt.wantSchema, schema)
		assert.Equal(t, tt.wantTable, table)
	}
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "'orders'", quoteLiteral("orders"))
	assert.Equal(t, "'o''brien'", quoteLiteral("o'brien"))
}
