package archive

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWriteReadRoundTripPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.archive")

	header := Header{CreatedAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), Options: map[string]any{"from_id": float64(1)}}
	tables := []Table{
		{
			Name:    "audit_records",
			Columns: []string{"id", "entity_type"},
			Rows: [][]any{
				{float64(1), "user"},
				{float64(2), "group"},
			},
		},
	}

	assert.NoError(t, Write(path, header, tables, false))

	gotHeader, gotTables, err := Read(path, false)
	assert.NoError(t, err)
	assert.Equal(t, 1, gotHeader.Version)
	assert.Equal(t, []string{"audit_records"}, gotHeader.Tables)
	assert.Len(t, gotTables, 1)
	assert.Equal(t, "audit_records", gotTables[0].Name)
	assert.Equal(t, []string{"id", "entity_type"}, gotTables[0].Columns)
	assert.Len(t, gotTables[0].Rows, 2)
}

func TestWriteReadRoundTripGzipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.archive.gz")

	header := Header{CreatedAt: time.Now()}
	tables := []Table{{Name: "resources", Columns: []string{"id"}, Rows: [][]any{{float64(1)}}}}

	assert.NoError(t, Write(path, header, tables, true))

	_, gotTables, err := Read(path, true)
	assert.NoError(t, err)
	assert.Len(t, gotTables, 1)
	assert.Equal(t, "resources", gotTables[0].Name)
}

func TestWriteReadRoundTripMultipleTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "multi.archive")

	tables := []Table{
		{Name: "principals", Columns: []string{"id"}, Rows: [][]any{{float64(1)}}},
		{Name: "permissions", Columns: []string{"id"}, Rows: [][]any{{float64(10)}, {float64(11)}}},
	}

	assert.NoError(t, Write(path, Header{}, tables, false))

	_, gotTables, err := Read(path, false)
	assert.NoError(t, err)
	assert.Len(t, gotTables, 2)
	assert.Equal(t, "principals", gotTables[0].Name)
	assert.Equal(t, "permissions", gotTables[1].Name)
	assert.Len(t, gotTables[1].Rows, 2)
}
