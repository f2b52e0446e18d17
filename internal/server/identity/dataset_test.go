package identity

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDataset(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		p := filepath.Join(dir, "ok.json")
		require.NoError(t, os.WriteFile(p, []byte(`{"123412341234":{"name":"Asha Rao","dob":"1985-04-12"}}`), 0o600))

		ds, err := LoadDataset(p)
		require.NoError(t, err)
		assert.Equal(t, 1, ds.Len())

		r, ok := ds.Lookup("123412341234")
		require.True(t, ok)
		assert.Equal(t, "Asha Rao", r.Name)
		require.NotNil(t, r.BirthDate())
		assert.True(t, r.BirthDate().Equal(time.Date(1985, 4, 12, 0, 0, 0, 0, time.UTC)))

		_, ok = ds.Lookup("000000000000")
		assert.False(t, ok)
	})

	t.Run("missing file is empty", func(t *testing.T) {
		ds, err := LoadDataset(filepath.Join(dir, "absent.json"))
		require.NoError(t, err)
		assert.Equal(t, 0, ds.Len())
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		p := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(p, []byte(`[1,2`), 0o600))

		_, err := LoadDataset(p)
		assert.Error(t, err)
	})
}

func TestNewDataset_IsACopy(t *testing.T) {
	src := map[string]Record{"1": {Name: "a"}}
	ds := NewDataset(src)
	src["1"] = Record{Name: "changed"}

	r, ok := ds.Lookup("1")
	require.True(t, ok)
	assert.Equal(t, "a", r.Name)
}

func TestNilDataset(t *testing.T) {
	var ds *Dataset
	_, ok := ds.Lookup("x")
	assert.False(t, ok)
	assert.Equal(t, 0, ds.Len())
}

func TestRecord_BirthDate(t *testing.T) {
	assert.Nil(t, Record{}.BirthDate())
	assert.Nil(t, Record{DOB: "12/04/1985"}.BirthDate())
}
