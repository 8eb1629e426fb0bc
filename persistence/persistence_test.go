package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.True(t, errors.Is(err, ErrRecordNotFound))

	require.NoError(t, SaveJSON(ctx, s, "a", 1, sample{Name: "first", Count: 1}))
	require.NoError(t, SaveJSON(ctx, s, "a", 1, sample{Name: "second", Count: 2}))

	var got sample
	require.NoError(t, LoadJSON(ctx, s, "a", 1, &got))
	assert.Equal(t, sample{Name: "second", Count: 2}, got)

	doc, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, "a", doc.Key)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Load(ctx, "a")
	assert.True(t, errors.Is(err, ErrRecordNotFound))

	require.NoError(t, s.Delete(ctx, "never-stored"))
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemory_CopiesData(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	doc := &Document{Key: "k", Version: 1, Data: []byte(`{"name":"x"}`)}
	require.NoError(t, m.Save(ctx, doc))
	doc.Data[2] = 'X'

	loaded, err := m.Load(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x"}`, string(loaded.Data))
}

func TestSQLite(t *testing.T) {
	s, err := NewSQL("sqlite3", filepath.Join(t.TempDir(), "soundbeats.db"))
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestLoadJSON_NewerVersion(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, SaveJSON(ctx, m, "k", 3, sample{Name: "future"}))

	var got sample
	err := LoadJSON(ctx, m, "k", 1, &got)
	assert.True(t, errors.Is(err, ErrNewerVersion))
	assert.Empty(t, got.Name)
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), Options{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open(context.Background(), Options{Driver: "cassandra"})
	assert.Error(t, err)
}
