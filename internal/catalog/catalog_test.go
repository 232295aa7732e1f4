package catalog

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCatalogAddGet(t *testing.T) {
	c := openTestCatalog(t)

	rec, err := c.Add(Recording{Path: "/tmp/a.cap", Name: "app", Date: "2024-01-01", FPS: 60, Pid: 42, Size: 1024})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := c.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Path, got.Path)
	assert.Equal(t, rec.FPS, got.FPS)
	assert.Equal(t, rec.Pid, got.Pid)
}

func TestCatalogGetMissing(t *testing.T) {
	c := openTestCatalog(t)
	_, err := c.Get("nope")
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}

func TestCatalogListOrder(t *testing.T) {
	c := openTestCatalog(t)
	for i, name := range []string{"one", "two", "three"} {
		_, err := c.Add(Recording{Path: name, Name: name, Size: int64(i)})
		require.NoError(t, err)
	}
	recs, err := c.List()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i := 1; i < len(recs); i++ {
		assert.False(t, recs[i].CreatedAt.Before(recs[i-1].CreatedAt))
	}
}

func TestCatalogRemove(t *testing.T) {
	c := openTestCatalog(t)
	rec, err := c.Add(Recording{Path: "x"})
	require.NoError(t, err)

	require.NoError(t, c.Remove(rec.ID))
	_, err = c.Get(rec.ID)
	assert.Equal(t, ErrNotFound, errors.Cause(err))
	assert.Equal(t, ErrNotFound, errors.Cause(c.Remove(rec.ID)))
}
