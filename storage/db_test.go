package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	got, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)

	require.NoError(t, db.Apply([]Change{
		{Key: []byte("a"), Value: nil},
		{Key: []byte("b"), Value: []byte("2")},
	}))
	_, err = db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrNotFound)
	got, err = db.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)

	require.NoError(t, db.Delete([]byte("b")))
	_, err = db.Get([]byte("b"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemDB(t *testing.T) {
	exerciseDatabase(t, NewMemDB())
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestBoltDB(t *testing.T) {
	db, err := NewBoltDB(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestOverlayCommitAndDiscard(t *testing.T) {
	root := NewMemDB()
	require.NoError(t, root.Put([]byte("k"), []byte("root")))

	tx := NewOverlay(root)
	require.NoError(t, tx.Put([]byte("k"), []byte("tx")))
	require.NoError(t, tx.Put([]byte("empty"), []byte{}))
	require.NoError(t, tx.Delete([]byte("gone")))

	got, err := tx.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("tx"), got)
	got, err = tx.Get([]byte("empty"))
	require.NoError(t, err)
	require.Empty(t, got)

	// parent untouched until commit
	got, err = root.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("root"), got)

	require.NoError(t, tx.Commit())
	got, err = root.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("tx"), got)
	_, err = root.Get([]byte("empty"))
	require.NoError(t, err)

	_, err = tx.Get([]byte("k"))
	require.ErrorIs(t, err, ErrOverlayClosed)

	aborted := NewOverlay(root)
	require.NoError(t, aborted.Put([]byte("k"), []byte("aborted")))
	aborted.Discard()
	got, err = root.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("tx"), got)
}

func TestNestedOverlay(t *testing.T) {
	root := NewMemDB()
	outer := NewOverlay(root)
	inner := NewOverlay(outer)
	require.NoError(t, inner.Put([]byte("x"), []byte("1")))
	require.NoError(t, inner.Commit())
	require.Equal(t, 0, root.Len())
	require.Equal(t, 1, outer.Dirty())
	require.NoError(t, outer.Commit())
	require.Equal(t, 1, root.Len())
}
