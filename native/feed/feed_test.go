package feed

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cdpbank/native/fixed"
	"cdpbank/storage"
)

func TestPushRead(t *testing.T) {
	s := NewStore(storage.NewMemDB())
	_, err := s.Read("WETHUSD")
	require.ErrorIs(t, err, ErrNoReading)

	require.NoError(t, s.Push("WETHUSD", fixed.Ray(1), 1_000))
	r, err := s.Read("WETHUSD")
	require.NoError(t, err)
	require.True(t, r.Value.Eq(fixed.Ray(1)))
	require.True(t, r.Fresh(1_000))
	require.False(t, r.Fresh(1_001))
}
