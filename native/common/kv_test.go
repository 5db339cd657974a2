package common

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"cdpbank/storage"
)

type record struct {
	Name   string
	Amount *uint256.Int
}

func TestKVRoundTrip(t *testing.T) {
	kv := NewKV(storage.NewMemDB())
	key := Key("test", []byte("a"), []byte("b"))

	var out record
	ok, err := kv.Load(key, &out)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.Save(key, &record{Name: "x", Amount: uint256.NewInt(42)}))
	ok, err = kv.Load(key, &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", out.Name)
	require.Equal(t, uint64(42), out.Amount.Uint64())
}

func TestKeyComponentsDoNotCollide(t *testing.T) {
	require.NotEqual(t, Key("p", []byte("ab"), []byte("c")), Key("p", []byte("a"), []byte("bc")))
	require.NotEqual(t, Key("p", []byte("a")), Key("q", []byte("a")))
}
