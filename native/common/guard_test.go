package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuard(t *testing.T) {
	require.NoError(t, Guard(nil, "vat"))

	p := NewPauses("Vow")
	require.ErrorIs(t, Guard(p, "vow"), ErrModulePaused)
	require.NoError(t, Guard(p, "vat"))

	p.Set("vow", false)
	require.NoError(t, Guard(p, "vow"))
}
