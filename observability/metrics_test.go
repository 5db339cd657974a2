package observability

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKindsLabel(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	kinds := Kinds{
		{Err: errA, Label: "first"},
		{Err: errB, Label: "second"},
	}

	require.Equal(t, "success", kinds.Label(nil))
	require.Equal(t, "first", kinds.Label(errA))
	require.Equal(t, "second", kinds.Label(fmt.Errorf("wrapped: %w", errB)))
	require.Equal(t, "first", kinds.Label(errors.Join(errB, errA)))
	require.Equal(t, "error", kinds.Label(errors.New("other")))
}

func TestNilRegistriesAreSafe(t *testing.T) {
	var bank *BankMetrics
	var api *HTTPMetrics
	require.NotPanics(t, func() {
		bank.Observe("adjust", "success", time.Millisecond)
		bank.RecordLiquidation("WETH")
		bank.RecordKeep("heal")
		bank.RecordFlow("rico", "pending")
		bank.SetCapacity("vow", "rico", 1)
		bank.SetDebt(1)
		api.Observe("/v1/adjust", 200, time.Millisecond)
		api.RecordThrottle("rate_limit")
	})
}

func TestRegistriesAreSingletons(t *testing.T) {
	require.Same(t, Bank(), Bank())
	require.Same(t, HTTP(), HTTP())
}
