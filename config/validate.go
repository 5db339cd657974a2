package config

import (
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"cdpbank/native/fixed"
)

// ValidateConsumer accepts the reserved consumer names and hex addresses.
func ValidateConsumer(consumer string) error {
	switch strings.TrimSpace(consumer) {
	case ConsumerSettlement, ConsumerIssuer:
		return nil
	}
	if !ethcommon.IsHexAddress(consumer) {
		return fmt.Errorf("ramp consumer %q is neither reserved nor a hex address", consumer)
	}
	return nil
}

// Validate checks the structural invariants of a market and that every
// decimal field parses.
func Validate(m *Market) error {
	if m.Stable == "" || m.Risk == "" {
		return fmt.Errorf("market: stable and risk assets are required")
	}
	if m.Stable == m.Risk {
		return fmt.Errorf("market: stable and risk assets must differ")
	}
	seen := make(map[string]struct{}, len(m.Ilks))
	for _, ilk := range m.Ilks {
		if ilk.ID == "" {
			return fmt.Errorf("ilks: id required")
		}
		if _, dup := seen[ilk.ID]; dup {
			return fmt.Errorf("ilks: duplicate id %q", ilk.ID)
		}
		seen[ilk.ID] = struct{}{}
		if len(ilk.Assets) == 0 {
			return fmt.Errorf("ilks[%s]: at least one asset required", ilk.ID)
		}
		for _, asset := range ilk.Assets {
			if asset == "" {
				return fmt.Errorf("ilks[%s]: empty asset", ilk.ID)
			}
		}
		if strings.TrimSpace(ilk.Tag) == "" && strings.TrimSpace(ilk.Mark) == "" {
			return fmt.Errorf("ilks[%s]: tag or mark required", ilk.ID)
		}
		if strings.TrimSpace(ilk.Tag) != "" && strings.TrimSpace(ilk.Mark) != "" {
			return fmt.Errorf("ilks[%s]: mark is fed for tagged classes", ilk.ID)
		}
	}
	rampKeys := make(map[string]struct{}, len(m.Ramps))
	for _, ramp := range m.Ramps {
		if err := ValidateConsumer(ramp.Consumer); err != nil {
			return fmt.Errorf("ramps: %w", err)
		}
		if ramp.Asset == "" {
			return fmt.Errorf("ramps[%s]: asset required", ramp.Consumer)
		}
		key := strings.ToLower(ramp.Consumer) + "/" + ramp.Asset
		if ramp.Del != 0 {
			return fmt.Errorf("ramps[%s]: del is not supported", key)
		}
		if _, dup := rampKeys[key]; dup {
			return fmt.Errorf("ramps: duplicate ramp %s", key)
		}
		rampKeys[key] = struct{}{}
	}
	for _, pool := range m.Pools {
		if pool.AssetA == "" || pool.AssetB == "" || pool.AssetA == pool.AssetB {
			return fmt.Errorf("pools: invalid pair %s/%s", pool.AssetA, pool.AssetB)
		}
		if pool.FeeBps >= 10_000 {
			return fmt.Errorf("pools[%s/%s]: fee_bps must be below 10000", pool.AssetA, pool.AssetB)
		}
	}

	params, err := m.Params()
	if err != nil {
		return err
	}
	for _, ilk := range params.Ilks {
		if ilk.Fee.Lt(fixed.RAY()) {
			return fmt.Errorf("ilks[%s]: fee below 1", ilk.ID)
		}
		if ilk.Chop.Lt(fixed.RAY()) {
			return fmt.Errorf("ilks[%s]: chop below 1", ilk.ID)
		}
		if ilk.Liqr.Lt(fixed.RAY()) {
			return fmt.Errorf("ilks[%s]: liqr below 1", ilk.ID)
		}
	}
	return nil
}
