package config

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"cdpbank/native/fixed"
)

// IlkParams is the parsed form of Ilk.
type IlkParams struct {
	ID     string
	Tag    string
	Line   *uint256.Int
	Dust   *uint256.Int
	Fee    *uint256.Int
	Chop   *uint256.Int
	Liqr   *uint256.Int
	Mark   *uint256.Int
	Assets []string
}

// RampParams is the parsed form of Ramp.
type RampParams struct {
	Consumer string
	Asset    string
	Vel      *uint256.Int
	Rel      *uint256.Int
	Cel      uint64
	Del      uint64
}

// Params bundles the runtime values decoded from a Market.
type Params struct {
	Stable string
	Risk   string
	Bar    *uint256.Int
	Ceil   *uint256.Int
	Par    *uint256.Int
	Pauses []string
	Ilks   []IlkParams
	Ramps  []RampParams
	Pools  []Pool
}

func parseField(field, value string, decimals int, fallback string) (*uint256.Int, error) {
	if strings.TrimSpace(value) == "" {
		value = fallback
	}
	out, err := fixed.Parse(value, decimals)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return out, nil
}

// Params parses the configured decimal strings into fixed-point values.
func (m Market) Params() (Params, error) {
	params := Params{Stable: m.Stable, Risk: m.Risk, Pauses: m.Pauses, Pools: m.Pools}
	var err error
	if params.Bar, err = parseField("Bar", m.Bar, fixed.RadDecimals, "0"); err != nil {
		return params, err
	}
	if params.Ceil, err = parseField("Ceil", m.Ceil, fixed.RadDecimals, "0"); err != nil {
		return params, err
	}
	if params.Par, err = parseField("Par", m.Par, fixed.RayDecimals, "1"); err != nil {
		return params, err
	}
	for _, ilk := range m.Ilks {
		p := IlkParams{ID: ilk.ID, Tag: ilk.Tag, Assets: ilk.Assets}
		prefix := "Ilks[" + ilk.ID + "]."
		if p.Line, err = parseField(prefix+"Line", ilk.Line, fixed.RadDecimals, "0"); err != nil {
			return params, err
		}
		if p.Dust, err = parseField(prefix+"Dust", ilk.Dust, fixed.RadDecimals, "0"); err != nil {
			return params, err
		}
		if p.Fee, err = parseField(prefix+"Fee", ilk.Fee, fixed.RayDecimals, "1"); err != nil {
			return params, err
		}
		if p.Chop, err = parseField(prefix+"Chop", ilk.Chop, fixed.RayDecimals, "1"); err != nil {
			return params, err
		}
		if p.Liqr, err = parseField(prefix+"Liqr", ilk.Liqr, fixed.RayDecimals, "1"); err != nil {
			return params, err
		}
		if p.Mark, err = parseField(prefix+"Mark", ilk.Mark, fixed.RayDecimals, "0"); err != nil {
			return params, err
		}
		params.Ilks = append(params.Ilks, p)
	}
	for _, ramp := range m.Ramps {
		p := RampParams{Consumer: ramp.Consumer, Asset: ramp.Asset, Cel: ramp.Cel, Del: ramp.Del}
		prefix := "Ramps[" + ramp.Consumer + "/" + ramp.Asset + "]."
		if p.Vel, err = parseField(prefix+"Vel", ramp.Vel, fixed.WadDecimals, "0"); err != nil {
			return params, err
		}
		if p.Rel, err = parseField(prefix+"Rel", ramp.Rel, fixed.WadDecimals, "0"); err != nil {
			return params, err
		}
		params.Ramps = append(params.Ramps, p)
	}
	return params, nil
}
