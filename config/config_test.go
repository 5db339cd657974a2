package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cdpbank/native/fixed"
)

const sampleMarket = `Stable = "rico"
Risk = "risk"
Bar = "10"
Ceil = "50000"

[[Ilks]]
ID = "WETH"
Tag = "weth:rico"
Line = "20000"
Dust = "0.5"
Fee = "1.000000001"
Chop = "1.1"
Liqr = "1.5"
Assets = ["weth", "steth"]

[[Ramps]]
Consumer = "vow"
Asset = "weth"
Vel = "100"
Rel = "0.001"
Cel = 60

[[Ramps]]
Consumer = "0x00000000000000000000000000000000000000aa"
Asset = "rico"
Vel = "1"
Rel = "0"
Cel = 10

[[Pools]]
AssetA = "weth"
AssetB = "rico"
FeeBps = 30
`

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "market.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesMarket(t *testing.T) {
	cfg, err := Load(writeFile(t, sampleMarket))
	require.NoError(t, err)

	require.Equal(t, "RICO", cfg.Stable)
	require.Equal(t, "RISK", cfg.Risk)
	require.Len(t, cfg.Ilks, 1)
	require.Equal(t, "weth", cfg.Ilks[0].ID)
	require.Equal(t, []string{"WETH", "STETH"}, cfg.Ilks[0].Assets)
	require.Equal(t, "WETH", cfg.Ramps[0].Asset)
	require.Equal(t, "RICO", cfg.Pools[0].AssetB)

	params, err := cfg.Params()
	require.NoError(t, err)
	require.Equal(t, fixed.Rad(10).Dec(), params.Bar.Dec())
	require.Equal(t, fixed.Rad(50_000).Dec(), params.Ceil.Dec())
	require.Equal(t, fixed.RAY().Dec(), params.Par.Dec())
	require.Equal(t, "1000000001000000000000000000", params.Ilks[0].Fee.Dec())
	require.Equal(t, fixed.MustParse("0.5", fixed.RadDecimals).Dec(), params.Ilks[0].Dust.Dec())
	require.True(t, params.Ilks[0].Mark.IsZero())
	require.Equal(t, fixed.Wad(100).Dec(), params.Ramps[0].Vel.Dec())
	require.Equal(t, fixed.MustParse("0.001", fixed.WadDecimals).Dec(), params.Ramps[0].Rel.Dec())
	require.Equal(t, uint64(60), params.Ramps[0].Cel)
	require.Zero(t, params.Ramps[0].Del)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeFile(t, sampleMarket+"\nSurplus = \"1\"\n"))
	require.ErrorContains(t, err, "unknown keys")
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "market.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default().Stable, cfg.Stable)
	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Market)
		want   string
	}{
		{"missing stable", func(m *Market) { m.Stable = "" }, "stable and risk"},
		{"same assets", func(m *Market) { m.Risk = m.Stable }, "must differ"},
		{"duplicate ilk", func(m *Market) { m.Ilks = append(m.Ilks, m.Ilks[0]) }, "duplicate id"},
		{"no assets", func(m *Market) { m.Ilks[0].Assets = nil }, "at least one asset"},
		{"no price", func(m *Market) { m.Ilks[0].Tag = "" }, "tag or mark"},
		{"tag and mark", func(m *Market) { m.Ilks[0].Mark = "1" }, "mark is fed"},
		{"fee below one", func(m *Market) { m.Ilks[0].Fee = "0.99" }, "fee below 1"},
		{"bad decimal", func(m *Market) { m.Ilks[0].Line = "abc" }, "Line"},
		{"bad consumer", func(m *Market) { m.Ramps[0].Consumer = "keeper" }, "neither reserved"},
		{"duplicate ramp", func(m *Market) { m.Ramps = append(m.Ramps, m.Ramps[0]) }, "duplicate ramp"},
		{"del", func(m *Market) { m.Ramps[0].Del = 1 }, "del is not supported"},
		{"pool pair", func(m *Market) { m.Pools[0].AssetB = m.Pools[0].AssetA }, "invalid pair"},
		{"pool fee", func(m *Market) { m.Pools[0].FeeBps = 10_000 }, "fee_bps"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Default()
			tc.mutate(m)
			require.ErrorContains(t, Validate(m), tc.want)
		})
	}
	require.NoError(t, Validate(Default()))
}
