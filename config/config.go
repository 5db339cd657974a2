package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Market is the on-disk form of the bank's market parameters. Decimal values
// are strings in the unit of the field they configure.
type Market struct {
	Stable string   `toml:"Stable"`
	Risk   string   `toml:"Risk"`
	Bar    string   `toml:"Bar"`
	Ceil   string   `toml:"Ceil"`
	Par    string   `toml:"Par"`
	Pauses []string `toml:"Pauses,omitempty"`
	Ilks   []Ilk    `toml:"Ilks"`
	Ramps  []Ramp   `toml:"Ramps"`
	Pools  []Pool   `toml:"Pools"`
}

// Load reads the market parameters at path. A missing file is replaced by the
// development defaults.
func Load(path string) (*Market, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Market{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.normalize()
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (m *Market) normalize() {
	m.Stable = strings.ToUpper(strings.TrimSpace(m.Stable))
	m.Risk = strings.ToUpper(strings.TrimSpace(m.Risk))
	if strings.TrimSpace(m.Par) == "" {
		m.Par = "1"
	}
	for i := range m.Ilks {
		m.Ilks[i].ID = strings.ToLower(strings.TrimSpace(m.Ilks[i].ID))
		for j, asset := range m.Ilks[i].Assets {
			m.Ilks[i].Assets[j] = strings.ToUpper(strings.TrimSpace(asset))
		}
	}
	for i := range m.Ramps {
		m.Ramps[i].Asset = strings.ToUpper(strings.TrimSpace(m.Ramps[i].Asset))
	}
	for i := range m.Pools {
		m.Pools[i].AssetA = strings.ToUpper(strings.TrimSpace(m.Pools[i].AssetA))
		m.Pools[i].AssetB = strings.ToUpper(strings.TrimSpace(m.Pools[i].AssetB))
	}
}

// Default returns a single-class development market.
func Default() *Market {
	return &Market{
		Stable: "RICO",
		Risk:   "RISK",
		Bar:    "0",
		Ceil:   "1000000",
		Par:    "1",
		Ilks: []Ilk{{
			ID:     "weth",
			Tag:    "weth:rico",
			Line:   "1000000",
			Dust:   "0",
			Fee:    "1",
			Chop:   "1.1",
			Liqr:   "1.5",
			Assets: []string{"WETH"},
		}},
		Ramps: []Ramp{
			{Consumer: ConsumerSettlement, Asset: "WETH", Vel: "1000", Rel: "0.01", Cel: 600},
			{Consumer: ConsumerSettlement, Asset: "RICO", Vel: "1000", Rel: "0.01", Cel: 600},
			{Consumer: ConsumerSettlement, Asset: "RISK", Vel: "1000", Rel: "0.01", Cel: 600},
			{Consumer: ConsumerIssuer, Asset: "RISK", Vel: "100", Rel: "0.001", Cel: 3600},
		},
		Pools: []Pool{
			{AssetA: "WETH", AssetB: "RICO", FeeBps: 30},
			{AssetA: "RISK", AssetB: "RICO", FeeBps: 30},
		},
	}
}

func createDefault(path string) (*Market, error) {
	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as TOML, creating parent directories.
func Save(path string, cfg *Market) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
