package config

// Reserved ramp consumers. Any other consumer value must be a hex address.
const (
	ConsumerSettlement = "vow"
	ConsumerIssuer     = "issuer"
)

// Ilk configures one collateral class. Line and Dust are rads, Fee, Chop,
// Liqr and Mark are rays. Mark is only used for classes without a price tag.
type Ilk struct {
	ID     string   `toml:"ID"`
	Tag    string   `toml:"Tag"`
	Line   string   `toml:"Line"`
	Dust   string   `toml:"Dust"`
	Fee    string   `toml:"Fee"`
	Chop   string   `toml:"Chop"`
	Liqr   string   `toml:"Liqr"`
	Mark   string   `toml:"Mark,omitempty"`
	Assets []string `toml:"Assets"`
}

// Ramp configures the exchange capacity of one consumer for one asset. Vel is
// a wad per second, Rel a wad fraction of the base per second and Cel the
// number of seconds of accrual the bucket can hold.
type Ramp struct {
	Consumer string `toml:"Consumer"`
	Asset    string `toml:"Asset"`
	Vel      string `toml:"Vel"`
	Rel      string `toml:"Rel"`
	Cel      uint64 `toml:"Cel"`
	Del      uint64 `toml:"Del,omitempty"`
}

// Pool seeds a venue pool.
type Pool struct {
	AssetA string `toml:"AssetA"`
	AssetB string `toml:"AssetB"`
	FeeBps uint64 `toml:"FeeBps"`
}
