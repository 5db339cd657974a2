package flow

import (
	"github.com/holiman/uint256"

	"cdpbank/native/fixed"
)

// Ramp is a dual token bucket. Vel is the absolute refill rate (wad per
// second), Rel the refill rate as a fraction (wad) of a reference base such
// as the venue reserve of the asset sold. Cel is the window in seconds; each
// bucket holds at most rate*Cel. Avail is what remained after the last
// consumption at Bel.
type Ramp struct {
	Vel   *uint256.Int
	Rel   *uint256.Int
	Bel   uint64
	Cel   uint64
	Del   uint64
	Avail *uint256.Int
}

// Clone returns a deep copy of the ramp.
func (r *Ramp) Clone() *Ramp {
	if r == nil {
		return nil
	}
	return &Ramp{
		Vel:   cloneInt(r.Vel),
		Rel:   cloneInt(r.Rel),
		Bel:   r.Bel,
		Cel:   r.Cel,
		Del:   r.Del,
		Avail: cloneInt(r.Avail),
	}
}

// Capacity returns how much may be consumed at now given the reference base
// for the relative bucket.
func (r *Ramp) Capacity(now uint64, base *uint256.Int) (*uint256.Int, error) {
	if r == nil || r.Cel == 0 {
		return fixed.Zero(), nil
	}
	var dt uint64
	if now > r.Bel {
		dt = now - r.Bel
	}
	cel := uint256.NewInt(r.Cel)
	abs, err := refill(r.Avail, r.Vel, dt, cel)
	if err != nil {
		return nil, err
	}
	relVel, err := fixed.Wmul(r.Rel, base)
	if err != nil {
		return nil, err
	}
	rel, err := refill(r.Avail, relVel, dt, cel)
	if err != nil {
		return nil, err
	}
	return fixed.Min(abs, rel), nil
}

// refill returns min(rate*cel, avail + rate*dt). A refill that does not fit
// in 256 bits is necessarily above the cap.
func refill(avail, rate *uint256.Int, dt uint64, cel *uint256.Int) (*uint256.Int, error) {
	limit, err := fixed.Mul(rate, cel)
	if err != nil {
		return nil, err
	}
	grown, err := fixed.Mul(rate, uint256.NewInt(dt))
	if err != nil {
		return limit, nil
	}
	grown, err = fixed.Add(cloneInt(avail), grown)
	if err != nil {
		return limit, nil
	}
	return fixed.Min(limit, grown), nil
}

func cloneInt(x *uint256.Int) *uint256.Int {
	if x == nil {
		return fixed.Zero()
	}
	return new(uint256.Int).Set(x)
}
