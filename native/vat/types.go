package vat

import (
	"github.com/holiman/uint256"

	"cdpbank/native/fixed"
)

// Ilk captures the accounting state and risk parameters of a collateral
// class. Tart and the position fields are wads, Rack/Fee/Chop/Liqr/Mark are
// rays, Line and Dust are rads.
type Ilk struct {
	// Tart is the sum of normalized debt across every position of the class.
	Tart *uint256.Int
	// Rack is the debt accumulator; it starts at one ray and never decreases.
	Rack *uint256.Int
	// Mark is the last observed collateral value per unit.
	Mark *uint256.Int
	// Line is the class debt ceiling.
	Line *uint256.Int
	// Dust is the minimum non-zero debt per position.
	Dust *uint256.Int
	// Fee is the per-second compounding rate.
	Fee *uint256.Int
	// Chop is the liquidation penalty multiplier.
	Chop *uint256.Int
	// Liqr is the liquidation ratio.
	Liqr *uint256.Int
	// Rho is the unix timestamp of the last accrual.
	Rho uint64
	// Tag names the price feed reading that values the collateral. An empty
	// tag means Mark is administered directly and always considered fresh.
	Tag string
}

func newIlk(tag string, now uint64) *Ilk {
	return &Ilk{
		Tart: fixed.Zero(),
		Rack: fixed.RAY(),
		Mark: fixed.Zero(),
		Line: fixed.Zero(),
		Dust: fixed.Zero(),
		Fee:  fixed.RAY(),
		Chop: fixed.RAY(),
		Liqr: fixed.RAY(),
		Rho:  now,
		Tag:  tag,
	}
}

// Clone returns a deep copy of the ilk.
func (i *Ilk) Clone() *Ilk {
	if i == nil {
		return nil
	}
	return &Ilk{
		Tart: cloneInt(i.Tart),
		Rack: cloneInt(i.Rack),
		Mark: cloneInt(i.Mark),
		Line: cloneInt(i.Line),
		Dust: cloneInt(i.Dust),
		Fee:  cloneInt(i.Fee),
		Chop: cloneInt(i.Chop),
		Liqr: cloneInt(i.Liqr),
		Rho:  i.Rho,
		Tag:  i.Tag,
	}
}

// Urn is one owner's position within a class. Both fields are wads.
type Urn struct {
	Ink *uint256.Int
	Art *uint256.Int
}

func emptyUrn() *Urn {
	return &Urn{Ink: fixed.Zero(), Art: fixed.Zero()}
}

// Empty reports whether the position holds neither collateral nor debt.
func (u *Urn) Empty() bool {
	return u == nil || (u.Ink.IsZero() && u.Art.IsZero())
}

// Globals holds the system-wide scalars.
type Globals struct {
	// Ceil is the global debt ceiling (rad).
	Ceil *uint256.Int
	// Debt is the sum of Tart*Rack over every class (rad).
	Debt *uint256.Int
	// Vice is the sum of every account's deficit balance (rad).
	Vice *uint256.Int
	// Par is the reference price of the stable unit (ray).
	Par *uint256.Int
	// Way is the drift rate of Par (ray), owned by the reference-rate
	// controller and only stored here.
	Way *uint256.Int
}

func newGlobals() *Globals {
	return &Globals{
		Ceil: fixed.Zero(),
		Debt: fixed.Zero(),
		Vice: fixed.Zero(),
		Par:  fixed.RAY(),
		Way:  fixed.RAY(),
	}
}

// Status is the three-valued result of a safety check.
type Status uint8

const (
	// StatusUnsafe means the collateral value no longer covers the debt and
	// the position may be liquidated.
	StatusUnsafe Status = iota
	// StatusSick means the position covers its debt at the last observed
	// mark but the price reading has expired; it can neither be worsened nor
	// liquidated until a fresh reading arrives.
	StatusSick
	// StatusSafe means the position covers its debt at a fresh price.
	StatusSafe
)

func (s Status) String() string {
	switch s {
	case StatusUnsafe:
		return "unsafe"
	case StatusSick:
		return "sick"
	case StatusSafe:
		return "safe"
	default:
		return "unknown"
	}
}

// Seizure reports what Grab removed from a position.
type Seizure struct {
	Ink  *uint256.Int
	Art  *uint256.Int
	Tab  *uint256.Int
	Bill *uint256.Int
}

func cloneInt(x *uint256.Int) *uint256.Int {
	if x == nil {
		return fixed.Zero()
	}
	return new(uint256.Int).Set(x)
}
