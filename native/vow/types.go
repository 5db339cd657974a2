package vow

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Config holds the settlement parameters.
type Config struct {
	// Bar is the surplus buffer (rad) retained before surplus is sold.
	Bar *uint256.Int
	// Stable is the symbol joy is exported as.
	Stable string
	// Risk is the symbol of the absorption asset.
	Risk string
}

// Sale records one leg of collateral sold during a liquidation.
type Sale struct {
	Asset    string
	Exited   *uint256.Int
	Sold     *uint256.Int
	Proceeds *uint256.Int
	FlowID   string
}

// Liquidation summarises a successful Bail.
type Liquidation struct {
	Ilk      string
	Owner    ethcommon.Address
	Ink      *uint256.Int
	Art      *uint256.Int
	Bill     *uint256.Int
	Sales    []Sale
	Proceeds *uint256.Int
}

// Action names what a Keep call did.
type Action string

const (
	ActionNone Action = "none"
	ActionHeal Action = "heal"
	ActionFlap Action = "flap"
	ActionFlop Action = "flop"
)

// Reconciliation summarises a Keep call.
type Reconciliation struct {
	Action   Action
	Accrued  *uint256.Int
	Healed   *uint256.Int
	Sold     *uint256.Int
	Received *uint256.Int
	Burned   *uint256.Int
	Minted   *uint256.Int
	FlowID   string
}
