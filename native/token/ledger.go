// Package token keeps the balances of the external assets the bank moves:
// the stable unit, the risk unit and every deposited collateral type.
package token

import (
	"errors"
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "cdpbank/native/common"
	"cdpbank/native/fixed"
	"cdpbank/storage"
)

var (
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrInvalidAsset        = errors.New("token: asset symbol required")
)

const (
	balancePrefix = "token/balance"
	supplyPrefix  = "token/supply"
)

type amountRecord struct {
	Amount *uint256.Int
}

// Ledger implements mint, burn and transfer over a key-value store.
type Ledger struct {
	kv nativecommon.KV
}

// NewLedger binds a ledger to db.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{kv: nativecommon.NewKV(db)}
}

// Normalize canonicalises an asset symbol.
func Normalize(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

func balanceKey(asset string, holder ethcommon.Address) []byte {
	return nativecommon.Key(balancePrefix, []byte(asset), holder.Bytes())
}

func supplyKey(asset string) []byte {
	return nativecommon.Key(supplyPrefix, []byte(asset))
}

func (l *Ledger) load(key []byte) (*uint256.Int, error) {
	rec := amountRecord{}
	ok, err := l.kv.Load(key, &rec)
	if err != nil {
		return nil, err
	}
	if !ok || rec.Amount == nil {
		return fixed.Zero(), nil
	}
	return rec.Amount, nil
}

func (l *Ledger) store(key []byte, amount *uint256.Int) error {
	return l.kv.Save(key, &amountRecord{Amount: amount})
}

// BalanceOf returns the holder's balance of asset.
func (l *Ledger) BalanceOf(asset string, holder ethcommon.Address) (*uint256.Int, error) {
	asset = Normalize(asset)
	if asset == "" {
		return nil, ErrInvalidAsset
	}
	return l.load(balanceKey(asset, holder))
}

// TotalSupply returns the outstanding supply of asset.
func (l *Ledger) TotalSupply(asset string) (*uint256.Int, error) {
	asset = Normalize(asset)
	if asset == "" {
		return nil, ErrInvalidAsset
	}
	return l.load(supplyKey(asset))
}

// Mint creates amount of asset for to.
func (l *Ledger) Mint(asset string, to ethcommon.Address, amount *uint256.Int) error {
	asset = Normalize(asset)
	if asset == "" {
		return ErrInvalidAsset
	}
	supply, err := l.load(supplyKey(asset))
	if err != nil {
		return err
	}
	bal, err := l.load(balanceKey(asset, to))
	if err != nil {
		return err
	}
	nextSupply, err := fixed.Add(supply, amount)
	if err != nil {
		return fmt.Errorf("token: mint %s: %w", asset, err)
	}
	nextBal, err := fixed.Add(bal, amount)
	if err != nil {
		return fmt.Errorf("token: mint %s: %w", asset, err)
	}
	if err := l.store(supplyKey(asset), nextSupply); err != nil {
		return err
	}
	return l.store(balanceKey(asset, to), nextBal)
}

// Burn destroys amount of asset held by from.
func (l *Ledger) Burn(asset string, from ethcommon.Address, amount *uint256.Int) error {
	asset = Normalize(asset)
	if asset == "" {
		return ErrInvalidAsset
	}
	bal, err := l.load(balanceKey(asset, from))
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, asset)
	}
	supply, err := l.load(supplyKey(asset))
	if err != nil {
		return err
	}
	nextSupply, err := fixed.Sub(supply, amount)
	if err != nil {
		return fmt.Errorf("token: burn %s: %w", asset, err)
	}
	if err := l.store(supplyKey(asset), nextSupply); err != nil {
		return err
	}
	return l.store(balanceKey(asset, from), new(uint256.Int).Sub(bal, amount))
}

// Transfer moves amount of asset from one holder to another.
func (l *Ledger) Transfer(asset string, from, to ethcommon.Address, amount *uint256.Int) error {
	asset = Normalize(asset)
	if asset == "" {
		return ErrInvalidAsset
	}
	if amount.IsZero() || from == to {
		return nil
	}
	src, err := l.load(balanceKey(asset, from))
	if err != nil {
		return err
	}
	if src.Lt(amount) {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, asset)
	}
	dst, err := l.load(balanceKey(asset, to))
	if err != nil {
		return err
	}
	nextDst, err := fixed.Add(dst, amount)
	if err != nil {
		return fmt.Errorf("token: transfer %s: %w", asset, err)
	}
	if err := l.store(balanceKey(asset, from), new(uint256.Int).Sub(src, amount)); err != nil {
		return err
	}
	return l.store(balanceKey(asset, to), nextDst)
}
