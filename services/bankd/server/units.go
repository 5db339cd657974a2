package server

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"cdpbank/native/fixed"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// parseAmount reads an unsigned decimal string. Empty strings are zero.
func parseAmount(field, value string, decimals int) (*uint256.Int, error) {
	if strings.TrimSpace(value) == "" {
		return fixed.Zero(), nil
	}
	out, err := fixed.Parse(value, decimals)
	if err != nil {
		return nil, badRequest("%s: %v", field, err)
	}
	return out, nil
}

// parseDelta reads a signed decimal string such as "-2.5".
func parseDelta(field, value string, decimals int) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return new(big.Int), nil
	}
	negative := strings.HasPrefix(trimmed, "-")
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "-"), "+")
	abs, err := fixed.Parse(trimmed, decimals)
	if err != nil {
		return nil, badRequest("%s: %v", field, err)
	}
	out := abs.ToBig()
	if negative {
		out.Neg(out)
	}
	return out, nil
}

func parseAddress(field, value string) (ethcommon.Address, error) {
	if !ethcommon.IsHexAddress(strings.TrimSpace(value)) {
		return ethcommon.Address{}, badRequest("%s: invalid address %q", field, value)
	}
	return ethcommon.HexToAddress(strings.TrimSpace(value)), nil
}

// paramDecimals is the precision of a ledger parameter key.
func paramDecimals(key string) (int, error) {
	switch key {
	case "ceil", "line", "dust":
		return fixed.RadDecimals, nil
	case "par", "way", "fee", "chop", "liqr", "mark":
		return fixed.RayDecimals, nil
	default:
		return 0, badRequest("unknown parameter %q", key)
	}
}

func wad(x *uint256.Int) string { return fixed.Format(x, fixed.WadDecimals) }

func ray(x *uint256.Int) string { return fixed.Format(x, fixed.RayDecimals) }

func rad(x *uint256.Int) string { return fixed.Format(x, fixed.RadDecimals) }
