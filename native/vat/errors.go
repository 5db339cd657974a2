package vat

import "errors"

var (
	ErrNilState      = errors.New("vat: state not configured")
	ErrNotAuthorized = errors.New("vat: not authorized")
	ErrOverCeiling   = errors.New("vat: debt ceiling exceeded")
	ErrUnsafe        = errors.New("vat: position not safe")
	ErrBelowDust     = errors.New("vat: debt below dust")
	ErrUnknownIlk    = errors.New("vat: unknown collateral class")
	ErrIlkExists     = errors.New("vat: collateral class already initialised")
	ErrUnknownParam  = errors.New("vat: unknown parameter")
	ErrInvalidParam  = errors.New("vat: invalid parameter value")
)
