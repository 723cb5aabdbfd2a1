// Package coins provides the BTC and XMR amount types used throughout the
// swap protocol, along with the decimal formatting conventions shared by
// the wire messages and the persisted state.
package coins

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/cockroachdb/apd/v3"
)

// NumMoneroDecimals is the number of decimal places in a piconero amount.
const NumMoneroDecimals = 12

// PiconeroOffset is the number of piconero in one XMR.
const PiconeroOffset = 1_000_000_000_000

// PiconeroAmount represents an amount of Monero in piconero, its atomic unit.
type PiconeroAmount uint64

// NewPiconeroAmount creates a PiconeroAmount from a raw uint64 of piconero.
func NewPiconeroAmount(amount uint64) *PiconeroAmount {
	a := PiconeroAmount(amount)
	return &a
}

// MoneroToPiconero converts a decimal XMR amount into piconero, rounding
// down to the nearest atomic unit.
func MoneroToPiconero(xmr *apd.Decimal) (*PiconeroAmount, error) {
	scaled := new(apd.Decimal)
	scale := apd.New(PiconeroOffset, 0)
	ctx := apd.BaseContext.WithPrecision(40)
	if _, err := ctx.Mul(scaled, xmr, scale); err != nil {
		return nil, fmt.Errorf("failed to scale monero amount: %w", err)
	}

	rounded := new(apd.Decimal)
	if _, err := ctx.RoundToIntegralValue(rounded, scaled); err != nil {
		return nil, fmt.Errorf("failed to round piconero amount: %w", err)
	}

	u, err := rounded.Int64()
	if err != nil {
		return nil, fmt.Errorf("piconero amount out of range: %w", err)
	}
	if u < 0 {
		return nil, errors.New("monero amount cannot be negative")
	}

	return NewPiconeroAmount(uint64(u)), nil
}

// AsMonero returns the amount as a decimal XMR value.
func (a *PiconeroAmount) AsMonero() *apd.Decimal {
	d := apd.New(int64(*a), 0)
	scale := apd.New(PiconeroOffset, 0)
	result := new(apd.Decimal)
	ctx := apd.BaseContext.WithPrecision(40)
	_, _ = ctx.Quo(result, d, scale)
	return result
}

// AsMoneroString formats the amount as a decimal XMR string.
func (a *PiconeroAmount) AsMoneroString() string {
	return a.AsMonero().Text('f')
}

// Uint64 returns the raw piconero count.
func (a *PiconeroAmount) Uint64() uint64 {
	return uint64(*a)
}

// Add returns the sum of two piconero amounts.
func (a *PiconeroAmount) Add(b *PiconeroAmount) *PiconeroAmount {
	return NewPiconeroAmount(a.Uint64() + b.Uint64())
}

// Sub returns a-b, or an error if the result would be negative.
func (a *PiconeroAmount) Sub(b *PiconeroAmount) (*PiconeroAmount, error) {
	if b.Uint64() > a.Uint64() {
		return nil, fmt.Errorf("cannot subtract %d piconero from %d piconero", b.Uint64(), a.Uint64())
	}
	return NewPiconeroAmount(a.Uint64() - b.Uint64()), nil
}

// SatAmount represents an amount of Bitcoin in satoshis, its atomic unit.
// It is a thin alias over btcutil.Amount, the ecosystem's own satoshi type,
// so that fee/amount arithmetic in the transaction builder composes
// directly with btcsuite APIs that already speak btcutil.Amount.
type SatAmount = btcutil.Amount

// FmtSatAsBTC formats a satoshi amount as a decimal BTC string.
func FmtSatAsBTC(amount SatAmount) string {
	return amount.String()
}

// ValidatePositive validates that a decimal amount is strictly positive and
// has no more than maxDecimals digits after the decimal point.
func ValidatePositive(name string, maxDecimals int32, amount *apd.Decimal) error {
	if amount == nil {
		return fmt.Errorf("%q is not set", name)
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("%q must be positive", name)
	}
	if -amount.Exponent > maxDecimals {
		return fmt.Errorf("%q has too many decimal places (max %d)", name, maxDecimals)
	}
	return nil
}
