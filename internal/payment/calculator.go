package payment

import (
	"errors"

	"github.com/shopspring/decimal"
)

// currencyPrecision is the number of decimal places of the smallest
// currency unit.
const currencyPrecision = 2

var (
	ErrInvalidFee  = errors.New("consultation fee must be positive")
	ErrInvalidRate = errors.New("commission rate must be in [0,1)")
)

// Split divides a consultation fee into platform commission and doctor
// payout. Only the commission is rounded; the payout is the remainder, so
// payout + commission == fee holds exactly.
func Split(fee, rate decimal.Decimal) (commission, payout decimal.Decimal, err error) {
	if fee.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, ErrInvalidFee
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, decimal.Zero, ErrInvalidRate
	}

	commission = fee.Mul(rate).Round(currencyPrecision)
	payout = fee.Sub(commission)
	return commission, payout, nil
}
