package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Quantization exponents from the normalizer spec: money to cents, price to
// micros, quantity to hundred-millionths, account balances to 1e-4.
var (
	MoneyExp   = decimal.New(1, -2)
	PriceExp   = decimal.New(1, -6)
	QtyExp     = decimal.New(1, -8)
	BalanceExp = decimal.New(1, -4)
)

// RoundHalfEven quantizes d to the given number of decimal places using
// round-half-to-even (banker's rounding). shopspring/decimal only exposes
// half-away-from-zero rounding, so this walks the underlying big.Int by hand.
func RoundHalfEven(d decimal.Decimal, places int32) decimal.Decimal {
	rescaled := d.Rescale(-places)
	coeff := rescaled.Coefficient()
	exp := rescaled.Exponent()

	// Rescale to one extra digit of precision so we can inspect the
	// discarded remainder and apply half-to-even tie-breaking.
	extra := d.Rescale(exp - 1)
	extraCoeff := extra.Coefficient()

	divisor := big.NewInt(10)
	quotient := new(big.Int)
	remainder := new(big.Int)
	quotient.QuoRem(extraCoeff, divisor, remainder)

	absRem := new(big.Int).Abs(remainder)
	half := big.NewInt(5)

	switch absRem.Cmp(half) {
	case 1:
		// Remainder > 5: round away from zero.
		quotient = roundAwayFromZero(quotient, remainder)
	case 0:
		// Discarded digit is 5: a true tie (nothing non-zero after it)
		// rounds to even; anything beyond it rounds away from zero.
		if quotient.Bit(0) == 1 || !extra.Equal(d) {
			quotient = roundAwayFromZero(quotient, remainder)
		}
	}
	_ = coeff
	return decimal.NewFromBigInt(quotient, exp)
}

func roundAwayFromZero(q, remainder *big.Int) *big.Int {
	one := big.NewInt(1)
	if remainder.Sign() < 0 {
		one.Neg(one)
	}
	return new(big.Int).Add(q, one)
}

// SanitizeMoney quantizes an arbitrary numeric input to MoneyExp using
// banker's rounding, matching the normalizer's sanitize_money.
func SanitizeMoney(v decimal.Decimal) decimal.Decimal {
	return RoundHalfEven(v, 2)
}

// SanitizePrice quantizes to PriceExp (6 decimal places).
func SanitizePrice(v decimal.Decimal) decimal.Decimal {
	return RoundHalfEven(v, 6)
}

// SanitizeQty quantizes to QtyExp (8 decimal places).
func SanitizeQty(v decimal.Decimal) decimal.Decimal {
	return RoundHalfEven(v, 8)
}

// SanitizeBalance quantizes to BalanceExp (4 decimal places), used for
// account balance query results.
func SanitizeBalance(v decimal.Decimal) decimal.Decimal {
	return RoundHalfEven(v, 4)
}
