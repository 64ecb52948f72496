// README: Common money value object used across modules.
package types

// DefaultCurrency is used when a record carries no explicit currency.
const DefaultCurrency = "INR"

// Money holds an amount in the smallest currency unit (paise for INR).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func NewMoney(amount int64, currency string) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: amount, Currency: currency}
}

func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount + o.Amount, Currency: m.currency(o)}
}

func (m Money) Sub(o Money) Money {
	return Money{Amount: m.Amount - o.Amount, Currency: m.currency(o)}
}

func (m Money) IsNegative() bool {
	return m.Amount < 0
}

func (m Money) currency(o Money) string {
	if m.Currency != "" {
		return m.Currency
	}
	return o.Currency
}

// BasisPoints expresses a percentage in hundredths of a percent (1800 = 18%).
type BasisPoints int64

const FullBps BasisPoints = 10000

// Percent converts a whole percentage into basis points.
func Percent(p int64) BasisPoints {
	return BasisPoints(p * 100)
}

// ApplyBps returns amount*bps/10000 rounded half-up (half away from zero for
// negative amounts).
func ApplyBps(amount int64, bps BasisPoints) int64 {
	return RoundHalfUp(amount*int64(bps), int64(FullBps))
}

// RoundHalfUp divides num by den (den > 0) rounding halves away from zero.
func RoundHalfUp(num, den int64) int64 {
	if den <= 0 {
		panic("types: RoundHalfUp with non-positive denominator")
	}
	if num < 0 {
		return -((-num*2 + den) / (2 * den))
	}
	return (num*2 + den) / (2 * den)
}
