package ledger

import (
	"math/big"
	"strings"
)

// FormatUnits renders an integer amount of base units as a decimal string
// with trailing zeros trimmed: FormatUnits(10000000000000000, 18) == "0.01".
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Set(amount)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}
	if decimals == 0 {
		return sign + abs.String()
	}

	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, base, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}

	digits := frac.String()
	if pad := int(decimals) - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	return sign + whole.String() + "." + strings.TrimRight(digits, "0")
}
