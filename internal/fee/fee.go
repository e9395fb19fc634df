// Package fee converts a native-currency gas fee into the ERC20 amount a
// paymaster charges for it.
package fee

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrDivisionByZero is returned when the token feed reports a zero rate
	ErrDivisionByZero = errors.New("division by zero")
	// ErrOverflow is returned when a value does not fit in 256 bits
	ErrOverflow = errors.New("value exceeds 256 bits")
	// ErrNegative is returned for negative fee inputs
	ErrNegative = errors.New("negative value")
)

// Quote is the gas price and limit fetched once per run
type Quote struct {
	GasPrice *big.Int
	GasLimit uint64
}

// NativeFee returns gasPrice * gasLimit
func (q Quote) NativeFee() *big.Int {
	if q.GasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(q.GasPrice, new(big.Int).SetUint64(q.GasLimit))
}

// Rates holds the two feed readings used for the conversion.
// Both are USD prices with the same decimal scaling.
type Rates struct {
	Native *big.Int
	Token  *big.Int
}

// Convert returns floor(feeNative * rateNative / rateToken).
//
// The product is computed in 512 bits so it never wraps; only the final
// quotient has to fit in a uint256.
func Convert(feeNative, rateNative, rateToken *big.Int) (*big.Int, error) {
	fee, err := toUint256("native fee", feeNative)
	if err != nil {
		return nil, err
	}
	num, err := toUint256("native rate", rateNative)
	if err != nil {
		return nil, err
	}
	den, err := toUint256("token rate", rateToken)
	if err != nil {
		return nil, err
	}
	if den.IsZero() {
		return nil, fmt.Errorf("token rate is zero: %w", ErrDivisionByZero)
	}

	z, overflow := new(uint256.Int).MulDivOverflow(fee, num, den)
	if overflow {
		return nil, fmt.Errorf("token fee: %w", ErrOverflow)
	}
	return z.ToBig(), nil
}

// ConvertQuote converts the native fee of q using r
func ConvertQuote(q Quote, r Rates) (*big.Int, error) {
	return Convert(q.NativeFee(), r.Native, r.Token)
}

// Covers reports whether the placeholder allowance used during estimation
// is at least the final allowance. When it is not, the estimate may have
// been computed against a cheaper paymaster path than the one submitted.
func Covers(placeholder, allowance *big.Int) bool {
	if placeholder == nil || allowance == nil {
		return false
	}
	return placeholder.Cmp(allowance) >= 0
}

func toUint256(name string, v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("%s is nil", name)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%s %s: %w", name, v, ErrNegative)
	}
	z, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%s: %w", name, ErrOverflow)
	}
	return z, nil
}
