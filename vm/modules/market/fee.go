package market

import (
	"fmt"
	"math/bits"

	"github.com/tolelom/tolmarket/core"
)

// ComputeFee splits price into the marketplace fee and the seller's share.
//
//	fee    = floor(price * feeBasisPoints / 10000)
//	seller = price - fee
//
// The product is formed in 128 bits, so no price can overflow. Because
// feeBasisPoints <= 10000 the high word of the product is always below the
// divisor, which is the precondition of bits.Div64.
func ComputeFee(price uint64, feeBasisPoints uint16) (fee, sellerAmount uint64, err error) {
	if feeBasisPoints > core.MaxFeeBasisPoints {
		return 0, 0, fmt.Errorf("%w: %d", core.ErrInvalidFee, feeBasisPoints)
	}
	hi, lo := bits.Mul64(price, uint64(feeBasisPoints))
	fee, _ = bits.Div64(hi, lo, core.MaxFeeBasisPoints)
	if fee > price {
		return 0, 0, fmt.Errorf("fee %d exceeds price %d: %w", fee, price, core.ErrArithmeticUnderflow)
	}
	return fee, price - fee, nil
}
