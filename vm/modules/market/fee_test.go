package market

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/core"
)

func TestComputeFeeExamples(t *testing.T) {
	tests := []struct {
		price       uint64
		bps         uint16
		fee, seller uint64
	}{
		{1_000_000, 250, 25_000, 975_000},
		{1, 250, 0, 1},
		{39, 250, 0, 39},
		{40, 250, 1, 39},
		{100, 0, 0, 100},
		{100, 10_000, 100, 0},
		{math.MaxUint64, 10_000, math.MaxUint64, 0},
		{math.MaxUint64, 1, math.MaxUint64 / 10_000, math.MaxUint64 - math.MaxUint64/10_000},
	}
	for _, tt := range tests {
		fee, seller, err := ComputeFee(tt.price, tt.bps)
		require.NoError(t, err)
		assert.Equal(t, tt.fee, fee, "fee(%d, %d)", tt.price, tt.bps)
		assert.Equal(t, tt.seller, seller, "seller(%d, %d)", tt.price, tt.bps)
	}
}

func TestComputeFeeAllBasisPoints(t *testing.T) {
	prices := []uint64{0, 1, 9_999, 10_000, 10_001, 123_456_789, math.MaxUint64 / 3, math.MaxUint64 - 1, math.MaxUint64}
	div := big.NewInt(core.MaxFeeBasisPoints)
	for bps := 0; bps <= core.MaxFeeBasisPoints; bps++ {
		for _, price := range prices {
			fee, seller, err := ComputeFee(price, uint16(bps))
			require.NoError(t, err)
			require.Equal(t, price, fee+seller)

			want := new(big.Int).Mul(new(big.Int).SetUint64(price), big.NewInt(int64(bps)))
			want.Quo(want, div)
			require.Equal(t, want.Uint64(), fee, "price %d bps %d", price, bps)
		}
	}
}

func TestComputeFeeRejectsExcessiveRate(t *testing.T) {
	_, _, err := ComputeFee(100, core.MaxFeeBasisPoints+1)
	require.ErrorIs(t, err, core.ErrInvalidFee)
}
