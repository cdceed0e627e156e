package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRupees_RoundsHalfUp(t *testing.T) {
	assert.Equal(t, Money(12000), FromRupees(120))
	assert.Equal(t, Money(12346), FromRupees(123.455))
	assert.Equal(t, Money(1), FromRupees(0.005))
	assert.Equal(t, Money(0), FromRupees(0.004))
}

func TestMulQuantity(t *testing.T) {
	// 120.00 × 2.5 = 300.00
	assert.Equal(t, Money(30000), FromRupees(120).MulQuantity(2.5))
	// 95.00 × 0.333 = 31.635 -> 31.64
	assert.Equal(t, Money(3164), FromRupees(95).MulQuantity(0.333))
	assert.Equal(t, Money(0), FromRupees(50).MulQuantity(0))
}

func TestPercentBasisPoints(t *testing.T) {
	// 18% GST on 660.00 = 118.80
	assert.Equal(t, Money(11880), FromRupees(660).PercentBasisPoints(1800))
	// 9% on 0.01 rounds to 0.00
	assert.Equal(t, Money(0), Money(1).PercentBasisPoints(900))
}

func TestHalfPercentBasisPoints(t *testing.T) {
	// Half of 18% on 660.00 = 59.40
	assert.Equal(t, Money(5940), FromRupees(660).HalfPercentBasisPoints(1800))
	// Odd rates keep their half point: half of 2.25% on 10000.00 = 112.50,
	// not the 112.00 that halving 225 bps down to 112 would give.
	assert.Equal(t, Money(11250), FromRupees(10000).HalfPercentBasisPoints(225))
}

func TestString(t *testing.T) {
	assert.Equal(t, "660.00", FromRupees(660).String())
	assert.Equal(t, "0.05", Money(5).String())
	assert.Equal(t, "-12.50", Money(-1250).String())
}

func TestJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(FromRupees(790))
	require.NoError(t, err)
	assert.Equal(t, "790.00", string(data))

	var m Money
	require.NoError(t, json.Unmarshal([]byte("123.45"), &m))
	assert.Equal(t, Money(12345), m)
	require.NoError(t, json.Unmarshal([]byte(`"99.99"`), &m))
	assert.Equal(t, Money(9999), m)
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &m))
}
