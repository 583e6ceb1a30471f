package wei

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ether(s string) *big.Int {
	v, err := ParseUnits(decimal.RequireFromString(s), 18)
	if err != nil {
		panic(err)
	}
	return v
}

func TestParseUnits(t *testing.T) {
	v, err := ParseUnits(decimal.NewFromInt(300), 18)
	require.NoError(t, err)
	assert.Equal(t, "300000000000000000000", v.String())

	v, err = ParseUnits(decimal.RequireFromString("1.5"), 6)
	require.NoError(t, err)
	assert.Equal(t, "1500000", v.String())
}

func TestParseUnits_TooManyDecimals(t *testing.T) {
	_, err := ParseUnits(decimal.RequireFromString("0.0000001"), 6)
	assert.True(t, errors.Is(err, ErrFractionalUnits))
}

func TestFormatUnits_RoundTrip(t *testing.T) {
	v := ether("446.859356779260032153")
	assert.Equal(t, "446.859356779260032153", FormatEther(v))
	assert.True(t, FormatUnits(big.NewInt(1500000), 6).Equal(decimal.RequireFromString("1.5")))
}

func TestMulDiv_TruncatesTowardZero(t *testing.T) {
	assert.Equal(t, int64(3), MulDiv(big.NewInt(7), big.NewInt(1), big.NewInt(2)).Int64())
	assert.Equal(t, int64(-3), MulDiv(big.NewInt(-7), big.NewInt(1), big.NewInt(2)).Int64())
}

func TestHaircut(t *testing.T) {
	got := Haircut(ether("-50.000418499872723281"), 30)
	assert.Equal(t, ether("-49.850417244373105111").String(), got.String())

	got = Haircut(ether("-106.281286441479935694"), 30)
	assert.Equal(t, ether("-105.962442582155495886").String(), got.String())

	assert.Equal(t, int64(100), Haircut(big.NewInt(100), 0).Int64())
	assert.Equal(t, int64(0), Haircut(big.NewInt(100), 10000).Int64())
}

func TestFromDecimal(t *testing.T) {
	v, err := FromDecimal(decimal.RequireFromString("1000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(E18))

	_, err = FromDecimal(decimal.RequireFromString("1.25"))
	assert.True(t, errors.Is(err, ErrNotInteger))

	assert.True(t, ToDecimal(nil).IsZero())
	assert.Equal(t, "-42", ToDecimal(big.NewInt(-42)).String())
}
