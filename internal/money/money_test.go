package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArithmetic(t *testing.T) {
	a := MustParse("10.50")
	b := MustParse("0.25")

	assert.Equal(t, "10.75", a.Add(b).String())
	assert.Equal(t, "10.25", a.Sub(b).String())
	assert.Equal(t, "2.625", a.Mul(b).String())
	assert.Equal(t, "42", a.Div(b).String())
	assert.Equal(t, "-10.5", a.Neg().String())
	assert.Equal(t, "21", a.MulInt(2).String())
}

func TestClampZero(t *testing.T) {
	assert.Equal(t, "0", MustParse("-3.14").ClampZero().String())
	assert.Equal(t, "3.14", MustParse("3.14").ClampZero().String())
	assert.Equal(t, "0", Zero().ClampZero().String())
}

func TestPercent(t *testing.T) {
	base := MustParse("94.50")
	tax := base.Percent(MustParse("7.5"))
	assert.Equal(t, "7.0875", tax.String())
	assert.Equal(t, "7.09", tax.RoundCurrency().String())
}

func TestRoundQuantity(t *testing.T) {
	q := MustParse("2").MulInt(1).Mul(MustParse("1.10"))
	assert.Equal(t, "2.2", q.RoundQuantity().String())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-number")
	require.Error(t, err)
}

func TestZeroValueUsable(t *testing.T) {
	var a Amount
	assert.True(t, a.IsZero())
	assert.Equal(t, "1", a.Add(FromInt(1)).String())
}

func TestJSONRoundTrip(t *testing.T) {
	a := MustParse("12.30")

	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, "12.3", string(data))

	var back Amount
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, a.Equal(back))

	var quoted Amount
	require.NoError(t, json.Unmarshal([]byte(`"7.25"`), &quoted))
	assert.Equal(t, "7.25", quoted.String())
}

func TestScanValue(t *testing.T) {
	var a Amount
	require.NoError(t, a.Scan("19.99"))
	assert.Equal(t, "19.99", a.String())

	v, err := a.Value()
	require.NoError(t, err)
	assert.Equal(t, "19.99", v)
}
