package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRoundTripThroughDriver(t *testing.T) {
	in := JSON{"amount": 250.5, "is_foreign": true}
	v, err := in.Value()
	require.NoError(t, err)

	var out JSON
	require.NoError(t, out.Scan(v))
	assert.Equal(t, 250.5, out["amount"])
	assert.Equal(t, true, out["is_foreign"])

	require.NoError(t, out.Scan(`{"tx_per_hour": 3}`))
	assert.Equal(t, float64(3), out["tx_per_hour"])

	require.NoError(t, out.Scan(nil))
	assert.Nil(t, out)
	assert.Error(t, out.Scan(42))

	v, err = JSON(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
