package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceAmountForms(t *testing.T) {
	tests := []struct {
		name string
		body string
		want *big.Int
	}{
		{"integer", `{"USDC": 1000000}`, big.NewInt(1000000)},
		{"integral float", `{"USDC": 1000000.0}`, big.NewInt(1000000)},
		{"exponent", `{"USDC": 1e6}`, big.NewInt(1000000)},
		{"string", `{"USDC": "1000000"}`, big.NewInt(1000000)},
		{"wei", `{"USDC": 123456789012345678901234}`, func() *big.Int {
			v, _ := new(big.Int).SetString("123456789012345678901234", 10)
			return v
		}()},
		{"missing", `{}`, nil},
		{"null", `{"USDC": null}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Balance
			require.NoError(t, json.Unmarshal([]byte(tt.body), &b))
			assert.Equal(t, tt.want, b.Token)
		})
	}
}

func TestBalanceRejectsFractions(t *testing.T) {
	for _, body := range []string{`{"USDC": 1.5}`, `{"MATIC": -1}`, `{"amUSDC": "lots"}`} {
		var b Balance
		err := json.Unmarshal([]byte(body), &b)
		assert.ErrorIs(t, err, ErrInvalidAmount, body)
	}
}

func TestBalanceKeepsOtherFields(t *testing.T) {
	var b Balance
	body := `{"timestamp": 1630500000.5, "MATIC": 2000000000000000000, "USDC_decimal": 25.5}`
	require.NoError(t, json.Unmarshal([]byte(body), &b))
	assert.Equal(t, 1630500000.5, b.Timestamp)
	assert.Equal(t, 25.5, b.TokenDecimal)
	assert.Equal(t, "2000000000000000000", b.Native.String())

	out, err := json.Marshal(&b)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"MATIC":2000000000000000000`)
}
