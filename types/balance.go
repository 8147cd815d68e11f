package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var ErrInvalidAmount = errors.New("amount must be a non-negative whole number of base units")

// Balance is the wallet snapshot exchanged with the mobile wallet service.
// Amounts are in the smallest unit of each asset; the *Decimal fields are the
// same amounts scaled by the asset's decimals. Amounts are written as JSON
// integers and read from integers, integral floats (1000000.0, 1e6) or
// decimal strings.
type Balance struct {
	Timestamp float64 `json:"timestamp"`

	Native *big.Int `json:"MATIC"`
	AToken *big.Int `json:"amUSDC"`
	Token  *big.Int `json:"USDC"`

	NativeDecimal float64 `json:"MATIC_decimal"`
	ATokenDecimal float64 `json:"amUSDC_decimal"`
	TokenDecimal  float64 `json:"USDC_decimal"`
}

func (b *Balance) UnmarshalJSON(input []byte) error {
	type balance Balance
	var dec struct {
		*balance
		Native json.RawMessage `json:"MATIC"`
		AToken json.RawMessage `json:"amUSDC"`
		Token  json.RawMessage `json:"USDC"`
	}
	dec.balance = (*balance)(b)
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	var err error
	if b.Native, err = parseAmount("MATIC", dec.Native); err != nil {
		return err
	}
	if b.AToken, err = parseAmount("amUSDC", dec.AToken); err != nil {
		return err
	}
	if b.Token, err = parseAmount("USDC", dec.Token); err != nil {
		return err
	}
	return nil
}

func parseAmount(field string, raw json.RawMessage) (*big.Int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	text := strings.Trim(string(raw), `"`)
	if v, ok := new(big.Int).SetString(text, 10); ok {
		if v.Sign() < 0 {
			return nil, fmt.Errorf("%s: %w", field, ErrInvalidAmount)
		}
		return v, nil
	}
	f, _, err := big.ParseFloat(text, 10, 256, big.ToNearestEven)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", field, ErrInvalidAmount, raw)
	}
	v, acc := f.Int(nil)
	if acc != big.Exact || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: %w: %s", field, ErrInvalidAmount, raw)
	}
	return v, nil
}

// ToDecimal scales an integer amount down by 10^decimals.
func ToDecimal(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), scale).Float64()
	return f
}
