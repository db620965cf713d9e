package models

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrUnsupportedCurrency means the (network, currency) pair has no entry in
// the token table. This is a permanent configuration error, not a transient
// one: the payment cannot be advanced automatically.
var ErrUnsupportedCurrency = errors.New("unsupported currency for network")

// TokenInfo describes how a currency is represented on a chain. A token with
// an empty ContractAddress is the chain's native currency.
type TokenInfo struct {
	Symbol          string
	Decimals        int32
	ContractAddress string
}

func (t TokenInfo) Native() bool {
	return t.ContractAddress == ""
}

// ToRawUnits converts a decimal amount into the chain's integer unit. It
// fails when the amount carries more precision than the token can represent,
// since such an amount can never match any on-chain transfer exactly.
func (t TokenInfo) ToRawUnits(amount decimal.Decimal) (*big.Int, error) {
	shifted := amount.Shift(t.Decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %s is not representable in %d decimals", amount, t.Decimals)
	}
	return shifted.BigInt(), nil
}

// FromRawUnits is the inverse conversion, used to report received amounts in
// the payment's own currency.
func (t TokenInfo) FromRawUnits(raw *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(raw, 0).Shift(-t.Decimals)
}

var tokenTable = map[Network]map[string]TokenInfo{
	NetworkBSC: {
		"BNB":  {Symbol: "BNB", Decimals: 18},
		"USDT": {Symbol: "USDT", Decimals: 18, ContractAddress: "0x55d398326f99059fF775485246999027B3197955"},
		"USDC": {Symbol: "USDC", Decimals: 18, ContractAddress: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d"},
		"BUSD": {Symbol: "BUSD", Decimals: 18, ContractAddress: "0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56"},
	},
	NetworkTRON: {
		"TRX":  {Symbol: "TRX", Decimals: 6},
		"USDT": {Symbol: "USDT", Decimals: 6, ContractAddress: "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"},
		"USDC": {Symbol: "USDC", Decimals: 6, ContractAddress: "TEkxiTehnzSmSe2XqrBj4w32RUN966rdz8"},
	},
}

// ResolveToken maps a (network, currency) pair to its chain-specific
// metadata. An unknown pair is a permanent ErrUnsupportedCurrency.
func ResolveToken(network Network, currency string) (TokenInfo, error) {
	tokens, ok := tokenTable[network]
	if !ok {
		return TokenInfo{}, fmt.Errorf("%w: network %s", ErrUnsupportedCurrency, network)
	}
	token, ok := tokens[currency]
	if !ok {
		return TokenInfo{}, fmt.Errorf("%w: %s on %s", ErrUnsupportedCurrency, currency, network)
	}
	return token, nil
}
