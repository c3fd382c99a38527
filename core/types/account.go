package types

import "math/big"

// Account tracks the settlement-asset holdings of a single address. The ledger
// keeps one balance per account regardless of the deployed settlement variant;
// the variant only changes how payments enter custody.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// EnsureDefaults normalises nil fields so callers never observe a nil balance.
func (a *Account) EnsureDefaults() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	return a
}
