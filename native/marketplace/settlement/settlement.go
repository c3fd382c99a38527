package settlement

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrInsufficientBalance is returned when the payer cannot cover the
	// requested amount.
	ErrInsufficientBalance = errors.New("settlement: insufficient balance")
	// ErrInsufficientAllowance is returned by the token variant when the
	// approved allowance does not cover the requested pull.
	ErrInsufficientAllowance = errors.New("settlement: insufficient allowance")
	// ErrApproveUnsupported is returned when an allowance operation is
	// attempted against the native-currency variant.
	ErrApproveUnsupported = errors.New("settlement: native settlement does not support allowances")
)

// State is the balance and allowance surface the settlement layer mutates.
// The ledger's state manager satisfies it.
type State interface {
	Balance(addr [20]byte) (*big.Int, error)
	SetBalance(addr [20]byte, amount *big.Int) error
	Allowance(owner, spender [20]byte) (*big.Int, error)
	SetAllowance(owner, spender [20]byte, amount *big.Int) error
}

// Asset abstracts the deployed settlement variant. Collect moves a payment
// from the payer into module custody; Payout releases custodied funds to a
// recipient. The variant is fixed at construction time and never switched at
// runtime.
type Asset interface {
	Symbol() string
	Decimals() uint8
	Collect(st State, payer, vault [20]byte, amount *big.Int) error
	Payout(st State, vault, payee [20]byte, amount *big.Int) error
}

// VaultAddress derives the custody address for the supplied asset symbol. The
// derivation is deterministic so every node agrees on where escrowed funds
// live without persisting the address.
func VaultAddress(symbol string) [20]byte {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	hash := ethcrypto.Keccak256([]byte("marketplace/vault/" + normalized))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// Scale converts a whole-unit amount into base units for the supplied decimal
// count. A nil amount scales to zero.
func Scale(amount *big.Int, decimals uint8) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(amount, factor)
}

func transfer(st State, from, to [20]byte, amount *big.Int) error {
	if st == nil {
		return fmt.Errorf("settlement: state not configured")
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("settlement: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBal, err := st.Balance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := st.Balance(to)
	if err != nil {
		return err
	}
	if err := st.SetBalance(from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return st.SetBalance(to, new(big.Int).Add(toBal, amount))
}

// NativeAsset settles purchases with the chain's own currency. The payment is
// the value attached to the purchase call, so collection is a direct debit of
// the payer. Native amounts are already in base units.
type NativeAsset struct {
	symbol string
}

// NewNativeAsset constructs the native-currency settlement variant.
func NewNativeAsset(symbol string) *NativeAsset {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		normalized = "MKT"
	}
	return &NativeAsset{symbol: normalized}
}

func (a *NativeAsset) Symbol() string { return a.symbol }

// Decimals is zero for the native variant: listed prices are interpreted as
// base units directly.
func (a *NativeAsset) Decimals() uint8 { return 0 }

// Collect debits the attached value from the payer into the vault.
func (a *NativeAsset) Collect(st State, payer, vault [20]byte, amount *big.Int) error {
	return transfer(st, payer, vault, amount)
}

// Payout releases custodied funds from the vault to the payee.
func (a *NativeAsset) Payout(st State, vault, payee [20]byte, amount *big.Int) error {
	return transfer(st, vault, payee, amount)
}

// TokenAsset settles purchases by pulling a pre-approved allowance from the
// buyer's token balance, mirroring the ERC-20 transferFrom flow. The spender
// identity is the module vault itself.
type TokenAsset struct {
	symbol   string
	decimals uint8
}

// NewTokenAsset constructs the fungible-token settlement variant.
func NewTokenAsset(symbol string, decimals uint8) (*TokenAsset, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return nil, fmt.Errorf("settlement: token symbol required")
	}
	if decimals > 18 {
		return nil, fmt.Errorf("settlement: token decimals out of range: %d", decimals)
	}
	return &TokenAsset{symbol: normalized, decimals: decimals}, nil
}

func (a *TokenAsset) Symbol() string { return a.symbol }

func (a *TokenAsset) Decimals() uint8 { return a.decimals }

// Approve records an allowance permitting the vault to pull up to amount from
// the owner's balance. Approvals overwrite rather than accumulate.
func (a *TokenAsset) Approve(st State, owner [20]byte, amount *big.Int) error {
	if st == nil {
		return fmt.Errorf("settlement: state not configured")
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("settlement: negative allowance")
	}
	return st.SetAllowance(owner, VaultAddress(a.symbol), new(big.Int).Set(amount))
}

// Allowance reports the remaining amount the vault may pull from owner.
func (a *TokenAsset) Allowance(st State, owner [20]byte) (*big.Int, error) {
	if st == nil {
		return nil, fmt.Errorf("settlement: state not configured")
	}
	return st.Allowance(owner, VaultAddress(a.symbol))
}

// Collect pulls the payment from the payer, consuming allowance first. The
// allowance and balance checks both complete before any mutation so a
// rejection leaves state untouched.
func (a *TokenAsset) Collect(st State, payer, vault [20]byte, amount *big.Int) error {
	if st == nil {
		return fmt.Errorf("settlement: state not configured")
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("settlement: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	allowance, err := st.Allowance(payer, vault)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	balance, err := st.Balance(payer)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := st.SetAllowance(payer, vault, new(big.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	return transfer(st, payer, vault, amount)
}

// Payout releases custodied funds from the vault to the payee.
func (a *TokenAsset) Payout(st State, vault, payee [20]byte, amount *big.Int) error {
	return transfer(st, vault, payee, amount)
}
