package state

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"marketchain/core/types"
	"marketchain/native/marketplace"
	"marketchain/storage"
	"marketchain/storage/trie"
)

// Manager provides typed access to ledger state held in the merkle trie.
// Keys are prefixed per record family and hashed with keccak256 before
// insertion; values are RLP encoded. Mutations accumulate in the trie until
// Commit persists them and advances the stored root, or Reset discards them.
type Manager struct {
	tr   *trie.Trie
	root common.Hash
}

// stateRootKey is the flat storage key holding the last committed trie root.
// It is deliberately not hashed so it can never collide with a trie node key.
var stateRootKey = []byte("marketplace/state-root")

// NewManager opens a state manager over the database, loading the trie at the
// last committed root. A fresh database starts from the empty trie.
func NewManager(db storage.Database) (*Manager, error) {
	root, err := db.Get(stateRootKey)
	if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("state: load root: %w", err)
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("state: open trie: %w", err)
	}
	return &Manager{tr: tr, root: tr.Root()}, nil
}

// Commit persists pending mutations and advances the stored root pointer.
func (m *Manager) Commit() error {
	root, err := m.tr.Commit()
	if err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	if err := m.tr.Store().Put(stateRootKey, root.Bytes()); err != nil {
		return fmt.Errorf("state: persist root: %w", err)
	}
	m.root = root
	return nil
}

// Reset discards pending mutations, reloading state at the last committed
// root.
func (m *Manager) Reset() error {
	return m.tr.Reset(m.root)
}

var (
	accountPrefix   = []byte("account:")
	allowancePrefix = []byte("allowance:")
	productPrefix   = []byte("marketplace/product/")
	productCountKey = ethcrypto.Keccak256([]byte("marketplace/product-count"))
	genesisFlagKey  = ethcrypto.Keccak256([]byte("marketplace/genesis-applied"))
)

func accountKey(addr [20]byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func allowanceKey(owner, spender [20]byte) []byte {
	buf := make([]byte, len(allowancePrefix)+len(owner)+1+len(spender))
	copy(buf, allowancePrefix)
	copy(buf[len(allowancePrefix):], owner[:])
	buf[len(allowancePrefix)+len(owner)] = ':'
	copy(buf[len(allowancePrefix)+len(owner)+1:], spender[:])
	return ethcrypto.Keccak256(buf)
}

func productKey(id uint64) []byte {
	buf := append(append([]byte(nil), productPrefix...), strconv.FormatUint(id, 10)...)
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	data, err := m.tr.Get(key)
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	return data, true, nil
}

// GetAccount loads the account stored for the address. Unknown addresses
// yield a zero-balance account rather than an error.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	data, ok, err := m.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&types.Account{}).EnsureDefaults(), nil
	}
	account := new(types.Account)
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	return account.EnsureDefaults(), nil
}

// PutAccount persists the account under the address key.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	encoded, err := rlp.EncodeToBytes(account.EnsureDefaults())
	if err != nil {
		return err
	}
	return m.tr.Update(accountKey(addr), encoded)
}

// Balance reports the settlement balance held by the address.
func (m *Manager) Balance(addr [20]byte) (*big.Int, error) {
	account, err := m.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Balance), nil
}

// SetBalance stores the settlement balance for the address, preserving the
// remaining account fields.
func (m *Manager) SetBalance(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: balance must be non-negative")
	}
	account, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Set(amount)
	return m.PutAccount(addr, account)
}

// Allowance reports the amount the spender may pull from the owner.
func (m *Manager) Allowance(owner, spender [20]byte) (*big.Int, error) {
	data, ok, err := m.get(allowanceKey(owner, spender))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	allowance := new(big.Int)
	if err := rlp.DecodeBytes(data, allowance); err != nil {
		return nil, fmt.Errorf("state: decode allowance: %w", err)
	}
	return allowance, nil
}

// SetAllowance stores the amount the spender may pull from the owner.
func (m *Manager) SetAllowance(owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: allowance must be non-negative")
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return m.tr.Update(allowanceKey(owner, spender), encoded)
}

// ProductPut persists the product after validating it.
func (m *Manager) ProductPut(p *marketplace.Product) error {
	sanitized, err := marketplace.SanitizeProduct(p)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(sanitized)
	if err != nil {
		return err
	}
	return m.tr.Update(productKey(sanitized.ID), encoded)
}

// ProductGet loads the product stored under the id. The boolean reports
// whether the id has ever been assigned.
func (m *Manager) ProductGet(id uint64) (*marketplace.Product, bool, error) {
	if id == 0 {
		return nil, false, nil
	}
	data, ok, err := m.get(productKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	product := new(marketplace.Product)
	if err := rlp.DecodeBytes(data, product); err != nil {
		return nil, false, fmt.Errorf("state: decode product: %w", err)
	}
	return product, true, nil
}

// ProductCount reports the number of products ever listed.
func (m *Manager) ProductCount() (uint64, error) {
	data, ok, err := m.get(productCountKey)
	if err != nil || !ok {
		return 0, err
	}
	var count uint64
	if err := rlp.DecodeBytes(data, &count); err != nil {
		return 0, fmt.Errorf("state: decode product count: %w", err)
	}
	return count, nil
}

// SetProductCount stores the running product counter.
func (m *Manager) SetProductCount(count uint64) error {
	encoded, err := rlp.EncodeToBytes(count)
	if err != nil {
		return err
	}
	return m.tr.Update(productCountKey, encoded)
}

// GenesisApplied reports whether initial balances have been seeded.
func (m *Manager) GenesisApplied() (bool, error) {
	_, ok, err := m.get(genesisFlagKey)
	return ok, err
}

// SetGenesisApplied marks the initial balance seeding as complete so restarts
// do not mint twice.
func (m *Manager) SetGenesisApplied() error {
	return m.tr.Update(genesisFlagKey, []byte{1})
}
