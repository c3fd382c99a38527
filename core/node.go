package core

import (
	"errors"
	"math/big"
	"sync"

	"marketchain/core/events"
	"marketchain/core/state"
	"marketchain/native/marketplace"
	"marketchain/native/marketplace/settlement"
	"marketchain/storage"
)

// GenesisAlloc seeds an initial settlement balance for an address.
type GenesisAlloc struct {
	Address [20]byte
	Balance *big.Int
}

// Node wires the marketplace engine to persistent state and serialises every
// operation behind a single mutex, matching the host transaction model the
// ledger assumes: no two calls interleave. Each mutating operation commits
// the state trie on success and rolls back to the last committed root on
// failure, so a failed call leaves no trace.
type Node struct {
	mu       sync.Mutex
	state    *state.Manager
	engine   *marketplace.Engine
	recorder *events.Recorder
	asset    settlement.Asset
}

// NewNode constructs a node over the supplied database with the settlement
// variant fixed for the lifetime of the deployment.
func NewNode(db storage.Database, asset settlement.Asset) (*Node, error) {
	manager, err := state.NewManager(db)
	if err != nil {
		return nil, err
	}
	engine := marketplace.NewEngine(asset)
	engine.SetState(manager)
	recorder := events.NewRecorder()
	engine.SetEmitter(recorder)
	return &Node{
		state:    manager,
		engine:   engine,
		recorder: recorder,
		asset:    asset,
	}, nil
}

// finalize commits the state trie after a successful operation and rolls back
// to the last committed root after a failed one.
func (n *Node) finalize(err error) error {
	if err != nil {
		if resetErr := n.state.Reset(); resetErr != nil {
			return errors.Join(err, resetErr)
		}
		return err
	}
	return n.state.Commit()
}

// ApplyGenesis seeds initial balances exactly once per data directory.
func (n *Node) ApplyGenesis(alloc []GenesisAlloc) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.finalize(n.applyGenesis(alloc))
}

func (n *Node) applyGenesis(alloc []GenesisAlloc) error {
	applied, err := n.state.GenesisApplied()
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	for _, entry := range alloc {
		if entry.Balance == nil || entry.Balance.Sign() <= 0 {
			continue
		}
		if err := n.state.SetBalance(entry.Address, entry.Balance); err != nil {
			return err
		}
	}
	return n.state.SetGenesisApplied()
}

// Asset returns the deployed settlement variant.
func (n *Node) Asset() settlement.Asset { return n.asset }

// ListProduct registers a new listing on behalf of the seller.
func (n *Node) ListProduct(seller [20]byte, name string, price *big.Int) (*marketplace.Product, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	product, err := n.engine.ListProduct(seller, name, price)
	if err := n.finalize(err); err != nil {
		return nil, err
	}
	return product, nil
}

// BuyProduct purchases the identified product on behalf of the buyer.
func (n *Node) BuyProduct(buyer [20]byte, id uint64, payment *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.finalize(n.engine.BuyProduct(buyer, id, payment))
}

// ConfirmDelivery finalises a purchase and releases escrow to the seller.
func (n *Node) ConfirmDelivery(caller [20]byte, id uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.finalize(n.engine.ConfirmDelivery(caller, id))
}

// GetProduct returns the identified product.
func (n *Node) GetProduct(id uint64) (*marketplace.Product, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetProduct(id)
}

// ProductCount returns the number of products ever listed.
func (n *Node) ProductCount() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.ProductCount()
}

// Approve records a pull allowance for the module vault. It fails when the
// node settles in native currency.
func (n *Node) Approve(owner [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	token, ok := n.asset.(*settlement.TokenAsset)
	if !ok {
		return settlement.ErrApproveUnsupported
	}
	return n.finalize(token.Approve(n.state, owner, amount))
}

// Allowance reports the remaining vault allowance for the owner. It fails
// when the node settles in native currency.
func (n *Node) Allowance(owner [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	token, ok := n.asset.(*settlement.TokenAsset)
	if !ok {
		return nil, settlement.ErrApproveUnsupported
	}
	return token.Allowance(n.state, owner)
}

// Balance reports the settlement balance held by the address.
func (n *Node) Balance(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Balance(addr)
}

// VaultBalance reports the funds currently custodied by the ledger.
func (n *Node) VaultBalance() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Balance(n.engine.Vault())
}

// Events returns recorded marketplace events filtered by type prefix.
func (n *Node) Events(prefix string, limit int) []events.Recorded {
	return n.recorder.List(prefix, limit)
}
