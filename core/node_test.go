package core

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"marketchain/native/marketplace"
	"marketchain/native/marketplace/settlement"
	"marketchain/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTokenNode(t *testing.T) *Node {
	t.Helper()
	asset, err := settlement.NewTokenAsset("USDC", 6)
	if err != nil {
		t.Fatalf("token asset: %v", err)
	}
	node, err := NewNode(storage.NewMemDB(), asset)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func TestApplyGenesisIsIdempotent(t *testing.T) {
	node := newTokenNode(t)
	addr := testAddr(0x01)
	alloc := []GenesisAlloc{{Address: addr, Balance: big.NewInt(1_000)}}

	if err := node.ApplyGenesis(alloc); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// A second application (e.g. node restart) must not mint again.
	if err := node.ApplyGenesis(alloc); err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	balance, err := node.Balance(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("expected balance 1000, got %s", balance)
	}
}

func TestNodeFullPurchaseFlow(t *testing.T) {
	node := newTokenNode(t)
	seller := testAddr(0x01)
	buyer := testAddr(0x02)

	if err := node.ApplyGenesis([]GenesisAlloc{{Address: buyer, Balance: big.NewInt(100_000_000)}}); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if err := node.Approve(buyer, big.NewInt(100_000_000)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	product, err := node.ListProduct(seller, "Product 1", big.NewInt(100))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	count, err := node.ProductCount()
	if err != nil || count != 1 {
		t.Fatalf("expected count 1, got %d (err=%v)", count, err)
	}

	if err := node.BuyProduct(buyer, product.ID, big.NewInt(100)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	custody, err := node.VaultBalance()
	if err != nil {
		t.Fatalf("vault balance: %v", err)
	}
	if custody.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Fatalf("expected custody 100000000, got %s", custody)
	}

	if err := node.ConfirmDelivery(buyer, product.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	sellerBal, err := node.Balance(seller)
	if err != nil {
		t.Fatalf("seller balance: %v", err)
	}
	if sellerBal.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Fatalf("expected seller payout, got %s", sellerBal)
	}

	final, err := node.GetProduct(product.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !final.Sold || !final.Confirmed || final.Buyer != buyer {
		t.Fatalf("final product state incomplete: %+v", final)
	}

	recorded := node.Events("marketplace.", 0)
	if len(recorded) != 3 {
		t.Fatalf("expected 3 recorded events, got %d", len(recorded))
	}
}

func TestNodeApproveRequiresTokenSettlement(t *testing.T) {
	node, err := NewNode(storage.NewMemDB(), settlement.NewNativeAsset("MKT"))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if err := node.Approve(testAddr(0x01), big.NewInt(100)); !errors.Is(err, settlement.ErrApproveUnsupported) {
		t.Fatalf("expected ErrApproveUnsupported, got %v", err)
	}
	if _, err := node.Allowance(testAddr(0x01)); !errors.Is(err, settlement.ErrApproveUnsupported) {
		t.Fatalf("expected ErrApproveUnsupported, got %v", err)
	}
}

func TestNodeStateSurvivesReopen(t *testing.T) {
	db := storage.NewMemDB()
	asset, err := settlement.NewTokenAsset("USDC", 6)
	if err != nil {
		t.Fatalf("token asset: %v", err)
	}
	node, err := NewNode(db, asset)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	seller := testAddr(0x01)
	if err := node.ApplyGenesis([]GenesisAlloc{{Address: seller, Balance: big.NewInt(500)}}); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	product, err := node.ListProduct(seller, "Product 1", big.NewInt(100))
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	reopened, err := NewNode(db, asset)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	loaded, err := reopened.GetProduct(product.ID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if loaded.Name != "Product 1" || loaded.Price.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Fatalf("unexpected product after reopen: %+v", loaded)
	}
	balance, err := reopened.Balance(seller)
	if err != nil {
		t.Fatalf("balance after reopen: %v", err)
	}
	if balance.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected balance 500 after reopen, got %s", balance)
	}
	// The genesis flag must survive the reopen as well.
	if err := reopened.ApplyGenesis([]GenesisAlloc{{Address: seller, Balance: big.NewInt(500)}}); err != nil {
		t.Fatalf("re-apply genesis: %v", err)
	}
	balance, err = reopened.Balance(seller)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("genesis re-applied after reopen, balance %s", balance)
	}
}

func TestNodeGetProductUnknown(t *testing.T) {
	node := newTokenNode(t)
	if _, err := node.GetProduct(1); !errors.Is(err, marketplace.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}
