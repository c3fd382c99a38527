package marketplace

import (
	"fmt"
	"math/big"
)

// Product captures a single listing managed by the marketplace ledger. IDs are
// 1-based and assigned monotonically from the ledger's counter; prices are
// stored in the settlement asset's base units. Seller is fixed at listing,
// buyer at purchase, and neither field is ever rewritten afterwards.
type Product struct {
	ID        uint64
	Name      string
	Price     *big.Int
	Seller    [20]byte
	Buyer     [20]byte
	Sold      bool
	Confirmed bool
}

// Clone returns a deep copy of the product so callers can safely mutate the
// copy without affecting the stored instance.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Price != nil {
		clone.Price = new(big.Int).Set(p.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// SanitizeProduct validates the supplied product record, returning a cloned
// instance with a non-nil price field. The function does not mutate the
// original value.
func SanitizeProduct(p *Product) (*Product, error) {
	if p == nil {
		return nil, fmt.Errorf("nil product")
	}
	clone := p.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("product id must be positive")
	}
	if clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("product price must be positive")
	}
	if clone.Confirmed && !clone.Sold {
		return nil, fmt.Errorf("product cannot be confirmed before it is sold")
	}
	if !clone.Sold && clone.Buyer != ([20]byte{}) {
		return nil, fmt.Errorf("unsold product cannot have a buyer")
	}
	return clone, nil
}
