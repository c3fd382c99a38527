package marketplace

import (
	"math/big"
	"testing"
)

func TestSanitizeProduct(t *testing.T) {
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)

	valid := &Product{ID: 1, Name: "Widget", Price: big.NewInt(100), Seller: seller}
	if _, err := SanitizeProduct(valid); err != nil {
		t.Fatalf("valid product rejected: %v", err)
	}

	cases := []struct {
		name    string
		product *Product
	}{
		{"nil", nil},
		{"zero id", &Product{ID: 0, Price: big.NewInt(1)}},
		{"nil price", &Product{ID: 1}},
		{"zero price", &Product{ID: 1, Price: big.NewInt(0)}},
		{"negative price", &Product{ID: 1, Price: big.NewInt(-1)}},
		{"confirmed before sold", &Product{ID: 1, Price: big.NewInt(1), Confirmed: true}},
		{"buyer without sale", &Product{ID: 1, Price: big.NewInt(1), Buyer: buyer}},
	}
	for _, tc := range cases {
		if _, err := SanitizeProduct(tc.product); err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
	}
}

func TestProductCloneIsIndependent(t *testing.T) {
	original := &Product{ID: 1, Name: "Widget", Price: big.NewInt(100), Seller: newTestAddress(0x01)}
	clone := original.Clone()
	clone.Price.SetInt64(999)
	clone.Sold = true
	if original.Price.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("mutating the clone changed the original price")
	}
	if original.Sold {
		t.Fatalf("mutating the clone changed the original flags")
	}
}

func TestProductEventOmitsUnsetBuyer(t *testing.T) {
	evt := NewListedEvent(&Product{ID: 1, Name: "Widget", Price: big.NewInt(100), Seller: newTestAddress(0x01)})
	if evt.Type != EventTypeProductListed {
		t.Fatalf("unexpected event type %s", evt.Type)
	}
	if _, ok := evt.Attributes["buyer"]; ok {
		t.Fatalf("listed event must not carry a buyer attribute")
	}
	if evt.Attributes["id"] != "1" || evt.Attributes["price"] != "100" {
		t.Fatalf("unexpected attributes: %v", evt.Attributes)
	}
}
