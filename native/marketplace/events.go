package marketplace

import (
	"encoding/hex"
	"strconv"

	"marketchain/core/types"
)

const (
	EventTypeProductListed     = "marketplace.listed"
	EventTypeProductSold       = "marketplace.sold"
	EventTypeDeliveryConfirmed = "marketplace.delivery_confirmed"
)

// NewListedEvent returns the canonical event payload for a new listing.
func NewListedEvent(p *Product) *types.Event { return newProductEvent(EventTypeProductListed, p) }

// NewSoldEvent returns the canonical event payload emitted when a buyer
// purchases a product and the payment enters custody.
func NewSoldEvent(p *Product) *types.Event { return newProductEvent(EventTypeProductSold, p) }

// NewDeliveryConfirmedEvent returns the canonical event payload emitted when
// the buyer confirms delivery and escrow is released.
func NewDeliveryConfirmedEvent(p *Product) *types.Event {
	return newProductEvent(EventTypeDeliveryConfirmed, p)
}

func newProductEvent(eventType string, p *Product) *types.Event {
	attrs := make(map[string]string)
	if p == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeProduct(p)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(sanitized.ID, 10)
	attrs["name"] = sanitized.Name
	attrs["price"] = sanitized.Price.String()
	attrs["seller"] = hex.EncodeToString(sanitized.Seller[:])
	attrs["sold"] = strconv.FormatBool(sanitized.Sold)
	attrs["confirmed"] = strconv.FormatBool(sanitized.Confirmed)
	if sanitized.Buyer != ([20]byte{}) {
		attrs["buyer"] = hex.EncodeToString(sanitized.Buyer[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
