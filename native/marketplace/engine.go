package marketplace

import (
	"errors"
	"fmt"
	"math/big"

	"marketchain/core/events"
	"marketchain/core/types"
	"marketchain/native/marketplace/settlement"
)

var (
	errNilState = errors.New("marketplace engine: state not configured")
	errNilAsset = errors.New("marketplace engine: settlement asset not configured")
)

type engineState interface {
	settlement.State
	ProductPut(*Product) error
	ProductGet(id uint64) (*Product, bool, error)
	ProductCount() (uint64, error)
	SetProductCount(count uint64) error
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine owns the product registry and escrowed funds. It enforces the full
// listing/purchase/confirmation state machine: products move monotonically
// from listed to sold to confirmed, payments sit in the module vault between
// purchase and confirmation, and every failure rejects the call without
// leaving partial state behind.
type Engine struct {
	state   engineState
	emitter events.Emitter
	asset   settlement.Asset
	vault   [20]byte
}

// NewEngine creates a marketplace engine for the supplied settlement variant
// with a no-op emitter. Callers can override the emitter via SetEmitter.
func NewEngine(asset settlement.Asset) *Engine {
	eng := &Engine{
		emitter: events.NoopEmitter{},
		asset:   asset,
	}
	if asset != nil {
		eng.vault = settlement.VaultAddress(asset.Symbol())
	}
	return eng
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Vault returns the address holding escrowed payments.
func (e *Engine) Vault() [20]byte { return e.vault }

// Asset returns the settlement variant the engine was constructed with.
func (e *Engine) Asset() settlement.Asset { return e.asset }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.asset == nil {
		return errNilAsset
	}
	return nil
}

func (e *Engine) loadProduct(id uint64) (*Product, error) {
	product, ok, err := e.state.ProductGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// ListProduct registers a new product for sale. The price is supplied in
// whole units and stored scaled to the settlement asset's base units. No
// funds move.
func (e *Engine) ListProduct(seller [20]byte, name string, price *big.Int) (*Product, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	count, err := e.state.ProductCount()
	if err != nil {
		return nil, err
	}
	product := &Product{
		ID:     count + 1,
		Name:   name,
		Price:  settlement.Scale(price, e.asset.Decimals()),
		Seller: seller,
	}
	if err := e.state.SetProductCount(product.ID); err != nil {
		return nil, err
	}
	if err := e.state.ProductPut(product); err != nil {
		if restoreErr := e.state.SetProductCount(count); restoreErr != nil {
			return nil, fmt.Errorf("%w (restore failed: %v)", err, restoreErr)
		}
		return nil, err
	}
	e.emit(NewListedEvent(product))
	return product.Clone(), nil
}

// BuyProduct purchases the identified product, moving the payment into the
// module vault. The payment is supplied in whole units and must scale to
// exactly the listed price. The product record is committed before the
// settlement pull runs; a rejected pull restores the unsold record so the
// call as a whole has no effect.
func (e *Engine) BuyProduct(buyer [20]byte, id uint64, payment *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	product, err := e.loadProduct(id)
	if err != nil {
		return err
	}
	if product.Sold {
		return ErrAlreadySold
	}
	if payment == nil || settlement.Scale(payment, e.asset.Decimals()).Cmp(product.Price) != 0 {
		return ErrInvalidPayment
	}
	previous := product.Clone()
	product.Buyer = buyer
	product.Sold = true
	if err := e.state.ProductPut(product); err != nil {
		return err
	}
	if err := e.asset.Collect(e.state, buyer, e.vault, product.Price); err != nil {
		if restoreErr := e.state.ProductPut(previous); restoreErr != nil {
			return fmt.Errorf("%w: %w (restore failed: %v)", ErrTransferFailed, err, restoreErr)
		}
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	e.emit(NewSoldEvent(product))
	return nil
}

// ConfirmDelivery marks the product as delivered and releases the escrowed
// payment to the seller. Only the recorded buyer may confirm, and only once.
// As with purchases, the confirmed record is committed before the payout and
// restored if the payout is rejected.
func (e *Engine) ConfirmDelivery(caller [20]byte, id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	product, err := e.loadProduct(id)
	if err != nil {
		return err
	}
	if product.Confirmed {
		return ErrAlreadyConfirmed
	}
	if !product.Sold || caller != product.Buyer {
		return ErrNotBuyer
	}
	previous := product.Clone()
	product.Confirmed = true
	if err := e.state.ProductPut(product); err != nil {
		return err
	}
	if err := e.asset.Payout(e.state, e.vault, product.Seller, product.Price); err != nil {
		if restoreErr := e.state.ProductPut(previous); restoreErr != nil {
			return fmt.Errorf("%w: %w (restore failed: %v)", ErrTransferFailed, err, restoreErr)
		}
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	e.emit(NewDeliveryConfirmedEvent(product))
	return nil
}

// GetProduct returns the identified product or ErrProductNotFound for ids
// outside the assigned range, so callers can distinguish "never listed" from
// a zero-valued record.
func (e *Engine) GetProduct(id uint64) (*Product, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	product, err := e.loadProduct(id)
	if err != nil {
		return nil, err
	}
	return product.Clone(), nil
}

// ProductCount reports the number of products ever listed, which is also the
// highest valid product id.
func (e *Engine) ProductCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.ProductCount()
}
