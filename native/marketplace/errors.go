package marketplace

import "errors"

// Every failure below rejects the triggering call outright; the engine never
// retries internally and never leaves partial state behind.
var (
	// ErrInvalidPrice rejects listings with a non-positive price.
	ErrInvalidPrice = errors.New("marketplace: price must be greater than zero")
	// ErrProductNotFound rejects references to ids outside the assigned range.
	ErrProductNotFound = errors.New("marketplace: product does not exist")
	// ErrAlreadySold rejects purchases of a product that already has a buyer.
	ErrAlreadySold = errors.New("marketplace: product already sold")
	// ErrInvalidPayment rejects payments that do not exactly equal the price.
	ErrInvalidPayment = errors.New("marketplace: payment does not match price")
	// ErrAlreadyConfirmed rejects repeated delivery confirmations.
	ErrAlreadyConfirmed = errors.New("marketplace: delivery already confirmed")
	// ErrNotBuyer rejects confirmations from anyone but the recorded buyer.
	ErrNotBuyer = errors.New("marketplace: caller is not the buyer")
	// ErrTransferFailed wraps rejections from the settlement asset's transfer
	// primitive. Always fatal to the enclosing call.
	ErrTransferFailed = errors.New("marketplace: settlement transfer failed")
)
