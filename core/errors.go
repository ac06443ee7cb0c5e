package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Precondition violations. The transaction is reverted and the caller may
// retry with corrected input.
var (
	ErrAlreadyInitialized = errors.New("marketplace already initialized")
	ErrNotInitialized     = errors.New("marketplace not initialized")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidFee         = errors.New("fee basis points exceed 10000")
	ErrInvalidPrice       = errors.New("price must be > 0")
	ErrInvalidExpiry      = errors.New("expiry must be in the future")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrInvalidOwnership   = errors.New("caller does not hold exactly one unit of the asset")
	ErrAssetNotFound      = errors.New("asset not found")
	ErrRecordExists       = errors.New("an active record already exists at this key")
	ErrSelfTrade          = errors.New("seller cannot trade with themselves")

	ErrInactiveListing = errors.New("listing is not active")
	ErrInactiveOffer   = errors.New("offer is not active")
	ErrInactiveBid     = errors.New("bid is not active")
	ErrExpiredOffer    = errors.New("offer has expired")
	ErrExpiredBid      = errors.New("bid has expired")
	ErrNotSeller       = errors.New("caller is not the seller")
	ErrNotBuyer        = errors.New("caller is not the buyer")
	ErrNotBidder       = errors.New("caller is not the bidder")
	ErrNotOwner        = errors.New("caller does not own the asset")
)

// Funds and arithmetic faults.
var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrArithmeticUnderflow = errors.New("arithmetic underflow")
)
