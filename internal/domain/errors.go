package domain

import (
	"errors"
	"fmt"
)

// Environment-level failures. These are distinct from the auction taxonomy
// below: they describe missing accounts, balances, signatures and derivation
// proofs rather than a violated auction rule.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidSeeds       = errors.New("invalid seeds: derived address mismatch")
	ErrMissingSignature   = errors.New("missing required signature")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrInvalidAccountData = errors.New("invalid account data")
	ErrMintMismatch       = errors.New("token mint mismatch")
	ErrOwnerMismatch      = errors.New("token account owner mismatch")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrReplayed           = errors.New("request already processed")
	ErrStaleRequest       = errors.New("request outside validity window")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLockHeld           = errors.New("lock already held")
)

// AuctionError is a terminal, non-retryable rejection raised by the auction
// controller. The set of codes is closed; see the Err* values below.
type AuctionError struct {
	Code uint32
	Name string
	Msg  string
}

// Error implements the error interface.
func (e *AuctionError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

// Is matches any AuctionError carrying the same code.
func (e *AuctionError) Is(target error) bool {
	t, ok := target.(*AuctionError)
	return ok && t.Code == e.Code
}

const auctionErrorBase uint32 = 6000

var (
	ErrProxyClose = &AuctionError{
		Code: auctionErrorBase + 0,
		Name: "ProxyClose",
		Msg:  "only the auction authority may close the auction",
	}
	ErrAuctionEarly = &AuctionError{
		Code: auctionErrorBase + 1,
		Name: "AuctionEarly",
		Msg:  "auction has not started yet",
	}
	ErrAuctionLate = &AuctionError{
		Code: auctionErrorBase + 2,
		Name: "AuctionLate",
		Msg:  "auction has already ended",
	}
	ErrInvalidDateRange = &AuctionError{
		Code: auctionErrorBase + 3,
		Name: "InvalidDateRange",
		Msg:  "starting time must be before ending time",
	}
	ErrInvalidStartDate = &AuctionError{
		Code: auctionErrorBase + 4,
		Name: "InvalidStartDate",
		Msg:  "starting time must not be in the past",
	}
	ErrMismatchedOwners = &AuctionError{
		Code: auctionErrorBase + 5,
		Name: "MismatchedOwners",
		Msg:  "declared auction owner does not match the auction authority",
	}
)

// AuctionErrors lists the closed taxonomy in code order.
var AuctionErrors = []*AuctionError{
	ErrProxyClose,
	ErrAuctionEarly,
	ErrAuctionLate,
	ErrInvalidDateRange,
	ErrInvalidStartDate,
	ErrMismatchedOwners,
}

// IsDomainError reports whether err (or anything it wraps) belongs to the
// auction taxonomy.
func IsDomainError(err error) bool {
	var ae *AuctionError
	return errors.As(err, &ae)
}
