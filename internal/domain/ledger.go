package domain

import "context"

// Ledger is the execution environment that holds every account. Each
// controller invocation runs inside one Atomically call: either all of its
// writes commit or none do, and invocations touching the same accounts are
// serialized.
type Ledger interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}

// LedgerTx is the account view available inside a transaction.
type LedgerTx interface {
	// Auction returns ErrNotFound when no record lives at addr.
	Auction(ctx context.Context, addr Pubkey) (AuctionAccount, error)
	// CreateAuction returns ErrAlreadyExists when addr is occupied.
	CreateAuction(ctx context.Context, acct AuctionAccount) error
	DeleteAuction(ctx context.Context, addr Pubkey) error
	ListAuctions(ctx context.Context, opts ListOpts) ([]AuctionAccount, error)

	Mint(ctx context.Context, addr Pubkey) (Mint, error)
	CreateMint(ctx context.Context, m Mint) error
	MintTo(ctx context.Context, mint, dest Pubkey, amount uint64) error

	TokenAccount(ctx context.Context, addr Pubkey) (TokenAccount, error)
	CreateTokenAccount(ctx context.Context, acct TokenAccount) error
	// CloseTokenAccount removes an empty token account and returns its final
	// state so the caller can refund the deposit.
	CloseTokenAccount(ctx context.Context, addr Pubkey) (TokenAccount, error)
	TransferTokens(ctx context.Context, from, to Pubkey, amount uint64) error

	SystemAccount(ctx context.Context, addr Pubkey) (SystemAccount, error)
	Credit(ctx context.Context, addr Pubkey, lamports uint64) error
	// Debit returns ErrInsufficientFunds when the balance is too small.
	Debit(ctx context.Context, addr Pubkey, lamports uint64) error
	TransferLamports(ctx context.Context, from, to Pubkey, lamports uint64) error
}
