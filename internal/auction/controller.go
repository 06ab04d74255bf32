package auction

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// Invocation carries what the environment vouches for on one call: which
// identities signed and what time the ledger clock reads.
type Invocation struct {
	Signers domain.SignerSet
	Now     int64
}

// Result describes the accounts an invocation touched.
type Result struct {
	Account domain.AuctionAccount
	Escrow  domain.Pubkey
	Mint    domain.Pubkey
	Buyer   *domain.Pubkey
	// Price is the amount paid by the buyer; zero for initialize and close.
	Price uint64
	// Refunded is the storage deposit returned to the seller on termination.
	Refunded uint64
}

// Controller enforces the auction state machine against a ledger
// transaction. Every check runs before the first write, so a rejected
// invocation leaves the ledger untouched even without a rollback.
type Controller struct {
	programID domain.Pubkey
	rent      RentPolicy
}

// NewController creates a controller that derives addresses under programID.
func NewController(programID domain.Pubkey, rent RentPolicy) *Controller {
	return &Controller{programID: programID, rent: rent}
}

// ProgramID returns the identity addresses are derived under.
func (c *Controller) ProgramID() domain.Pubkey {
	return c.programID
}

// Rent returns the controller's deposit policy.
func (c *Controller) Rent() RentPolicy {
	return c.rent
}

// Derive returns the addresses a seller's auction lives at.
func (c *Controller) Derive(seller domain.Pubkey) (Addresses, error) {
	return FindAddresses(c.programID, seller)
}

// Initialize opens an auction for accts.Authority and escrows p.Amount tokens
// from accts.HolderTokenAccount.
func (c *Controller) Initialize(ctx context.Context, tx domain.LedgerTx, inv Invocation, p domain.InitializeParams, accts domain.AccountMetas) (Result, error) {
	seller := accts.Authority
	if !inv.Signers.Has(seller) {
		return Result{}, fmt.Errorf("auction: initialize: seller %s: %w", seller, domain.ErrMissingSignature)
	}

	addrs, err := c.Derive(seller)
	if err != nil {
		return Result{}, fmt.Errorf("auction: initialize: %w", err)
	}
	if addrs.Auction != accts.AuctionAccount || addrs.Escrow != accts.EscrowTokenAccount {
		return Result{}, fmt.Errorf("auction: initialize: provided addresses: %w", domain.ErrInvalidSeeds)
	}

	// One live auction per seller: an occupied slot is reported before any
	// parameter is looked at.
	_, err = tx.Auction(ctx, addrs.Auction)
	if err := vacant(err); err != nil {
		return Result{}, fmt.Errorf("auction: initialize: record %s: %w", addrs.Auction, err)
	}
	_, err = tx.TokenAccount(ctx, addrs.Escrow)
	if err := vacant(err); err != nil {
		return Result{}, fmt.Errorf("auction: initialize: escrow %s: %w", addrs.Escrow, err)
	}

	if p.Amount == 0 {
		return Result{}, fmt.Errorf("auction: initialize: %w", domain.ErrInvalidAmount)
	}
	if p.StartingTime < inv.Now {
		return Result{}, domain.ErrInvalidStartDate
	}
	if p.StartingTime >= p.EndingTime {
		return Result{}, domain.ErrInvalidDateRange
	}

	if _, err := tx.Mint(ctx, accts.Mint); err != nil {
		return Result{}, fmt.Errorf("auction: initialize: mint %s: %w", accts.Mint, err)
	}
	source, err := tx.TokenAccount(ctx, accts.HolderTokenAccount)
	if err != nil {
		return Result{}, fmt.Errorf("auction: initialize: source %s: %w", accts.HolderTokenAccount, err)
	}
	if source.Owner != seller {
		return Result{}, fmt.Errorf("auction: initialize: source owner: %w", domain.ErrOwnerMismatch)
	}
	if source.Mint != accts.Mint {
		return Result{}, fmt.Errorf("auction: initialize: source mint: %w", domain.ErrMintMismatch)
	}
	if source.Amount < p.Amount {
		return Result{}, fmt.Errorf("auction: initialize: source holds %d, need %d: %w",
			source.Amount, p.Amount, domain.ErrInsufficientFunds)
	}

	recordRent := c.rent.Deposit(domain.AuctionAccountSize)
	escrowRent := c.rent.Deposit(domain.TokenAccountSize)
	payer, err := tx.SystemAccount(ctx, seller)
	if err != nil {
		return Result{}, fmt.Errorf("auction: initialize: payer: %w", err)
	}
	if payer.Lamports < recordRent+escrowRent {
		return Result{}, fmt.Errorf("auction: initialize: deposits need %d lamports, seller has %d: %w",
			recordRent+escrowRent, payer.Lamports, domain.ErrInsufficientFunds)
	}

	acct := domain.AuctionAccount{
		Address: addrs.Auction,
		Record: domain.AuctionRecord{
			Authority:     seller,
			Amount:        p.Amount,
			StartingPrice: p.StartPrice,
			StartingTime:  p.StartingTime,
			EndingTime:    p.EndingTime,
			Bump:          addrs.Bump,
		},
		Lamports: recordRent,
	}

	if err := tx.Debit(ctx, seller, recordRent+escrowRent); err != nil {
		return Result{}, fmt.Errorf("auction: initialize: deposits: %w", err)
	}
	if err := tx.CreateAuction(ctx, acct); err != nil {
		return Result{}, fmt.Errorf("auction: initialize: create record: %w", err)
	}
	if err := tx.CreateTokenAccount(ctx, domain.TokenAccount{
		Address:  addrs.Escrow,
		Mint:     accts.Mint,
		Owner:    addrs.Auction,
		Lamports: escrowRent,
	}); err != nil {
		return Result{}, fmt.Errorf("auction: initialize: create escrow: %w", err)
	}
	if err := tx.TransferTokens(ctx, accts.HolderTokenAccount, addrs.Escrow, p.Amount); err != nil {
		return Result{}, fmt.Errorf("auction: initialize: fund escrow: %w", err)
	}

	return Result{Account: acct, Escrow: addrs.Escrow, Mint: accts.Mint}, nil
}

// Bid buys the escrowed tokens at the current price and terminates the
// auction.
func (c *Controller) Bid(ctx context.Context, tx domain.LedgerTx, inv Invocation, accts domain.AccountMetas) (Result, error) {
	buyer := accts.Buyer
	if !inv.Signers.Has(buyer) {
		return Result{}, fmt.Errorf("auction: bid: buyer %s: %w", buyer, domain.ErrMissingSignature)
	}

	acct, escrow, err := c.load(ctx, tx, accts)
	if err != nil {
		return Result{}, fmt.Errorf("auction: bid: %w", err)
	}
	rec := acct.Record

	if accts.AuctionOwner != rec.Authority {
		return Result{}, domain.ErrMismatchedOwners
	}
	price, err := Price(rec, inv.Now)
	if err != nil {
		return Result{}, err
	}

	dest, err := tx.TokenAccount(ctx, accts.DestinationTokenAccount)
	create := errors.Is(err, domain.ErrNotFound)
	switch {
	case create:
		// Only the buyer's associated account may be opened here, so a bid
		// can never squat on a derived address.
		ata, err := AssociatedTokenAddress(c.programID, buyer, escrow.Mint)
		if err != nil {
			return Result{}, fmt.Errorf("auction: bid: %w", err)
		}
		if accts.DestinationTokenAccount != ata {
			return Result{}, fmt.Errorf("auction: bid: new destination %s is not the buyer's token account: %w",
				accts.DestinationTokenAccount, domain.ErrInvalidSeeds)
		}
	case err != nil:
		return Result{}, fmt.Errorf("auction: bid: destination: %w", err)
	case dest.Owner != buyer:
		return Result{}, fmt.Errorf("auction: bid: destination owner: %w", domain.ErrOwnerMismatch)
	case dest.Mint != escrow.Mint:
		return Result{}, fmt.Errorf("auction: bid: destination mint: %w", domain.ErrMintMismatch)
	}

	need := price
	destRent := uint64(0)
	if create {
		destRent = c.rent.Deposit(domain.TokenAccountSize)
		need += destRent
	}
	payer, err := tx.SystemAccount(ctx, buyer)
	if err != nil {
		return Result{}, fmt.Errorf("auction: bid: payer: %w", err)
	}
	if payer.Lamports < need {
		return Result{}, fmt.Errorf("auction: bid: need %d lamports, buyer has %d: %w",
			need, payer.Lamports, domain.ErrInsufficientFunds)
	}

	if create {
		if err := tx.Debit(ctx, buyer, destRent); err != nil {
			return Result{}, fmt.Errorf("auction: bid: destination deposit: %w", err)
		}
		if err := tx.CreateTokenAccount(ctx, domain.TokenAccount{
			Address:  accts.DestinationTokenAccount,
			Mint:     escrow.Mint,
			Owner:    buyer,
			Lamports: destRent,
		}); err != nil {
			return Result{}, fmt.Errorf("auction: bid: create destination: %w", err)
		}
	}
	if err := tx.TransferLamports(ctx, buyer, rec.Authority, price); err != nil {
		return Result{}, fmt.Errorf("auction: bid: payment: %w", err)
	}

	refunded, err := c.release(ctx, tx, acct, escrow, accts.DestinationTokenAccount, domain.Pubkey{})
	if err != nil {
		return Result{}, fmt.Errorf("auction: bid: %w", err)
	}

	return Result{
		Account:  acct,
		Escrow:   escrow.Address,
		Mint:     escrow.Mint,
		Buyer:    &buyer,
		Price:    price,
		Refunded: refunded,
	}, nil
}

// Close returns the escrowed tokens to the seller and terminates the auction.
// It may be called at any time, including before the window opens.
func (c *Controller) Close(ctx context.Context, tx domain.LedgerTx, inv Invocation, accts domain.AccountMetas) (Result, error) {
	caller := accts.Authority
	if !inv.Signers.Has(caller) {
		return Result{}, fmt.Errorf("auction: close: caller %s: %w", caller, domain.ErrMissingSignature)
	}

	acct, escrow, err := c.load(ctx, tx, accts)
	if err != nil {
		return Result{}, fmt.Errorf("auction: close: %w", err)
	}
	if caller != acct.Record.Authority {
		return Result{}, domain.ErrProxyClose
	}

	dest, err := tx.TokenAccount(ctx, accts.DestinationTokenAccount)
	if err != nil {
		return Result{}, fmt.Errorf("auction: close: destination: %w", err)
	}
	if dest.Owner != caller {
		return Result{}, fmt.Errorf("auction: close: destination owner: %w", domain.ErrOwnerMismatch)
	}
	if dest.Mint != escrow.Mint {
		return Result{}, fmt.Errorf("auction: close: destination mint: %w", domain.ErrMintMismatch)
	}

	refunded, err := c.release(ctx, tx, acct, escrow, dest.Address, dest.Address)
	if err != nil {
		return Result{}, fmt.Errorf("auction: close: %w", err)
	}

	return Result{
		Account:  acct,
		Escrow:   escrow.Address,
		Mint:     escrow.Mint,
		Refunded: refunded,
	}, nil
}

// load reads the record and custodian named by accts and proves both
// addresses derive from the record's authority and bump.
func (c *Controller) load(ctx context.Context, tx domain.LedgerTx, accts domain.AccountMetas) (domain.AuctionAccount, domain.TokenAccount, error) {
	acct, err := tx.Auction(ctx, accts.AuctionAccount)
	if err != nil {
		return domain.AuctionAccount{}, domain.TokenAccount{}, fmt.Errorf("record %s: %w", accts.AuctionAccount, err)
	}

	addrs, err := AddressesWithBump(c.programID, acct.Record.Authority, acct.Record.Bump)
	if err != nil {
		return domain.AuctionAccount{}, domain.TokenAccount{}, err
	}
	if addrs.Auction != accts.AuctionAccount || addrs.Escrow != accts.EscrowTokenAccount {
		return domain.AuctionAccount{}, domain.TokenAccount{}, fmt.Errorf("provided addresses: %w", domain.ErrInvalidSeeds)
	}

	escrow, err := tx.TokenAccount(ctx, addrs.Escrow)
	if err != nil {
		return domain.AuctionAccount{}, domain.TokenAccount{}, fmt.Errorf("escrow %s: %w", addrs.Escrow, err)
	}
	if escrow.Owner != addrs.Auction {
		return domain.AuctionAccount{}, domain.TokenAccount{}, fmt.Errorf("escrow owner: %w", domain.ErrOwnerMismatch)
	}
	return acct, escrow, nil
}

// release moves the record amount from the custodian to dest, closes the
// custodian and the record, and credits both deposits to the seller. Tokens
// sent to the custodian out of band go back to the seller: to surplusTo, or to
// the seller's associated token account when surplusTo is zero.
func (c *Controller) release(ctx context.Context, tx domain.LedgerTx, acct domain.AuctionAccount, escrow domain.TokenAccount, dest, surplusTo domain.Pubkey) (uint64, error) {
	seller := acct.Record.Authority
	lot := acct.Record.Amount
	if escrow.Amount < lot {
		return 0, fmt.Errorf("escrow holds %d, record needs %d: %w", escrow.Amount, lot, domain.ErrInvalidAccountData)
	}

	if err := tx.TransferTokens(ctx, escrow.Address, dest, lot); err != nil {
		return 0, fmt.Errorf("release tokens: %w", err)
	}

	var surplusRent uint64
	if surplus := escrow.Amount - lot; surplus > 0 {
		if surplusTo.IsZero() {
			addr, rent, err := c.ensureTokenAccount(ctx, tx, seller, escrow.Mint)
			if err != nil {
				return 0, fmt.Errorf("surplus account: %w", err)
			}
			surplusTo, surplusRent = addr, rent
		}
		if err := tx.TransferTokens(ctx, escrow.Address, surplusTo, surplus); err != nil {
			return 0, fmt.Errorf("return surplus: %w", err)
		}
	}

	closed, err := tx.CloseTokenAccount(ctx, escrow.Address)
	if err != nil {
		return 0, fmt.Errorf("close escrow: %w", err)
	}
	if err := tx.DeleteAuction(ctx, acct.Address); err != nil {
		return 0, fmt.Errorf("delete record: %w", err)
	}

	// The custodian's deposit always covers a new token account.
	refund := closed.Lamports + acct.Lamports - surplusRent
	if err := tx.Credit(ctx, seller, refund); err != nil {
		return 0, fmt.Errorf("refund deposits: %w", err)
	}
	return refund, nil
}

// ensureTokenAccount returns owner's associated token account for mint,
// opening it when missing. rent is the deposit the new account holds, zero
// when it already existed.
func (c *Controller) ensureTokenAccount(ctx context.Context, tx domain.LedgerTx, owner, mint domain.Pubkey) (domain.Pubkey, uint64, error) {
	addr, err := AssociatedTokenAddress(c.programID, owner, mint)
	if err != nil {
		return domain.Pubkey{}, 0, err
	}
	existing, err := tx.TokenAccount(ctx, addr)
	switch {
	case err == nil:
		if existing.Owner != owner || existing.Mint != mint {
			return domain.Pubkey{}, 0, fmt.Errorf("token account %s: %w", addr, domain.ErrInvalidAccountData)
		}
		return addr, 0, nil
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Pubkey{}, 0, err
	}

	rent := c.rent.Deposit(domain.TokenAccountSize)
	if err := tx.CreateTokenAccount(ctx, domain.TokenAccount{
		Address:  addr,
		Mint:     mint,
		Owner:    owner,
		Lamports: rent,
	}); err != nil {
		return domain.Pubkey{}, 0, err
	}
	return addr, rent, nil
}

// vacant turns a lookup result into an allocation check: nil when nothing
// lives at the address, ErrAlreadyExists when something does.
func vacant(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil
	case err != nil:
		return err
	default:
		return domain.ErrAlreadyExists
	}
}
