package auction

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
	"github.com/alanyoungcy/dutchescrow/internal/store/memory"
)

const (
	t0         int64  = 1_700_000_000
	startPrice uint32 = 1_000_000_000
	lot        uint64 = 10
	sellerSOL  uint64 = 10 * domain.LamportsPerSOL
	buyerSOL   uint64 = 5 * domain.LamportsPerSOL
)

func pk(tag byte, n byte) domain.Pubkey {
	var k domain.Pubkey
	k[0] = tag
	k[31] = n
	return k
}

var (
	programID = pk(0xa0, 1)
	seller    = pk(0x01, 1)
	buyer     = pk(0x02, 1)
	mint      = pk(0x03, 1)
	holder    = pk(0x04, 1)
	buyerDest = tokenAccountOf(buyer)
)

func tokenAccountOf(owner domain.Pubkey) domain.Pubkey {
	addr, err := AssociatedTokenAddress(programID, owner, mint)
	if err != nil {
		panic(err)
	}
	return addr
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	ledger *memory.Ledger
	ctrl   *Controller
	addrs  Addresses
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		ledger: memory.NewLedger(),
		ctrl:   NewController(programID, DefaultRentPolicy()),
	}
	addrs, err := f.ctrl.Derive(seller)
	assert.NoError(t, err)
	f.addrs = addrs

	f.do(func(ctx context.Context, tx domain.LedgerTx) error {
		if err := tx.CreateMint(ctx, domain.Mint{Address: mint, Authority: seller}); err != nil {
			return err
		}
		if err := tx.CreateTokenAccount(ctx, domain.TokenAccount{Address: holder, Mint: mint, Owner: seller}); err != nil {
			return err
		}
		if err := tx.MintTo(ctx, mint, holder, lot); err != nil {
			return err
		}
		if err := tx.Credit(ctx, seller, sellerSOL); err != nil {
			return err
		}
		return tx.Credit(ctx, buyer, buyerSOL)
	})
	return f
}

func (f *fixture) do(fn func(ctx context.Context, tx domain.LedgerTx) error) {
	f.t.Helper()
	assert.NoError(f.t, f.ledger.Atomically(f.ctx, fn))
}

func (f *fixture) run(fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	return f.ledger.Atomically(f.ctx, fn)
}

func (f *fixture) initAccounts() domain.AccountMetas {
	return domain.AccountMetas{
		Authority:          seller,
		AuctionAccount:     f.addrs.Auction,
		EscrowTokenAccount: f.addrs.Escrow,
		HolderTokenAccount: holder,
		Mint:               mint,
	}
}

func (f *fixture) initialize(now int64, p domain.InitializeParams) (Result, error) {
	var res Result
	err := f.run(func(ctx context.Context, tx domain.LedgerTx) error {
		var err error
		res, err = f.ctrl.Initialize(ctx, tx, Invocation{Signers: domain.NewSignerSet(seller), Now: now}, p, f.initAccounts())
		return err
	})
	return res, err
}

func (f *fixture) open() {
	f.t.Helper()
	_, err := f.initialize(t0, domain.InitializeParams{
		StartingTime: t0,
		EndingTime:   t0 + 60,
		StartPrice:   startPrice,
		Amount:       lot,
	})
	assert.NoError(f.t, err)
}

func (f *fixture) bidAccounts(who, dest domain.Pubkey) domain.AccountMetas {
	return domain.AccountMetas{
		Buyer:                   who,
		AuctionOwner:            seller,
		AuctionAccount:          f.addrs.Auction,
		EscrowTokenAccount:      f.addrs.Escrow,
		DestinationTokenAccount: dest,
	}
}

func (f *fixture) bid(now int64, accts domain.AccountMetas) (Result, error) {
	var res Result
	err := f.run(func(ctx context.Context, tx domain.LedgerTx) error {
		var err error
		res, err = f.ctrl.Bid(ctx, tx, Invocation{Signers: domain.NewSignerSet(accts.Buyer), Now: now}, accts)
		return err
	})
	return res, err
}

func (f *fixture) closeAccounts(caller domain.Pubkey) domain.AccountMetas {
	return domain.AccountMetas{
		Authority:               caller,
		AuctionAccount:          f.addrs.Auction,
		EscrowTokenAccount:      f.addrs.Escrow,
		DestinationTokenAccount: holder,
	}
}

func (f *fixture) close(now int64, accts domain.AccountMetas) (Result, error) {
	var res Result
	err := f.run(func(ctx context.Context, tx domain.LedgerTx) error {
		var err error
		res, err = f.ctrl.Close(ctx, tx, Invocation{Signers: domain.NewSignerSet(accts.Authority), Now: now}, accts)
		return err
	})
	return res, err
}

func (f *fixture) lamports(addr domain.Pubkey) uint64 {
	var out uint64
	f.do(func(ctx context.Context, tx domain.LedgerTx) error {
		a, err := tx.SystemAccount(ctx, addr)
		out = a.Lamports
		return err
	})
	return out
}

func (f *fixture) tokens(addr domain.Pubkey) (uint64, error) {
	var out uint64
	err := f.run(func(ctx context.Context, tx domain.LedgerTx) error {
		a, err := tx.TokenAccount(ctx, addr)
		out = a.Amount
		return err
	})
	return out, err
}

func (f *fixture) live() bool {
	var ok bool
	f.do(func(ctx context.Context, tx domain.LedgerTx) error {
		_, err := tx.Auction(ctx, f.addrs.Auction)
		ok = err == nil
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	})
	return ok
}

func TestPrice(t *testing.T) {
	rec := domain.AuctionRecord{
		Authority:     seller,
		Amount:        1,
		StartingPrice: startPrice,
		StartingTime:  t0,
		EndingTime:    t0 + 60,
	}

	cases := []struct {
		now  int64
		want uint64
	}{
		{t0, 1_000_000_000},
		{t0 + 1, 983_333_334},
		{t0 + 15, 750_000_000},
		{t0 + 30, 500_000_000},
		{t0 + 59, 16_666_667},
		{t0 + 60, 0},
	}
	for _, tc := range cases {
		got, err := Price(rec, tc.now)
		assert.NoError(t, err)
		check.Equal(t, tc.want, got)
	}

	_, err := Price(rec, t0-1)
	check.True(t, errors.Is(err, domain.ErrAuctionEarly))
	_, err = Price(rec, t0+61)
	check.True(t, errors.Is(err, domain.ErrAuctionLate))
}

func TestPriceWideWindow(t *testing.T) {
	rec := domain.AuctionRecord{
		StartingPrice: math.MaxUint32,
		StartingTime:  math.MinInt64 / 2,
		EndingTime:    math.MaxInt64,
	}
	start, err := Price(rec, rec.StartingTime)
	assert.NoError(t, err)
	check.Equal(t, uint64(math.MaxUint32), start)

	end, err := Price(rec, rec.EndingTime)
	assert.NoError(t, err)
	check.Equal(t, uint64(0), end)

	mid, err := Price(rec, rec.EndingTime-1)
	assert.NoError(t, err)
	check.True(t, mid <= 1)
}

func TestPriceMonotonic(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 200 {
		rec := domain.AuctionRecord{
			StartingPrice: r.Uint32(),
			StartingTime:  t0,
			EndingTime:    t0 + 1 + r.Int64N(100_000),
		}
		a := t0 + r.Int64N(rec.Duration()+1)
		b := t0 + r.Int64N(rec.Duration()+1)
		if a > b {
			a, b = b, a
		}
		pa, err := Price(rec, a)
		assert.NoError(t, err)
		pb, err := Price(rec, b)
		assert.NoError(t, err)
		check.True(t, pb <= pa)
		check.True(t, pa <= uint64(rec.StartingPrice))
	}
}

func TestQuotePriceAndPhase(t *testing.T) {
	rec := domain.AuctionRecord{StartingPrice: startPrice, StartingTime: t0, EndingTime: t0 + 60}

	check.Equal(t, domain.PhasePending, PhaseAt(rec, t0-1))
	check.Equal(t, domain.PhaseOpen, PhaseAt(rec, t0))
	check.Equal(t, domain.PhaseOpen, PhaseAt(rec, t0+60))
	check.Equal(t, domain.PhaseExpired, PhaseAt(rec, t0+61))

	check.Equal(t, uint64(startPrice), QuotePrice(rec, t0-100))
	check.Equal(t, uint64(750_000_000), QuotePrice(rec, t0+15))
	check.Equal(t, uint64(0), QuotePrice(rec, t0+100))
}

func TestDerivedAddresses(t *testing.T) {
	a, err := FindAddresses(programID, seller)
	assert.NoError(t, err)
	check.NotEqual(t, a.Auction, a.Escrow)

	again, err := AddressesWithBump(programID, seller, a.Bump)
	assert.NoError(t, err)
	check.Equal(t, a, again)

	other, err := FindAddresses(programID, buyer)
	assert.NoError(t, err)
	check.NotEqual(t, a.Auction, other.Auction)
}

func TestInitialize(t *testing.T) {
	f := newFixture(t)
	res, err := f.initialize(t0, domain.InitializeParams{
		StartingTime: t0 + 10,
		EndingTime:   t0 + 70,
		StartPrice:   startPrice,
		Amount:       4,
	})
	assert.NoError(t, err)

	check.Equal(t, seller, res.Account.Record.Authority)
	check.Equal(t, uint64(4), res.Account.Record.Amount)
	check.Equal(t, f.addrs.Bump, res.Account.Record.Bump)
	check.Equal(t, f.addrs.Escrow, res.Escrow)

	escrowed, err := f.tokens(f.addrs.Escrow)
	assert.NoError(t, err)
	check.Equal(t, uint64(4), escrowed)
	left, err := f.tokens(holder)
	assert.NoError(t, err)
	check.Equal(t, lot-4, left)

	rent := DefaultRentPolicy()
	deposits := rent.Deposit(domain.AuctionAccountSize) + rent.Deposit(domain.TokenAccountSize)
	check.Equal(t, sellerSOL-deposits, f.lamports(seller))
	check.True(t, f.live())
}

func TestInitializeRejections(t *testing.T) {
	valid := domain.InitializeParams{StartingTime: t0, EndingTime: t0 + 60, StartPrice: startPrice, Amount: lot}

	cases := []struct {
		name  string
		now   int64
		p     func(p *domain.InitializeParams)
		accts func(a *domain.AccountMetas)
		want  error
	}{
		{name: "start in past", now: t0 + 1, want: domain.ErrInvalidStartDate},
		{name: "empty range", p: func(p *domain.InitializeParams) { p.EndingTime = p.StartingTime }, want: domain.ErrInvalidDateRange},
		{name: "inverted range", p: func(p *domain.InitializeParams) { p.EndingTime = p.StartingTime - 1 }, want: domain.ErrInvalidDateRange},
		{name: "zero amount", p: func(p *domain.InitializeParams) { p.Amount = 0 }, want: domain.ErrInvalidAmount},
		{name: "too many tokens", p: func(p *domain.InitializeParams) { p.Amount = lot + 1 }, want: domain.ErrInsufficientFunds},
		{name: "wrong escrow", accts: func(a *domain.AccountMetas) { a.EscrowTokenAccount = holder }, want: domain.ErrInvalidSeeds},
		{name: "wrong record", accts: func(a *domain.AccountMetas) { a.AuctionAccount = pk(0x09, 9) }, want: domain.ErrInvalidSeeds},
		{name: "unsigned authority", accts: func(a *domain.AccountMetas) { a.Authority = buyer }, want: domain.ErrMissingSignature},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			p := valid
			if tc.p != nil {
				tc.p(&p)
			}
			accts := f.initAccounts()
			if tc.accts != nil {
				tc.accts(&accts)
			}
			now := t0
			if tc.now != 0 {
				now = tc.now
			}

			err := f.run(func(ctx context.Context, tx domain.LedgerTx) error {
				_, err := f.ctrl.Initialize(ctx, tx, Invocation{Signers: domain.NewSignerSet(seller), Now: now}, p, accts)
				return err
			})
			check.True(t, errors.Is(err, tc.want))

			// nothing was created or moved
			check.False(t, f.live())
			_, err = f.tokens(f.addrs.Escrow)
			check.True(t, errors.Is(err, domain.ErrNotFound))
			left, err := f.tokens(holder)
			assert.NoError(t, err)
			check.Equal(t, lot, left)
			check.Equal(t, sellerSOL, f.lamports(seller))
		})
	}
}

func TestInitializeCheckOrder(t *testing.T) {
	f := newFixture(t)
	// past start and inverted range: the start check wins
	_, err := f.initialize(t0, domain.InitializeParams{StartingTime: t0 - 10, EndingTime: t0 - 20, StartPrice: 1, Amount: 1})
	check.True(t, errors.Is(err, domain.ErrInvalidStartDate))
	check.True(t, domain.IsDomainError(err))
}

func TestInitializeCollision(t *testing.T) {
	f := newFixture(t)
	_, err := f.initialize(t0, domain.InitializeParams{StartingTime: t0, EndingTime: t0 + 60, StartPrice: 1, Amount: 1})
	assert.NoError(t, err)

	_, err = f.initialize(t0, domain.InitializeParams{StartingTime: t0, EndingTime: t0 + 60, StartPrice: 1, Amount: 1})
	check.True(t, errors.Is(err, domain.ErrAlreadyExists))
	check.False(t, domain.IsDomainError(err))
}

func TestInitializeCollisionIgnoresParameters(t *testing.T) {
	f := newFixture(t)
	f.open()

	// the lot is escrowed, so the source is empty
	left, err := f.tokens(holder)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), left)

	for _, p := range []domain.InitializeParams{
		{StartingTime: t0, EndingTime: t0 + 60, StartPrice: 1, Amount: 1},
		{StartingTime: t0, EndingTime: t0 + 60, StartPrice: 1, Amount: 0},
		{StartingTime: t0 - 5, EndingTime: t0 - 10, StartPrice: 1, Amount: 1},
	} {
		_, err = f.initialize(t0, p)
		check.True(t, errors.Is(err, domain.ErrAlreadyExists))
		check.False(t, domain.IsDomainError(err))
	}

	escrowed, err := f.tokens(f.addrs.Escrow)
	assert.NoError(t, err)
	check.Equal(t, lot, escrowed)
}

func TestInitializeNeedsDeposits(t *testing.T) {
	f := newFixture(t)
	f.do(func(ctx context.Context, tx domain.LedgerTx) error {
		return tx.Debit(ctx, seller, sellerSOL)
	})
	_, err := f.initialize(t0, domain.InitializeParams{StartingTime: t0, EndingTime: t0 + 60, StartPrice: 1, Amount: 1})
	check.True(t, errors.Is(err, domain.ErrInsufficientFunds))
	check.False(t, f.live())
}

func TestBidSettles(t *testing.T) {
	f := newFixture(t)
	f.open()
	sellerBefore := f.lamports(seller)

	res, err := f.bid(t0+15, f.bidAccounts(buyer, buyerDest))
	assert.NoError(t, err)
	check.Equal(t, uint64(750_000_000), res.Price)
	check.Equal(t, buyer, *res.Buyer)

	rent := DefaultRentPolicy()
	destRent := rent.Deposit(domain.TokenAccountSize)
	deposits := rent.Deposit(domain.AuctionAccountSize) + rent.Deposit(domain.TokenAccountSize)
	check.Equal(t, deposits, res.Refunded)

	check.Equal(t, buyerSOL-750_000_000-destRent, f.lamports(buyer))
	check.Equal(t, sellerBefore+750_000_000+deposits, f.lamports(seller))
	// the seller ends where they started plus the price
	check.Equal(t, sellerSOL+750_000_000, f.lamports(seller))

	got, err := f.tokens(buyerDest)
	assert.NoError(t, err)
	check.Equal(t, lot, got)

	check.False(t, f.live())
	_, err = f.tokens(f.addrs.Escrow)
	check.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestBidAtBoundaries(t *testing.T) {
	for _, tc := range []struct {
		now  int64
		want uint64
	}{
		{t0, uint64(startPrice)},
		{t0 + 60, 0},
	} {
		f := newFixture(t)
		f.open()
		res, err := f.bid(tc.now, f.bidAccounts(buyer, buyerDest))
		assert.NoError(t, err)
		check.Equal(t, tc.want, res.Price)
	}
}

func TestBidRejections(t *testing.T) {
	cases := []struct {
		name  string
		now   int64
		accts func(f *fixture) domain.AccountMetas
		want  error
	}{
		{name: "early", now: t0 - 1, want: domain.ErrAuctionEarly},
		{name: "late", now: t0 + 61, want: domain.ErrAuctionLate},
		{name: "mismatched owner", now: t0 + 1, accts: func(f *fixture) domain.AccountMetas {
			a := f.bidAccounts(buyer, buyerDest)
			a.AuctionOwner = buyer
			return a
		}, want: domain.ErrMismatchedOwners},
		{name: "wrong escrow", now: t0 + 1, accts: func(f *fixture) domain.AccountMetas {
			a := f.bidAccounts(buyer, buyerDest)
			a.EscrowTokenAccount = holder
			return a
		}, want: domain.ErrInvalidSeeds},
		{name: "destination owned by seller", now: t0 + 1, accts: func(f *fixture) domain.AccountMetas {
			return f.bidAccounts(buyer, holder)
		}, want: domain.ErrOwnerMismatch},
		{name: "broke buyer", now: t0 + 1, accts: func(f *fixture) domain.AccountMetas {
			return f.bidAccounts(pk(0x02, 2), tokenAccountOf(pk(0x02, 2)))
		}, want: domain.ErrInsufficientFunds},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.open()
			accts := f.bidAccounts(buyer, buyerDest)
			if tc.accts != nil {
				accts = tc.accts(f)
			}

			_, err := f.bid(tc.now, accts)
			check.True(t, errors.Is(err, tc.want))

			check.True(t, f.live())
			escrowed, err := f.tokens(f.addrs.Escrow)
			assert.NoError(t, err)
			check.Equal(t, lot, escrowed)
			check.Equal(t, buyerSOL, f.lamports(buyer))
		})
	}
}

func TestBidCannotOpenArbitraryDestination(t *testing.T) {
	f := newFixture(t)
	f.open()

	victim := pk(0x01, 2)
	victimAddrs, err := f.ctrl.Derive(victim)
	assert.NoError(t, err)

	for _, dest := range []domain.Pubkey{victimAddrs.Escrow, victimAddrs.Auction, pk(0x05, 9)} {
		_, err := f.bid(t0+15, f.bidAccounts(buyer, dest))
		check.True(t, errors.Is(err, domain.ErrInvalidSeeds))
		_, err = f.tokens(dest)
		check.True(t, errors.Is(err, domain.ErrNotFound))
	}
	check.True(t, f.live())
	check.Equal(t, buyerSOL, f.lamports(buyer))
}

func TestBidSurplusReturnsToSeller(t *testing.T) {
	f := newFixture(t)
	f.open()
	f.do(func(ctx context.Context, tx domain.LedgerTx) error {
		return tx.MintTo(ctx, mint, f.addrs.Escrow, 3)
	})

	res, err := f.bid(t0+15, f.bidAccounts(buyer, buyerDest))
	assert.NoError(t, err)

	got, err := f.tokens(buyerDest)
	assert.NoError(t, err)
	check.Equal(t, lot, got)

	back, err := f.tokens(tokenAccountOf(seller))
	assert.NoError(t, err)
	check.Equal(t, uint64(3), back)

	rent := DefaultRentPolicy()
	ataRent := rent.Deposit(domain.TokenAccountSize)
	check.Equal(t, rent.Deposit(domain.AuctionAccountSize), res.Refunded)
	check.Equal(t, sellerSOL+750_000_000-ataRent, f.lamports(seller))
	check.False(t, f.live())
}

func TestCloseReturnsSurplus(t *testing.T) {
	f := newFixture(t)
	f.open()
	f.do(func(ctx context.Context, tx domain.LedgerTx) error {
		return tx.MintTo(ctx, mint, f.addrs.Escrow, 2)
	})

	_, err := f.close(t0+1, f.closeAccounts(seller))
	assert.NoError(t, err)
	back, err := f.tokens(holder)
	assert.NoError(t, err)
	check.Equal(t, lot+2, back)
	check.Equal(t, sellerSOL, f.lamports(seller))
}

func TestBidMissingSignature(t *testing.T) {
	f := newFixture(t)
	f.open()
	err := f.run(func(ctx context.Context, tx domain.LedgerTx) error {
		_, err := f.ctrl.Bid(ctx, tx, Invocation{Signers: domain.NewSignerSet(seller), Now: t0}, f.bidAccounts(buyer, buyerDest))
		return err
	})
	check.True(t, errors.Is(err, domain.ErrMissingSignature))
	check.True(t, f.live())
}

func TestCloseRestores(t *testing.T) {
	f := newFixture(t)
	f.open()

	left, err := f.tokens(holder)
	assert.NoError(t, err)
	check.Equal(t, uint64(0), left)

	// before the window opens
	res, err := f.close(t0-100, f.closeAccounts(seller))
	assert.NoError(t, err)
	check.True(t, res.Buyer == nil)

	back, err := f.tokens(holder)
	assert.NoError(t, err)
	check.Equal(t, lot, back)
	check.Equal(t, sellerSOL, f.lamports(seller))
	check.False(t, f.live())
}

func TestCloseAfterEnd(t *testing.T) {
	f := newFixture(t)
	f.open()
	_, err := f.close(t0+10_000, f.closeAccounts(seller))
	assert.NoError(t, err)
	check.False(t, f.live())
}

func TestCloseByStranger(t *testing.T) {
	f := newFixture(t)
	f.open()

	_, err := f.close(t0+1, f.closeAccounts(buyer))
	check.True(t, errors.Is(err, domain.ErrProxyClose))
	check.True(t, f.live())
}

func TestTerminationIsFinal(t *testing.T) {
	f := newFixture(t)
	f.open()
	_, err := f.bid(t0+15, f.bidAccounts(buyer, buyerDest))
	assert.NoError(t, err)

	_, err = f.bid(t0+16, f.bidAccounts(buyer, buyerDest))
	check.True(t, errors.Is(err, domain.ErrNotFound))
	check.False(t, domain.IsDomainError(err))

	_, err = f.close(t0+16, f.closeAccounts(seller))
	check.True(t, errors.Is(err, domain.ErrNotFound))

	// the seller may open a fresh auction at the same addresses
	f.do(func(ctx context.Context, tx domain.LedgerTx) error {
		return tx.MintTo(ctx, mint, holder, 1)
	})
	_, err = f.initialize(t0+20, domain.InitializeParams{StartingTime: t0 + 20, EndingTime: t0 + 80, StartPrice: 5, Amount: 1})
	assert.NoError(t, err)
	check.True(t, f.live())
}

func TestConcurrentBids(t *testing.T) {
	f := newFixture(t)
	f.open()

	const n = 16
	f.do(func(ctx context.Context, tx domain.LedgerTx) error {
		for i := range n {
			if err := tx.Credit(ctx, pk(0x06, byte(i)), buyerSOL); err != nil {
				return err
			}
		}
		return nil
	})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		missing int
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.bid(t0+30, f.bidAccounts(pk(0x06, byte(i)), tokenAccountOf(pk(0x06, byte(i)))))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrNotFound):
				missing++
			}
		}()
	}
	wg.Wait()

	check.Equal(t, 1, wins)
	check.Equal(t, n-1, missing)
	check.Equal(t, sellerSOL+500_000_000, f.lamports(seller))
}

func TestAssociatedTokenAddress(t *testing.T) {
	a, err := AssociatedTokenAddress(programID, buyer, mint)
	assert.NoError(t, err)
	b, err := AssociatedTokenAddress(programID, buyer, mint)
	assert.NoError(t, err)
	check.Equal(t, a, b)

	other, err := AssociatedTokenAddress(programID, seller, mint)
	assert.NoError(t, err)
	check.NotEqual(t, a, other)
}
