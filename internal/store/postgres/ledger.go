package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// Ledger implements domain.Ledger with one SQL transaction per invocation.
// Rows are read FOR UPDATE so invocations touching the same accounts queue
// behind each other, and a second allocation of an address fails on the
// primary key.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Atomically implements domain.Ledger.
func (l *Ledger) Atomically(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	return pgx.BeginTxFunc(ctx, l.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &ledgerTx{tx: tx})
	})
}

type ledgerTx struct {
	tx pgx.Tx
}

var _ domain.LedgerTx = (*ledgerTx)(nil)

func (t *ledgerTx) Auction(ctx context.Context, addr domain.Pubkey) (domain.AuctionAccount, error) {
	const query = `SELECT data, lamports FROM auctions WHERE address = $1 FOR UPDATE`

	var (
		data []byte
		acct = domain.AuctionAccount{Address: addr}
	)
	if err := t.tx.QueryRow(ctx, query, addr[:]).Scan(&data, &acct.Lamports); err != nil {
		return domain.AuctionAccount{}, fmt.Errorf("postgres: auction %s: %w", addr, mapError(err))
	}
	if err := acct.Record.UnmarshalBinary(data); err != nil {
		return domain.AuctionAccount{}, fmt.Errorf("postgres: auction %s: %w", addr, err)
	}
	return acct, nil
}

func (t *ledgerTx) CreateAuction(ctx context.Context, acct domain.AuctionAccount) error {
	if err := acct.Record.Validate(); err != nil {
		return fmt.Errorf("postgres: auction %s: %w", acct.Address, err)
	}
	data, err := acct.Record.MarshalBinary()
	if err != nil {
		return fmt.Errorf("postgres: encode auction %s: %w", acct.Address, err)
	}

	const query = `
		INSERT INTO auctions (address, authority, data, starting_time, ending_time, lamports)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = t.tx.Exec(ctx, query,
		acct.Address[:], acct.Record.Authority[:], data,
		acct.Record.StartingTime, acct.Record.EndingTime, acct.Lamports,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert auction %s: %w", acct.Address, mapError(err))
	}
	return nil
}

func (t *ledgerTx) DeleteAuction(ctx context.Context, addr domain.Pubkey) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM auctions WHERE address = $1`, addr[:])
	if err != nil {
		return fmt.Errorf("postgres: delete auction %s: %w", addr, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: delete auction %s: %w", addr, domain.ErrNotFound)
	}
	return nil
}

func (t *ledgerTx) ListAuctions(ctx context.Context, opts domain.ListOpts) ([]domain.AuctionAccount, error) {
	query := `SELECT address, data, lamports FROM auctions ORDER BY starting_time, address`
	args := []any{}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	defer rows.Close()

	out := []domain.AuctionAccount{}
	for rows.Next() {
		var (
			addr, data []byte
			acct       domain.AuctionAccount
		)
		if err := rows.Scan(&addr, &data, &acct.Lamports); err != nil {
			return nil, fmt.Errorf("postgres: scan auction: %w", err)
		}
		if acct.Address, err = pubkeyFrom(addr); err != nil {
			return nil, err
		}
		if err := acct.Record.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("postgres: auction %s: %w", acct.Address, err)
		}
		out = append(out, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list auctions rows: %w", err)
	}
	return out, nil
}

func (t *ledgerTx) Mint(ctx context.Context, addr domain.Pubkey) (domain.Mint, error) {
	const query = `SELECT authority, decimals, supply FROM mints WHERE address = $1`

	var (
		authority []byte
		m         = domain.Mint{Address: addr}
	)
	if err := t.tx.QueryRow(ctx, query, addr[:]).Scan(&authority, &m.Decimals, &m.Supply); err != nil {
		return domain.Mint{}, fmt.Errorf("postgres: mint %s: %w", addr, mapError(err))
	}
	var err error
	if m.Authority, err = pubkeyFrom(authority); err != nil {
		return domain.Mint{}, err
	}
	return m, nil
}

func (t *ledgerTx) CreateMint(ctx context.Context, m domain.Mint) error {
	const query = `INSERT INTO mints (address, authority, decimals, supply) VALUES ($1, $2, $3, $4)`
	if _, err := t.tx.Exec(ctx, query, m.Address[:], m.Authority[:], int16(m.Decimals), m.Supply); err != nil {
		return fmt.Errorf("postgres: insert mint %s: %w", m.Address, mapError(err))
	}
	return nil
}

func (t *ledgerTx) MintTo(ctx context.Context, mint, dest domain.Pubkey, amount uint64) error {
	acct, err := t.TokenAccount(ctx, dest)
	if err != nil {
		return err
	}
	if acct.Mint != mint {
		return fmt.Errorf("postgres: mint to %s: %w", dest, domain.ErrMintMismatch)
	}

	tag, err := t.tx.Exec(ctx, `UPDATE mints SET supply = supply + $2 WHERE address = $1`, mint[:], amount)
	if err != nil {
		return fmt.Errorf("postgres: mint %s supply: %w", mint, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mint %s: %w", mint, domain.ErrNotFound)
	}
	if _, err := t.tx.Exec(ctx, `UPDATE token_accounts SET amount = amount + $2 WHERE address = $1`, dest[:], amount); err != nil {
		return fmt.Errorf("postgres: mint to %s: %w", dest, mapError(err))
	}
	return nil
}

func (t *ledgerTx) TokenAccount(ctx context.Context, addr domain.Pubkey) (domain.TokenAccount, error) {
	const query = `SELECT mint, owner, amount, lamports FROM token_accounts WHERE address = $1 FOR UPDATE`

	var (
		mint, owner []byte
		acct        = domain.TokenAccount{Address: addr}
	)
	if err := t.tx.QueryRow(ctx, query, addr[:]).Scan(&mint, &owner, &acct.Amount, &acct.Lamports); err != nil {
		return domain.TokenAccount{}, fmt.Errorf("postgres: token account %s: %w", addr, mapError(err))
	}
	var err error
	if acct.Mint, err = pubkeyFrom(mint); err != nil {
		return domain.TokenAccount{}, err
	}
	if acct.Owner, err = pubkeyFrom(owner); err != nil {
		return domain.TokenAccount{}, err
	}
	return acct, nil
}

func (t *ledgerTx) CreateTokenAccount(ctx context.Context, acct domain.TokenAccount) error {
	const query = `
		INSERT INTO token_accounts (address, mint, owner, amount, lamports)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := t.tx.Exec(ctx, query, acct.Address[:], acct.Mint[:], acct.Owner[:], acct.Amount, acct.Lamports)
	if err != nil {
		return fmt.Errorf("postgres: insert token account %s: %w", acct.Address, mapError(err))
	}
	return nil
}

func (t *ledgerTx) CloseTokenAccount(ctx context.Context, addr domain.Pubkey) (domain.TokenAccount, error) {
	acct, err := t.TokenAccount(ctx, addr)
	if err != nil {
		return domain.TokenAccount{}, err
	}
	if acct.Amount != 0 {
		return domain.TokenAccount{}, fmt.Errorf("postgres: close %s with %d tokens: %w", addr, acct.Amount, domain.ErrInvalidAccountData)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM token_accounts WHERE address = $1`, addr[:]); err != nil {
		return domain.TokenAccount{}, fmt.Errorf("postgres: close token account %s: %w", addr, err)
	}
	return acct, nil
}

func (t *ledgerTx) TransferTokens(ctx context.Context, from, to domain.Pubkey, amount uint64) error {
	// lock both rows in address order
	if _, err := t.tx.Exec(ctx,
		`SELECT 1 FROM token_accounts WHERE address = ANY($1) ORDER BY address FOR UPDATE`,
		[][]byte{from[:], to[:]},
	); err != nil {
		return fmt.Errorf("postgres: lock token accounts: %w", err)
	}

	src, err := t.TokenAccount(ctx, from)
	if err != nil {
		return err
	}
	dst, err := t.TokenAccount(ctx, to)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("postgres: transfer %s -> %s: %w", from, to, domain.ErrMintMismatch)
	}
	if src.Amount < amount {
		return fmt.Errorf("postgres: transfer from %s: %w", from, domain.ErrInsufficientFunds)
	}
	if from == to || amount == 0 {
		return nil
	}

	if _, err := t.tx.Exec(ctx, `UPDATE token_accounts SET amount = amount - $2 WHERE address = $1`, from[:], amount); err != nil {
		return fmt.Errorf("postgres: debit tokens %s: %w", from, mapError(err))
	}
	if _, err := t.tx.Exec(ctx, `UPDATE token_accounts SET amount = amount + $2 WHERE address = $1`, to[:], amount); err != nil {
		return fmt.Errorf("postgres: credit tokens %s: %w", to, mapError(err))
	}
	return nil
}

func (t *ledgerTx) SystemAccount(ctx context.Context, addr domain.Pubkey) (domain.SystemAccount, error) {
	acct := domain.SystemAccount{Address: addr}
	err := t.tx.QueryRow(ctx,
		`SELECT lamports FROM system_accounts WHERE address = $1 FOR UPDATE`, addr[:],
	).Scan(&acct.Lamports)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.SystemAccount{}, fmt.Errorf("postgres: system account %s: %w", addr, err)
	}
	return acct, nil
}

func (t *ledgerTx) Credit(ctx context.Context, addr domain.Pubkey, lamports uint64) error {
	const query = `
		INSERT INTO system_accounts (address, lamports) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE
		SET lamports = system_accounts.lamports + EXCLUDED.lamports, updated_at = NOW()`
	if _, err := t.tx.Exec(ctx, query, addr[:], lamports); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", addr, mapError(err))
	}
	return nil
}

func (t *ledgerTx) Debit(ctx context.Context, addr domain.Pubkey, lamports uint64) error {
	const query = `
		UPDATE system_accounts SET lamports = lamports - $2, updated_at = NOW()
		WHERE address = $1 AND lamports >= $2`
	tag, err := t.tx.Exec(ctx, query, addr[:], lamports)
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", addr, mapError(err))
	}
	if tag.RowsAffected() == 0 && lamports > 0 {
		return fmt.Errorf("postgres: debit %s: %w", addr, domain.ErrInsufficientFunds)
	}
	return nil
}

func (t *ledgerTx) TransferLamports(ctx context.Context, from, to domain.Pubkey, lamports uint64) error {
	if err := t.Debit(ctx, from, lamports); err != nil {
		return err
	}
	return t.Credit(ctx, to, lamports)
}
