package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

const settlementSelectCols = `id, kind, auction, authority, buyer, mint, amount, price,
	starting_price, starting_time, ending_time, settled_at, receipt, created_at`

func scanSettlement(row pgx.Row) (domain.Settlement, error) {
	var (
		s                             domain.Settlement
		kind                          string
		auction, authority, buyer, mt []byte
		startingPrice                 int64
	)
	if err := row.Scan(
		&s.ID, &kind, &auction, &authority, &buyer, &mt, &s.Amount, &s.Price,
		&startingPrice, &s.StartingTime, &s.EndingTime, &s.SettledAt, &s.Receipt, &s.CreatedAt,
	); err != nil {
		return domain.Settlement{}, err
	}
	s.Kind = domain.SettlementKind(kind)
	s.StartingPrice = uint32(startingPrice)

	var err error
	if s.Auction, err = pubkeyFrom(auction); err != nil {
		return domain.Settlement{}, err
	}
	if s.Authority, err = pubkeyFrom(authority); err != nil {
		return domain.Settlement{}, err
	}
	if s.Mint, err = pubkeyFrom(mt); err != nil {
		return domain.Settlement{}, err
	}
	if buyer != nil {
		b, err := pubkeyFrom(buyer)
		if err != nil {
			return domain.Settlement{}, err
		}
		s.Buyer = &b
	}
	return s, nil
}

func collectSettlements(rows pgx.Rows) ([]domain.Settlement, error) {
	defer rows.Close()
	out := []domain.Settlement{}
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create inserts a settlement row.
func (s *SettlementStore) Create(ctx context.Context, st domain.Settlement) error {
	var buyer []byte
	if st.Buyer != nil {
		buyer = st.Buyer[:]
	}
	createdAt := st.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO settlements (` + settlementSelectCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.pool.Exec(ctx, query,
		st.ID, string(st.Kind), st.Auction[:], st.Authority[:], buyer, st.Mint[:],
		st.Amount, st.Price, int64(st.StartingPrice), st.StartingTime, st.EndingTime,
		st.SettledAt, st.Receipt, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert settlement %s: %w", st.ID, mapError(err))
	}
	return nil
}

// GetByID returns a single settlement.
func (s *SettlementStore) GetByID(ctx context.Context, id string) (domain.Settlement, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+settlementSelectCols+` FROM settlements WHERE id = $1`, id)
	st, err := scanSettlement(row)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("postgres: get settlement %s: %w", id, mapError(err))
	}
	return st, nil
}

// List returns settlements newest first.
func (s *SettlementStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	return s.list(ctx, nil, opts)
}

// ListByAuthority returns one seller's settlements newest first.
func (s *SettlementStore) ListByAuthority(ctx context.Context, authority domain.Pubkey, opts domain.ListOpts) ([]domain.Settlement, error) {
	return s.list(ctx, authority[:], opts)
}

func (s *SettlementStore) list(ctx context.Context, authority []byte, opts domain.ListOpts) ([]domain.Settlement, error) {
	query := `SELECT ` + settlementSelectCols + ` FROM settlements WHERE 1=1`
	args := []any{}

	if authority != nil {
		args = append(args, authority)
		query += fmt.Sprintf(" AND authority = $%d", len(args))
	}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	return collectSettlements(rows)
}

// ListBefore returns every settlement created before the cutoff, oldest first.
func (s *SettlementStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Settlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+settlementSelectCols+` FROM settlements WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements before %s: %w", before, err)
	}
	return collectSettlements(rows)
}

// DeleteBefore removes settlements created before the cutoff.
func (s *SettlementStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM settlements WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settlements before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}
