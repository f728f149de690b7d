package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// TxStore implements domain.TxStore: the ledger of every transaction the
// wallet got mined. Addresses and hashes are stored as lowercase hex.
type TxStore struct {
	pool *pgxpool.Pool
}

func NewTxStore(pool *pgxpool.Pool) *TxStore {
	return &TxStore{pool: pool}
}

// Record inserts rec. Recording the same hash twice is a no-op.
func (s *TxStore) Record(ctx context.Context, rec domain.TxRecord) error {
	const q = `INSERT INTO transactions (hash, kind, contract, sender, block_number, gas_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (hash) DO NOTHING`
	_, err := s.pool.Exec(ctx, q,
		rec.Hash.Hex(),
		string(rec.Kind),
		domain.AddressString(rec.Contract),
		domain.AddressString(rec.From),
		int64(rec.BlockNumber),
		int64(rec.GasUsed),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record tx %s: %w", rec.Hash.Hex(), err)
	}
	return nil
}

// ListByContract returns the transactions sent to contract, newest first.
func (s *TxStore) ListByContract(ctx context.Context, contract common.Address, opts domain.ListOpts) ([]domain.TxRecord, error) {
	q, args := listQuery(
		`SELECT hash, kind, contract, sender, block_number, gas_used, created_at FROM transactions WHERE contract = $1`,
		[]any{domain.AddressString(contract)}, opts)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list txs %s: %w", domain.AddressString(contract), err)
	}
	defer rows.Close()

	var out []domain.TxRecord
	for rows.Next() {
		var (
			rec                  domain.TxRecord
			hash, kind, to, from string
			block, gas           int64
		)
		if err := rows.Scan(&hash, &kind, &to, &from, &block, &gas, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan tx: %w", err)
		}
		rec.Hash = common.HexToHash(hash)
		rec.Kind = domain.TxKind(kind)
		rec.Contract = common.HexToAddress(to)
		rec.From = common.HexToAddress(from)
		rec.BlockNumber = uint64(block)
		rec.GasUsed = uint64(gas)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list txs: %w", err)
	}
	return out, nil
}

var _ domain.TxStore = (*TxStore)(nil)
