package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createPurchasesSQL = `CREATE TABLE IF NOT EXISTS purchases (
        id              BIGSERIAL PRIMARY KEY,
        run_id          TEXT        NOT NULL,
        filter_id       TEXT        NOT NULL DEFAULT '',
        filter_name     TEXT        NOT NULL DEFAULT '',
        trade_id        BIGINT      NOT NULL,
        item_id         BIGINT      NOT NULL DEFAULT 0,
        item_name       TEXT        NOT NULL DEFAULT '',
        rating          INTEGER     NOT NULL DEFAULT 0,
        buy_price       INTEGER     NOT NULL,
        sell_price      INTEGER     NOT NULL DEFAULT 0,
        expected_profit NUMERIC     NOT NULL DEFAULT 0,
        outcome         TEXT        NOT NULL,
        attempted_at    TIMESTAMPTZ NOT NULL,
        created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS purchases_attempted_at_idx ON purchases (attempted_at);`

	insertPurchaseSQL = `INSERT INTO purchases (
        run_id,
        filter_id,
        filter_name,
        trade_id,
        item_id,
        item_name,
        rating,
        buy_price,
        sell_price,
        expected_profit,
        outcome,
        attempted_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    RETURNING id, created_at;`

	purchaseColumns = `
        id,
        run_id,
        filter_id,
        filter_name,
        trade_id,
        item_id,
        item_name,
        rating,
        buy_price,
        sell_price,
        expected_profit::text,
        outcome,
        attempted_at,
        created_at`

	listPurchasesBetweenSQL = `SELECT` + purchaseColumns + `
    FROM purchases
    WHERE attempted_at >= $1
      AND attempted_at < $2
    ORDER BY attempted_at
    LIMIT $3;`

	listRecentPurchasesSQL = `SELECT` + purchaseColumns + `
    FROM purchases
    ORDER BY attempted_at DESC
    LIMIT $1;`

	countPurchasesSQL = `SELECT COUNT(*) FROM purchases WHERE ($1 = '' OR outcome = $1);`

	deletePurchasesBeforeSQL = `DELETE FROM purchases WHERE attempted_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PurchaseStore defines operations for the purchase ledger.
type PurchaseStore interface {
	InsertPurchase(ctx context.Context, rec PurchaseRecord) (PurchaseRecord, error)
	ListPurchasesBetween(ctx context.Context, from, to time.Time, limit int) ([]PurchaseRecord, error)
	ListRecentPurchases(ctx context.Context, limit int) ([]PurchaseRecord, error)
	CountPurchases(ctx context.Context, outcome string) (int64, error)
	DeletePurchasesBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the Postgres-backed purchase ledger.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the purchases table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createPurchasesSQL); err != nil {
		return fmt.Errorf("migrate purchases: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
// The lock is held on a dedicated connection until the release func runs.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertPurchase appends a record and returns it with its id and creation time.
func (s *Store) InsertPurchase(ctx context.Context, rec PurchaseRecord) (PurchaseRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return PurchaseRecord{}, err
	}

	rec = rec.WithExpectedProfit()
	row := pool.QueryRow(ctx, insertPurchaseSQL,
		rec.RunID,
		rec.FilterID,
		rec.FilterName,
		rec.TradeID,
		rec.ItemID,
		rec.ItemName,
		rec.Rating,
		rec.BuyPrice,
		rec.SellPrice,
		rec.ExpectedProfit.String(),
		rec.Outcome,
		rec.AttemptedAt,
	)
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return PurchaseRecord{}, fmt.Errorf("insert purchase: %w", scanErr)
	}
	return rec, nil
}

// ListPurchasesBetween lists purchases attempted within [from, to), oldest first.
// A non-positive limit returns every row in the window.
func (s *Store) ListPurchasesBetween(ctx context.Context, from, to time.Time, limit int) ([]PurchaseRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, queryErr := pool.Query(ctx, listPurchasesBetweenSQL, from, to, lim)
	if queryErr != nil {
		return nil, fmt.Errorf("list purchases between: %w", queryErr)
	}
	return collectPurchases(rows, 0)
}

// ListRecentPurchases lists the most recent purchases, newest first.
func (s *Store) ListRecentPurchases(ctx context.Context, limit int) ([]PurchaseRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPurchasesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent purchases: %w", queryErr)
	}
	return collectPurchases(rows, limit)
}

// CountPurchases counts records, optionally restricted to one outcome.
func (s *Store) CountPurchases(ctx context.Context, outcome string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countPurchasesSQL, outcome).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count purchases: %w", scanErr)
	}
	return count, nil
}

// DeletePurchasesBefore prunes history and reports how many rows went.
func (s *Store) DeletePurchasesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deletePurchasesBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete purchases before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func collectPurchases(rows pgx.Rows, capacity int) ([]PurchaseRecord, error) {
	defer rows.Close()

	records := make([]PurchaseRecord, 0, capacity)
	for rows.Next() {
		rec, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanPurchase(rows pgx.Rows) (PurchaseRecord, error) {
	var (
		rec       PurchaseRecord
		profitStr string
	)
	if err := rows.Scan(
		&rec.ID,
		&rec.RunID,
		&rec.FilterID,
		&rec.FilterName,
		&rec.TradeID,
		&rec.ItemID,
		&rec.ItemName,
		&rec.Rating,
		&rec.BuyPrice,
		&rec.SellPrice,
		&profitStr,
		&rec.Outcome,
		&rec.AttemptedAt,
		&rec.CreatedAt,
	); err != nil {
		return PurchaseRecord{}, err
	}

	profit, err := decimal.NewFromString(profitStr)
	if err != nil {
		return PurchaseRecord{}, fmt.Errorf("parse expected profit: %w", err)
	}
	rec.ExpectedProfit = profit
	return rec, nil
}

var (
	_ PurchaseStore  = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
