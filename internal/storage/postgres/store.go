package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityEngine/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS engine_events (
	run_id TEXT NOT NULL,
	seq BIGINT NOT NULL,
	kind TEXT NOT NULL,
	pool_asset TEXT NOT NULL,
	event_ts BIGINT NOT NULL,
	data JSONB NOT NULL,
	reserves JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS pool_states (
	asset TEXT PRIMARY KEY,
	base_asset TEXT NOT NULL,
	account TEXT NOT NULL,
	name TEXT NOT NULL,
	symbol TEXT NOT NULL,
	asset_reserve NUMERIC(78,0) NOT NULL,
	base_reserve NUMERIC(78,0) NOT NULL,
	total_shares NUMERIC(78,0) NOT NULL,
	holders INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS pool_window_stats (
	pool_asset TEXT NOT NULL,
	window_size_seconds BIGINT NOT NULL,
	window_start_ts TIMESTAMPTZ NOT NULL,
	window_end_ts TIMESTAMPTZ NOT NULL,
	swap_count BIGINT NOT NULL,
	liquidity_events BIGINT NOT NULL,
	volume_asset NUMERIC NOT NULL,
	volume_base NUMERIC NOT NULL,
	fee_asset NUMERIC NOT NULL,
	fee_base NUMERIC NOT NULL,
	asset_reserve NUMERIC,
	base_reserve NUMERIC,
	fee_rate_asset NUMERIC,
	fee_rate_base NUMERIC,
	apr NUMERIC,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_asset, window_size_seconds, window_start_ts)
);
CREATE TABLE IF NOT EXISTS engine_state (
	name TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for engine events and pool snapshots.
type Store struct {
	pool  *pgxpool.Pool
	runID string
}

// NewStore connects to dsn. Events are keyed by runID so separate replays do not collide.
func NewStore(ctx context.Context, dsn, runID string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, runID: runID}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables used by the store when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PutEvents inserts events, ignoring ones already stored for this run.
func (s *Store) PutEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		data, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("marshal event %d data: %w", event.Seq, err)
		}
		reserves, err := json.Marshal(event.Reserves)
		if err != nil {
			return fmt.Errorf("marshal event %d reserves: %w", event.Seq, err)
		}
		batch.Queue(`
			INSERT INTO engine_events (run_id, seq, kind, pool_asset, event_ts, data, reserves, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (run_id, seq) DO NOTHING
		`,
			s.runID,
			int64(event.Seq),
			string(event.Kind),
			event.Pool,
			int64(event.Timestamp),
			data,
			reserves,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPoolStates inserts or updates pool snapshots.
func (s *Store) UpsertPoolStates(ctx context.Context, states []model.PoolState) error {
	if len(states) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, state := range states {
		batch.Queue(`
			INSERT INTO pool_states (
				asset, base_asset, account, name, symbol, asset_reserve, base_reserve, total_shares, holders, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
			ON CONFLICT (asset)
			DO UPDATE SET
				base_asset = EXCLUDED.base_asset,
				account = EXCLUDED.account,
				name = EXCLUDED.name,
				symbol = EXCLUDED.symbol,
				asset_reserve = EXCLUDED.asset_reserve,
				base_reserve = EXCLUDED.base_reserve,
				total_shares = EXCLUDED.total_shares,
				holders = EXCLUDED.holders,
				updated_at = now()
		`,
			state.Asset,
			state.BaseAsset,
			state.Account,
			state.Name,
			state.Symbol,
			state.AssetReserve,
			state.BaseReserve,
			state.TotalShares,
			state.Holders,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range states {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPoolWindowStats inserts or updates window stats.
func (s *Store) UpsertPoolWindowStats(ctx context.Context, stats []model.PoolWindowStats) error {
	if len(stats) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range stats {
		batch.Queue(`
			INSERT INTO pool_window_stats (
				pool_asset, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, liquidity_events, volume_asset, volume_base, fee_asset, fee_base,
				asset_reserve, base_reserve, fee_rate_asset, fee_rate_base, apr, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now(),now())
			ON CONFLICT (pool_asset, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				liquidity_events = EXCLUDED.liquidity_events,
				volume_asset = EXCLUDED.volume_asset,
				volume_base = EXCLUDED.volume_base,
				fee_asset = EXCLUDED.fee_asset,
				fee_base = EXCLUDED.fee_base,
				asset_reserve = EXCLUDED.asset_reserve,
				base_reserve = EXCLUDED.base_reserve,
				fee_rate_asset = EXCLUDED.fee_rate_asset,
				fee_rate_base = EXCLUDED.fee_rate_base,
				apr = EXCLUDED.apr,
				updated_at = now()
		`,
			m.Pool,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			int64(m.LiquidityEvents),
			m.VolumeAsset,
			m.VolumeBase,
			m.FeeAsset,
			m.FeeBase,
			m.AssetReserve,
			m.BaseReserve,
			m.FeeRateAsset,
			m.FeeRateBase,
			m.APR,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range stats {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM engine_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO engine_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}
