package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/ledger-engine/internal/model"
)

// schema is applied by EnsureSchema. Attributes hold decimal strings, so
// amounts keep exact precision without NUMERIC columns.
const schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
    seq        BIGSERIAL PRIMARY KEY,
    id         UUID NOT NULL UNIQUE,
    type       TEXT NOT NULL,
    engine     TEXT NOT NULL,
    account    TEXT NOT NULL DEFAULT '',
    attributes JSONB NOT NULL DEFAULT '{}'::JSONB,
    timestamp  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_events_account_idx ON ledger_events (account, seq DESC);
CREATE INDEX IF NOT EXISTS ledger_events_engine_idx ON ledger_events (engine, seq DESC);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the journal table and indexes if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, ev *model.Event) error {
	attrs, err := json.Marshal(ev.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO ledger_events (id, type, engine, account, attributes, timestamp)
		 VALUES ($1, $2, $3, $4, $5::JSONB, $6)`,
		ev.ID, ev.Type, ev.Engine, ev.Account, string(attrs), ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return nil
}

// GetEvent returns ErrNotFound for ids that are not UUIDs, since no such
// row can exist.
func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id::TEXT, type, engine, account, attributes::TEXT, timestamp
		 FROM ledger_events WHERE id = $1`, id)

	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return &ev, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter Filter) ([]model.Event, error) {
	filter = filter.normalize()

	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, type, engine, account, attributes::TEXT, timestamp
		 FROM ledger_events
		 WHERE ($1::TEXT = '' OR account = $1) AND ($2::TEXT = '' OR engine = $2)
		 ORDER BY seq DESC
		 LIMIT $3`,
		filter.Account, filter.Engine, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]model.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// scanEvent reads one row into an Event.
func scanEvent(row pgx.Row) (model.Event, error) {
	var ev model.Event
	var attrs string
	if err := row.Scan(&ev.ID, &ev.Type, &ev.Engine, &ev.Account, &attrs, &ev.Timestamp); err != nil {
		return model.Event{}, err
	}
	if err := json.Unmarshal([]byte(attrs), &ev.Attributes); err != nil {
		return model.Event{}, fmt.Errorf("decode attributes of %s: %w", ev.ID, err)
	}
	if ev.Attributes == nil {
		ev.Attributes = map[string]string{}
	}
	ev.Timestamp = ev.Timestamp.UTC()
	return ev, nil
}
