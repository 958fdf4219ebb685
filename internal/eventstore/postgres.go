package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/clubhub/internal/model"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
}

// Schema creates the rolled_events table.
const Schema = `
CREATE TABLE IF NOT EXISTS rolled_events (
	id         BIGINT PRIMARY KEY,
	club       TEXT NOT NULL,
	event      TEXT NOT NULL,
	date       TEXT NOT NULL DEFAULT '',
	time       TEXT NOT NULL DEFAULT '',
	venue      TEXT NOT NULL DEFAULT 'TBD',
	descr      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT '',
	extra      JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps events in the rolled_events table.
type PostgresStore struct {
	db     DB
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresStore creates a store on db, typically a *pgxpool.Pool.
func NewPostgresStore(db DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:     db,
		logger: logger.With("component", "eventstore", "driver", "postgres"),
		now:    time.Now,
	}
}

// EnsureSchema creates the table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create rolled_events: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e model.Event) (model.Event, error) {
	e, err := prepare(e, s.now())
	if err != nil {
		return e, err
	}

	row, err := toRow(e)
	if err != nil {
		return e, err
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO rolled_events (id, club, event, date, time, venue, descr, status, extra)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, row.ID, row.Club, row.Event, row.Date, row.Time, row.Venue, row.Desc, row.Status, row.Extra).Scan(&row.ID)
	if err != nil {
		return e, fmt.Errorf("insert event %d: %w", e.ID, err)
	}

	return row.toModel()
}

func (s *PostgresStore) List(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, club, event, date, time, venue, descr, status, extra
		FROM rolled_events
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var r eventRow
		if err := rows.Scan(&r.ID, &r.Club, &r.Event, &r.Date, &r.Time, &r.Venue, &r.Desc, &r.Status, &r.Extra); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e, err := r.toModel()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// Import inserts events in one batch, skipping IDs that already exist.
// It returns the number of events inserted.
func (s *PostgresStore) Import(ctx context.Context, events []model.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		r, err := toRow(e)
		if err != nil {
			return 0, err
		}
		batch.Queue(`
			INSERT INTO rolled_events (id, club, event, date, time, venue, descr, status, extra)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.Club, r.Event, r.Date, r.Time, r.Venue, r.Desc, r.Status, r.Extra)
	}

	start := time.Now()
	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range events {
		ct, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("import events: %w", err)
		}
		inserted += int(ct.RowsAffected())
	}

	s.logger.Info("imported events",
		"count", len(events),
		"inserted", inserted,
		"conflicts", len(events)-inserted,
		"duration", time.Since(start),
	)
	return inserted, nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// eventRow is the database representation of a model.Event.
type eventRow struct {
	ID     int64
	Club   string
	Event  string
	Date   string
	Time   string
	Venue  string
	Desc   string
	Status string
	Extra  []byte // JSON object of undeclared fields, nil when there are none
}

func toRow(e model.Event) (eventRow, error) {
	r := eventRow{
		ID:     int64(e.ID),
		Club:   e.Club,
		Event:  e.Event,
		Date:   e.Date,
		Time:   e.Time,
		Venue:  e.Venue,
		Desc:   e.Desc,
		Status: e.Status,
	}
	if len(e.Extra) > 0 {
		extra, err := json.Marshal(e.Extra)
		if err != nil {
			return r, fmt.Errorf("marshal extra fields of event %d: %w", e.ID, err)
		}
		r.Extra = extra
	}
	return r, nil
}

func (r eventRow) toModel() (model.Event, error) {
	e := model.Event{
		ID:     int(r.ID),
		Club:   r.Club,
		Event:  r.Event,
		Date:   r.Date,
		Time:   r.Time,
		Venue:  r.Venue,
		Desc:   r.Desc,
		Status: r.Status,
	}
	if len(r.Extra) > 0 {
		if err := json.Unmarshal(r.Extra, &e.Extra); err != nil {
			return e, fmt.Errorf("parse extra fields of event %d: %w", r.ID, err)
		}
	}
	return e, nil
}
