package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/clubhub/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRow scans a fixed id.
type fakeRow struct {
	id  int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.id
	return nil
}

// fakeRows yields fixed event rows.
type fakeRows struct {
	pgx.Rows
	rows   []eventRow
	i      int
	err    error
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.i-1]
	*dest[0].(*int64) = row.ID
	*dest[1].(*string) = row.Club
	*dest[2].(*string) = row.Event
	*dest[3].(*string) = row.Date
	*dest[4].(*string) = row.Time
	*dest[5].(*string) = row.Venue
	*dest[6].(*string) = row.Desc
	*dest[7].(*string) = row.Status
	*dest[8].(*[]byte) = row.Extra
	return nil
}

func (r *fakeRows) Err() error { return r.err }
func (r *fakeRows) Close()     { r.closed = true }

// fakeBatchResults reports one affected row per insert unless the id conflicts.
type fakeBatchResults struct {
	pgx.BatchResults
	affected []int64
	i        int
	closed   bool
}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	n := b.affected[b.i]
	b.i++
	if n == 0 {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (b *fakeBatchResults) Close() error {
	b.closed = true
	return nil
}

type fakeDB struct {
	execSQL  []string
	execErr  error
	queryArg []any
	row      fakeRow
	rows     *fakeRows
	batch    *pgx.Batch
	results  *fakeBatchResults
	pingErr  error
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execSQL = append(db.execSQL, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), db.execErr
}

func (db *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return db.rows, nil
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.queryArg = args
	return db.row
}

func (db *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	db.batch = b
	return db.results
}

func (db *fakeDB) Ping(ctx context.Context) error {
	return db.pingErr
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	s := NewPostgresStore(db, discardLogger())

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "CREATE TABLE IF NOT EXISTS rolled_events") {
		t.Errorf("exec = %v", db.execSQL)
	}

	db.execErr = errors.New("permission denied")
	if err := s.EnsureSchema(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestPostgresStore_Append(t *testing.T) {
	db := &fakeDB{row: fakeRow{id: 1718000000000}}
	s := NewPostgresStore(db, discardLogger())
	s.now = func() time.Time { return time.UnixMilli(1718000000000) }

	stored, err := s.Append(context.Background(), model.Event{
		Club:  "robotics",
		Event: "Bot Wars",
		Desc:  "Arena",
		Extra: map[string]json.RawMessage{"poster": json.RawMessage(`"bots.png"`)},
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if stored.ID != 1718000000000 || stored.Venue != "TBD" || stored.Desc != "Arena" {
		t.Errorf("stored = %+v", stored)
	}
	if len(db.queryArg) != 9 {
		t.Fatalf("args = %v, want 9", db.queryArg)
	}
	if db.queryArg[0] != int64(1718000000000) {
		t.Errorf("id arg = %v", db.queryArg[0])
	}
	if db.queryArg[5] != "TBD" {
		t.Errorf("venue arg = %v, want TBD", db.queryArg[5])
	}
	if extra, _ := db.queryArg[8].([]byte); string(extra) != `{"poster":"bots.png"}` {
		t.Errorf("extra arg = %s", db.queryArg[8])
	}
	if string(stored.Extra["poster"]) != `"bots.png"` {
		t.Errorf("stored.Extra = %v", stored.Extra)
	}
}

func TestPostgresStore_AppendErrors(t *testing.T) {
	t.Run("invalid event skips the database", func(t *testing.T) {
		db := &fakeDB{}
		s := NewPostgresStore(db, discardLogger())
		if _, err := s.Append(context.Background(), model.Event{Club: "c"}); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("error = %v, want ErrInvalidEvent", err)
		}
		if db.queryArg != nil {
			t.Error("database should not be queried")
		}
	})

	t.Run("insert failure", func(t *testing.T) {
		db := &fakeDB{row: fakeRow{err: errors.New("duplicate key")}}
		s := NewPostgresStore(db, discardLogger())
		_, err := s.Append(context.Background(), model.Event{ID: 7, Club: "c", Event: "e"})
		if err == nil || !strings.Contains(err.Error(), "insert event 7") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestPostgresStore_List(t *testing.T) {
	rows := &fakeRows{rows: []eventRow{
		{ID: 1, Club: "drama", Event: "Play", Venue: "Hall"},
		{ID: 2, Club: "robotics", Event: "Bot Wars", Status: model.EventApproved, Extra: []byte(`{"poster":"bots.png"}`)},
	}}
	s := NewPostgresStore(&fakeDB{rows: rows}, discardLogger())

	events, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Event != "Play" || events[1].Status != model.EventApproved {
		t.Errorf("events = %+v", events)
	}
	if events[0].Extra != nil || string(events[1].Extra["poster"]) != `"bots.png"` {
		t.Errorf("extras = %v, %v", events[0].Extra, events[1].Extra)
	}
	if !rows.closed {
		t.Error("rows not closed")
	}

	t.Run("iteration error", func(t *testing.T) {
		s := NewPostgresStore(&fakeDB{rows: &fakeRows{err: errors.New("conn reset")}}, discardLogger())
		if _, err := s.List(context.Background()); err == nil {
			t.Error("expected error")
		}
	})
}

func TestPostgresStore_Import(t *testing.T) {
	results := &fakeBatchResults{affected: []int64{1, 0, 1}}
	db := &fakeDB{results: results}
	s := NewPostgresStore(db, discardLogger())

	events := []model.Event{
		{ID: 1, Club: "a", Event: "x"},
		{ID: 2, Club: "b", Event: "y"},
		{ID: 3, Club: "c", Event: "z"},
	}

	inserted, err := s.Import(context.Background(), events)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if inserted != 2 {
		t.Errorf("inserted = %d, want 2", inserted)
	}
	if db.batch.Len() != 3 {
		t.Errorf("batch.Len() = %d, want 3", db.batch.Len())
	}
	if !results.closed {
		t.Error("batch results not closed")
	}

	n, err := s.Import(context.Background(), nil)
	if err != nil || n != 0 {
		t.Errorf("Import(nil) = %d, %v", n, err)
	}
}

func TestEventRowRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		event model.Event
	}{
		{"declared fields", model.Event{ID: 42, Club: "c", Event: "e", Date: "d", Time: "t", Venue: "v", Desc: "x", Status: model.EventRejected}},
		{"with extra", model.Event{ID: 43, Club: "c", Event: "e", Extra: map[string]json.RawMessage{"tags": json.RawMessage(`["a","b"]`)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := toRow(tt.event)
			if err != nil {
				t.Fatalf("toRow() error = %v", err)
			}
			got, err := row.toModel()
			if err != nil {
				t.Fatalf("toModel() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.event) {
				t.Errorf("round trip = %+v, want %+v", got, tt.event)
			}
		})
	}
}
