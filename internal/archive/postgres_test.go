package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRow implements pgx.Row.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockRows implements pgx.Rows over in-memory rows.
type mockRows struct {
	data   [][]any
	idx    int
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return nil }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	return assign(r.data[r.idx-1], dest)
}

// assign copies row values into scan destinations.
func assign(row []any, dest []any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d columns, %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockDB implements DB.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	pingErr      error
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (m *mockDB) Ping(context.Context) error { return m.pingErr }

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	var executed string
	s := NewPostgresStore(&mockDB{execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
		executed = sql
		return pgconn.CommandTag{}, nil
	}})
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if executed != Schema {
		t.Error("Migrate did not execute Schema")
	}

	failing := NewPostgresStore(&mockDB{execFunc: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}})
	if err := failing.Migrate(context.Background()); err == nil || !strings.Contains(err.Error(), "migrate") {
		t.Errorf("Migrate err = %v, want wrapped migrate error", err)
	}
}

func TestPostgresStore_Save(t *testing.T) {
	t.Parallel()

	var gotArgs []any
	s := NewPostgresStore(&mockDB{execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		if !strings.Contains(sql, "INSERT INTO verse_records") {
			t.Errorf("unexpected sql: %s", sql)
		}
		gotArgs = args
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}})

	rec := endWordsRecord("day", "may")
	if err := s.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(gotArgs) != 5 {
		t.Fatalf("args = %d, want 5", len(gotArgs))
	}
	if gotArgs[0] != rec.ID || gotArgs[1] != "end_words" {
		t.Errorf("id/kind args = %v %v", gotArgs[0], gotArgs[1])
	}
	if lines := string(gotArgs[2].([]byte)); lines != "[]" {
		t.Errorf("lines = %s, want []", lines)
	}
	if body := string(gotArgs[3].([]byte)); body != `{"end_words":["day","may"]}` {
		t.Errorf("payload = %s", body)
	}
}

func TestPostgresStore_SaveRejectsInvalid(t *testing.T) {
	t.Parallel()

	s := NewPostgresStore(&mockDB{execFunc: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		t.Error("Exec called for an invalid record")
		return pgconn.CommandTag{}, nil
	}})
	if err := s.Save(context.Background(), &Record{Kind: KindEndWords}); err == nil {
		t.Error("Save accepted an empty end-words record")
	}
}

func TestPostgresStore_Get(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s := NewPostgresStore(&mockDB{queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
		return &mockRow{scanFunc: func(dest ...any) error {
			if args[0] != "abc" {
				return pgx.ErrNoRows
			}
			return assign([]any{
				"abc", "scan",
				[]byte(`["Shall I compare thee to a summer's day?"]`),
				[]byte(`{"report":{"lines":null,"rhyme_mismatches":null,"unknown_words":null,"pentameter_lines":1}}`),
				created,
			}, dest)
		}}
	}})

	got, err := s.Get(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind != KindScan || got.Report == nil || got.Report.Pentameter != 1 {
		t.Errorf("Get = %+v", got)
	}
	if len(got.Lines) != 1 || !got.CreatedAt.Equal(created) {
		t.Errorf("Lines = %v, CreatedAt = %v", got.Lines, got.CreatedAt)
	}

	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(nope) err = %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_List(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	rows := &mockRows{data: [][]any{
		{"2", "end_words", []byte(`[]`), []byte(`{"end_words":["light","night"]}`), now},
		{"1", "end_words", []byte(`[]`), []byte(`{"end_words":["day","may"]}`), now.Add(-time.Minute)},
	}}
	var gotArgs []any
	s := NewPostgresStore(&mockDB{queryFunc: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
		if !strings.Contains(sql, "WHERE kind = $1") {
			t.Errorf("expected kind filter in sql: %s", sql)
		}
		gotArgs = args
		return rows, nil
	}})

	got, err := s.List(context.Background(), KindEndWords, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != "2" || got[1].EndWords[0] != "day" {
		t.Errorf("List = %+v", got)
	}
	if gotArgs[0] != "end_words" || gotArgs[1] != 10 {
		t.Errorf("args = %v, want [end_words 10]", gotArgs)
	}
	if !rows.closed {
		t.Error("rows not closed")
	}
}

func TestPostgresStore_Ping(t *testing.T) {
	t.Parallel()

	if err := NewPostgresStore(&mockDB{}).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	down := NewPostgresStore(&mockDB{pingErr: errors.New("connection refused")})
	if err := down.Ping(context.Background()); err == nil {
		t.Error("Ping succeeded against a down database")
	}
}
