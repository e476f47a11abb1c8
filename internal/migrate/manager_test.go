package migrate

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus/hooks/test"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, func(fs.FS, fs.FS) *Manager) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	logger, _ := test.NewNullLogger()
	return mock, func(schema, seeds fs.FS) *Manager {
		return NewManager(db, schema, seeds, WithLogger(logger))
	}
}

func expectHistoryTable(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists ekklesia_schema_history").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPendingStepsWithHistoryInSameTx(t *testing.T) {
	mock, build := newMock(t)
	schema := fstest.MapFS{
		"0002_b.up.sql":   {Data: []byte("create table b (x int); -- trailing; comment\ninsert into b values (';');")},
		"0002_b.down.sql": {Data: []byte("drop table b;")},
		"0001_a.up.sql":   {Data: []byte("create table a (x int);")},
		"0001_a.down.sql": {Data: []byte("drop table a;")},
	}

	expectHistoryTable(mock)
	mock.ExpectQuery("select name from ekklesia_schema_history where kind = \\$1").
		WithArgs(KindSchema).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a"))
	mock.ExpectBegin()
	mock.ExpectExec("create table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into b values \\(';'\\)").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into ekklesia_schema_history").
		WithArgs(KindSchema, "0002_b", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := build(schema, nil).Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpRollsBackFailedStep(t *testing.T) {
	mock, build := newMock(t)
	schema := fstest.MapFS{
		"0001_a.up.sql":   {Data: []byte("create table a (x int);")},
		"0001_a.down.sql": {Data: []byte("drop table a;")},
	}

	expectHistoryTable(mock)
	mock.ExpectQuery("select name from ekklesia_schema_history").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table a").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	if err := build(schema, nil).Up(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpRequiresRollbackFile(t *testing.T) {
	_, build := newMock(t)
	schema := fstest.MapFS{"0001_a.up.sql": {Data: []byte("create table a (x int);")}}
	if err := build(schema, nil).Up(context.Background()); err == nil {
		t.Fatal("expected error for missing down file")
	}
}

func TestDownRollsBackLatest(t *testing.T) {
	mock, build := newMock(t)
	schema := fstest.MapFS{
		"0001_a.up.sql":   {Data: []byte("create table a (x int);")},
		"0001_a.down.sql": {Data: []byte("drop table a;")},
	}

	expectHistoryTable(mock)
	mock.ExpectQuery("select name from ekklesia_schema_history where kind = \\$1 order by applied_at desc").
		WithArgs(KindSchema).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a"))
	mock.ExpectBegin()
	mock.ExpectExec("drop table a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from ekklesia_schema_history where kind = \\$1 and name = \\$2").
		WithArgs(KindSchema, "0001_a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := build(schema, nil).Down(context.Background()); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownWithEmptyHistory(t *testing.T) {
	mock, build := newMock(t)
	expectHistoryTable(mock)
	mock.ExpectQuery("select name from ekklesia_schema_history").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	if err := build(fstest.MapFS{}, nil).Down(context.Background()); !errors.Is(err, ErrNothingApplied) {
		t.Fatalf("err = %v, want ErrNothingApplied", err)
	}
}

func TestSeedAndStatus(t *testing.T) {
	mock, build := newMock(t)
	seeds := fstest.MapFS{"0001_demo.sql": {Data: []byte("insert into tenants (slug) values ('demo');")}}

	expectHistoryTable(mock)
	mock.ExpectQuery("select name from ekklesia_schema_history where kind = \\$1").
		WithArgs(KindSeed).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("insert into tenants").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into ekklesia_schema_history").
		WithArgs(KindSeed, "0001_demo", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	expectHistoryTable(mock)
	mock.ExpectQuery("select kind, name, applied_at from ekklesia_schema_history").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "name", "applied_at"}).
			AddRow("schema", "0001_a", applied).
			AddRow("seed", "0001_demo", applied))

	m := build(nil, seeds)
	if err := m.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	recs, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(recs) != 2 || recs[1].Kind != KindSeed || recs[1].Name != "0001_demo" {
		t.Fatalf("records = %+v", recs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEmbeddedFilesPair(t *testing.T) {
	steps, err := schemaSteps(Migrations())
	if err != nil {
		t.Fatalf("embedded schema: %v", err)
	}
	if len(steps) == 0 {
		t.Fatal("expected embedded migrations")
	}
	seeds, err := seedSteps(Seeds())
	if err != nil || len(seeds) == 0 {
		t.Fatalf("expected embedded seeds, got %v (%v)", seeds, err)
	}
}

func TestSplitSQL(t *testing.T) {
	got := splitSQL("insert into t values ('a;b'); -- note; here\n\nselect 1;  ;")
	want := []string{"insert into t values ('a;b')", "select 1"}
	if len(got) != len(want) {
		t.Fatalf("statements = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("statement %d = %q, want %q", i, got[i], want[i])
		}
	}
}
