// Package migrate applies the embedded schema migrations and seed files.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ekklesia.app/internal/obs"
)

const defaultHistoryTable = "ekklesia_schema_history"

// Kind tells schema steps from seed steps in the history table.
type Kind string

const (
	KindSchema Kind = "schema"
	KindSeed   Kind = "seed"
)

// ErrNothingApplied is returned by Down when no schema step is recorded.
var ErrNothingApplied = errors.New("migrate: no schema migration applied")

// Record is one applied step.
type Record struct {
	Kind      Kind
	Name      string
	AppliedAt time.Time
}

func (r Record) String() string {
	return fmt.Sprintf("%-6s %s %s", r.Kind, r.AppliedAt.UTC().Format(time.RFC3339), r.Name)
}

// step is a runnable unit: a schema migration with its rollback, or a seed.
type step struct {
	kind Kind
	name string
	up   string
	down string
}

// Manager runs steps from two file systems and records them in one table.
// Each step and its history row commit in the same transaction.
type Manager struct {
	db      *sql.DB
	schema  fs.FS
	seeds   fs.FS
	history string
	log     logrus.FieldLogger
}

// Option configures Manager.
type Option func(*Manager)

// WithHistoryTable overrides the bookkeeping table name.
func WithHistoryTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.history = name
		}
	}
}

// WithLogger overrides the progress logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager constructs a Manager. Either file system may be nil.
func NewManager(db *sql.DB, schema, seeds fs.FS, opts ...Option) *Manager {
	m := &Manager{
		db:      db,
		schema:  schema,
		seeds:   seeds,
		history: defaultHistoryTable,
		log:     obs.Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies every pending schema step in name order.
func (m *Manager) Up(ctx context.Context) error {
	steps, err := schemaSteps(m.schema)
	if err != nil {
		return err
	}
	return m.applyPending(ctx, KindSchema, steps)
}

// Seed applies every pending seed file in name order.
func (m *Manager) Seed(ctx context.Context) error {
	steps, err := seedSteps(m.seeds)
	if err != nil {
		return err
	}
	return m.applyPending(ctx, KindSeed, steps)
}

// Down rolls back the most recently applied schema step.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.ensureHistory(ctx); err != nil {
		return err
	}
	var name string
	err := m.db.QueryRowContext(ctx, fmt.Sprintf(
		`select name from %s where kind = $1 order by applied_at desc, name desc limit 1`, m.history),
		KindSchema).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNothingApplied
	}
	if err != nil {
		return err
	}

	steps, err := schemaSteps(m.schema)
	if err != nil {
		return err
	}
	for _, s := range steps {
		if s.name != name {
			continue
		}
		err := m.inTx(ctx, m.schema, s.down, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, fmt.Sprintf(`delete from %s where kind = $1 and name = $2`, m.history), KindSchema, name)
			return err
		})
		if err != nil {
			return fmt.Errorf("roll back %s: %w", name, err)
		}
		m.log.WithField("step", name).Info("schema step rolled back")
		return nil
	}
	return fmt.Errorf("migrate: applied step %s has no file", name)
}

// Status lists applied steps of both kinds, oldest first.
func (m *Manager) Status(ctx context.Context) ([]Record, error) {
	if err := m.ensureHistory(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(
		`select kind, name, applied_at from %s order by applied_at, kind, name`, m.history))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Kind, &rec.Name, &rec.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (m *Manager) applyPending(ctx context.Context, kind Kind, steps []step) error {
	if err := m.ensureHistory(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx, kind)
	if err != nil {
		return err
	}
	fsys := m.schema
	if kind == KindSeed {
		fsys = m.seeds
	}
	for _, s := range steps {
		if done[s.name] {
			continue
		}
		err := m.inTx(ctx, fsys, s.up, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, fmt.Sprintf(`insert into %s (kind, name, applied_at) values ($1, $2, $3)`, m.history),
				kind, s.name, time.Now().UTC())
			return err
		})
		if err != nil {
			return fmt.Errorf("apply %s %s: %w", kind, s.name, err)
		}
		m.log.WithFields(logrus.Fields{"kind": string(kind), "step": s.name}).Info("step applied")
	}
	return nil
}

func (m *Manager) ensureHistory(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(`create table if not exists %s (
		kind text not null,
		name text not null,
		applied_at timestamptz not null default now(),
		primary key (kind, name)
	)`, m.history))
	return err
}

func (m *Manager) applied(ctx context.Context, kind Kind) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s where kind = $1`, m.history), kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

// inTx runs the statements of file and then record inside one transaction.
func (m *Manager) inTx(ctx context.Context, fsys fs.FS, file string, record func(*sql.Tx) error) error {
	body, err := fs.ReadFile(fsys, file)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitSQL(string(body)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if err := record(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// schemaSteps pairs every NAME.up.sql with NAME.down.sql. A missing rollback
// is an error so Down can always run.
func schemaSteps(fsys fs.FS) ([]step, error) {
	if fsys == nil {
		return nil, nil
	}
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	steps := make([]step, 0, len(ups))
	for _, up := range ups {
		name := strings.TrimSuffix(up, ".up.sql")
		down := name + ".down.sql"
		if _, err := fs.Stat(fsys, down); err != nil {
			return nil, fmt.Errorf("migrate: %s has no %s", up, down)
		}
		steps = append(steps, step{kind: KindSchema, name: name, up: up, down: down})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].name < steps[j].name })
	return steps, nil
}

func seedSteps(fsys fs.FS) ([]step, error) {
	if fsys == nil {
		return nil, nil
	}
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}
	steps := make([]step, 0, len(files))
	for _, f := range files {
		steps = append(steps, step{kind: KindSeed, name: strings.TrimSuffix(f, ".sql"), up: f})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].name < steps[j].name })
	return steps, nil
}

// splitSQL cuts a script into statements at semicolons that are outside
// quoted literals and -- comments. Blank statements are dropped.
func splitSQL(script string) []string {
	var (
		out       []string
		cur       strings.Builder
		quoted    bool
		inComment bool
	)
	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			out = append(out, stmt)
		}
		cur.Reset()
	}
	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case inComment:
			if c == '\n' {
				inComment = false
				cur.WriteRune(c)
			}
		case !quoted && c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			inComment = true
			i++
		case c == '\'':
			quoted = !quoted
			cur.WriteRune(c)
		case c == ';' && !quoted:
			flush()
		default:
			cur.WriteRune(c)
		}
	}
	flush()
	return out
}
