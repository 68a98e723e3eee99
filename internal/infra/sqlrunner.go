package infra

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Row is the subset of *sql.Row used by repositories.
type Row interface {
	Scan(dest ...any) error
}

// Rows is the subset of *sql.Rows used by repositories.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// SQLExecutor is what repositories run their statements through.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

var markerLine = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)

var (
	// ErrMarkerMissing is returned for queries without a leading audit marker.
	ErrMarkerMissing = errors.New("sql marker missing or invalid")
	errEmptyQuery    = errors.New("empty query")
)

// DefaultSlowQuery is the latency above which a statement is logged at warn.
const DefaultSlowQuery = 250 * time.Millisecond

// markedQuery is a statement split into its audit marker and executable body.
type markedQuery struct {
	marker string
	body   string
}

// SQLRunner executes marked statements against a database. Every statement
// is logged under its marker, never with its arguments.
type SQLRunner struct {
	DB            *sql.DB
	Logger        zerolog.Logger
	SlowThreshold time.Duration

	parsed sync.Map // query text -> markedQuery
}

func NewSQLRunner(db *sql.DB, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{
		DB:            db,
		Logger:        logger.With().Str("component", "sql").Logger(),
		SlowThreshold: DefaultSlowQuery,
	}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	q, err := r.prepare(query)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	res, err := r.DB.ExecContext(ctx, q.body, args...)
	r.observe(q.marker, "exec", started, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) Row {
	q, err := r.prepare(query)
	if err != nil {
		return errorRow{err: err}
	}
	return &timedRow{
		row:     r.DB.QueryRowContext(ctx, q.body, args...),
		runner:  r,
		marker:  q.marker,
		started: time.Now(),
	}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	q, err := r.prepare(query)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	rows, err := r.DB.QueryContext(ctx, q.body, args...)
	if err != nil {
		r.observe(q.marker, "query", started, err)
		return nil, err
	}
	return &timedRows{Rows: rows, runner: r, marker: q.marker, started: started}, nil
}

func (r *SQLRunner) prepare(query string) (markedQuery, error) {
	if cached, ok := r.parsed.Load(query); ok {
		return cached.(markedQuery), nil
	}
	q, err := splitMarker(query)
	if err != nil {
		r.Logger.Error().Err(err).Msg("sql: rejected statement")
		return markedQuery{}, err
	}
	r.parsed.Store(query, q)
	return q, nil
}

// observe logs one finished statement. sql.ErrNoRows is a normal lookup
// outcome and logs like a success.
func (r *SQLRunner) observe(marker, op string, started time.Time, err error) {
	elapsed := time.Since(started)
	switch {
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		r.Logger.Error().Err(err).Str("sql", marker).Str("op", op).Dur("elapsed", elapsed).Msg("sql: failed")
	case r.SlowThreshold > 0 && elapsed > r.SlowThreshold:
		r.Logger.Warn().Str("sql", marker).Str("op", op).Dur("elapsed", elapsed).Msg("sql: slow")
	default:
		r.Logger.Debug().Str("sql", marker).Str("op", op).Dur("elapsed", elapsed).Msg("sql: ok")
	}
}

type timedRow struct {
	row     *sql.Row
	runner  *SQLRunner
	marker  string
	started time.Time
}

func (t *timedRow) Scan(dest ...any) error {
	err := t.row.Scan(dest...)
	t.runner.observe(t.marker, "query_row", t.started, err)
	return err
}

// timedRows reports once, on Close, covering the whole iteration.
type timedRows struct {
	*sql.Rows
	runner  *SQLRunner
	marker  string
	started time.Time
	once    sync.Once
}

func (t *timedRows) Close() error {
	err := t.Rows.Close()
	t.once.Do(func() {
		iterErr := t.Rows.Err()
		if iterErr == nil {
			iterErr = err
		}
		t.runner.observe(t.marker, "query", t.started, iterErr)
	})
	return err
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(dest ...any) error {
	return e.err
}

// splitMarker separates the leading "--sql <uuid>" line from the statement.
func splitMarker(query string) (markedQuery, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return markedQuery{}, errEmptyQuery
	}
	first, rest, _ := strings.Cut(trimmed, "\n")
	m := markerLine.FindStringSubmatch(strings.TrimSpace(first))
	if m == nil {
		return markedQuery{}, ErrMarkerMissing
	}
	return markedQuery{marker: m[1], body: strings.TrimSpace(rest)}, nil
}

var _ SQLExecutor = (*SQLRunner)(nil)
