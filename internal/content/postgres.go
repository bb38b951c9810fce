package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxPool is the subset of *pgxpool.Pool the store uses.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore persists content records in PostgreSQL. The unique index on
// date_created enforces one record per calendar date.
type PostgresStore struct {
	pool pgxPool
	now  func() time.Time
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return newPostgresStore(pool), nil
}

func newPostgresStore(pool pgxPool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func initSchema(ctx context.Context, pool pgxPool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS content_records (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			date_created DATE NOT NULL,
			audio_url TEXT NULL,
			audio_duration_seconds DOUBLE PRECISION NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_content_records_date ON content_records (date_created);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const recordColumns = `id, content, category, date_created, audio_url, audio_duration_seconds, created_at, updated_at`

func (s *PostgresStore) GetByDate(ctx context.Context, date time.Time) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM content_records WHERE date_created=$1`,
		Date(date),
	)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get record by date: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListBetween(ctx context.Context, from, to time.Time) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM content_records
		 WHERE date_created BETWEEN $1 AND $2 ORDER BY date_created DESC`,
		Date(from),
		Date(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Create(ctx context.Context, draft Draft) (Record, error) {
	now := s.now()
	conflict := `ON CONFLICT (date_created) DO NOTHING`
	if draft.Overwrite {
		conflict = `ON CONFLICT (date_created) DO UPDATE SET
			content=EXCLUDED.content,
			category=EXCLUDED.category,
			audio_url=NULL,
			audio_duration_seconds=NULL,
			updated_at=EXCLUDED.updated_at`
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO content_records (id, content, category, date_created, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) `+conflict+`
		 RETURNING `+recordColumns,
		uuid.NewString(),
		draft.Content,
		string(draft.Category),
		Date(draft.Date),
		now,
		now,
	)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrDuplicateDate
	}
	if err != nil {
		return Record{}, fmt.Errorf("insert record: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) UpdateAudio(ctx context.Context, id, audioURL string, durationSeconds float64) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE content_records SET audio_url=$2, audio_duration_seconds=$3, updated_at=$4
		 WHERE id=$1 RETURNING `+recordColumns,
		id,
		audioURL,
		durationSeconds,
		s.now(),
	)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("update record audio: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		r        Record
		category string
	)
	if err := row.Scan(
		&r.ID,
		&r.Content,
		&category,
		&r.DateCreated,
		&r.AudioURL,
		&r.AudioDurationSeconds,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return Record{}, err
	}
	r.Category = Category(category)
	r.DateCreated = Date(r.DateCreated)
	return r, nil
}
