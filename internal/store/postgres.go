package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"honest-grader/internal/grading"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Advisory lock keeps the gateway and worker from migrating at the same time.
	const lockID = 724311093

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if !acquired {
		// Another service is running migrations; wait briefly and skip
		time.Sleep(2 * time.Second)
		return nil
	}

	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS gradings (
			id UUID PRIMARY KEY,
			status TEXT NOT NULL,
			assignment_type TEXT NOT NULL,
			grade_level TEXT NOT NULL,
			request JSONB NOT NULL,
			result JSONB,
			letter_grade TEXT,
			percent DOUBLE PRECISION,
			top_fixes TEXT[] NOT NULL DEFAULT ARRAY[]::TEXT[],
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS gradings_created_at_idx ON gradings (created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateGrading(ctx context.Context, req grading.Request) (Grading, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return Grading{}, fmt.Errorf("marshal request: %w", err)
	}
	id := uuid.New()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO gradings(id, status, assignment_type, grade_level, request, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$6)`,
		id, StatusPending, req.AssignmentType, req.GradeLevel, reqJSON, now)
	if err != nil {
		return Grading{}, err
	}
	return Grading{ID: id, Status: StatusPending, Request: req, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *PostgresStore) GetGrading(ctx context.Context, id uuid.UUID) (Grading, error) {
	var (
		g          Grading
		reqJSON    []byte
		resultJSON []byte
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, request, result, error, created_at, updated_at
		FROM gradings WHERE id=$1`, id)
	if err := row.Scan(&g.ID, &g.Status, &reqJSON, &resultJSON, &g.Error, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Grading{}, ErrGradingNotFound
		}
		return Grading{}, fmt.Errorf("failed to get grading %s: %w", id, err)
	}
	if err := json.Unmarshal(reqJSON, &g.Request); err != nil {
		return Grading{}, fmt.Errorf("decode request for grading %s: %w", id, err)
	}
	if len(resultJSON) > 0 {
		var res grading.Result
		if err := json.Unmarshal(resultJSON, &res); err != nil {
			return Grading{}, fmt.Errorf("decode result for grading %s: %w", id, err)
		}
		g.Result = &res
	}
	return g, nil
}

func (s *PostgresStore) UpdateGradingStatus(ctx context.Context, id uuid.UUID, status Status, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE gradings SET status=$1, error=$2, updated_at=now() WHERE id=$3`, status, errMsg, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGradingNotFound
	}
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, id uuid.UUID, result grading.Result) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE gradings
		SET status=$1, result=$2, letter_grade=$3, percent=$4, top_fixes=$5, error='', updated_at=now()
		WHERE id=$6`,
		StatusCompleted, resultJSON, result.LetterGrade, result.Percent, pq.Array(nonNil(result.TopFixes)), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGradingNotFound
	}
	return nil
}

func (s *PostgresStore) ListGradings(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, assignment_type, grade_level,
			COALESCE(letter_grade, ''), percent, top_fixes, created_at
		FROM gradings
		ORDER BY created_at DESC
		LIMIT $1`, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum     Summary
			percent sql.NullFloat64
		)
		if err := rows.Scan(&sum.ID, &sum.Status, &sum.AssignmentType, &sum.GradeLevel,
			&sum.LetterGrade, &percent, pq.Array(&sum.TopFixes), &sum.CreatedAt); err != nil {
			return nil, err
		}
		if percent.Valid {
			p := percent.Float64
			sum.Percent = &p
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// ClampLimit applies the default and ceiling for list queries.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
