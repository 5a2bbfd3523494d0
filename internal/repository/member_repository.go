package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/slack-itop-bridge/internal/domain"
)

// MemberRepository defines persistence access for cached workspace members.
type MemberRepository interface {
	Upsert(ctx context.Context, members []domain.Member) error
	GetByID(ctx context.Context, id string) (*domain.Member, error)
	// FindByRealName returns every member with that display name, ordered by id.
	FindByRealName(ctx context.Context, name string) ([]domain.Member, error)
	// DeleteExcept removes members missing from activeIDs and, when
	// allowedDomains is non-empty, members whose email matches none of them.
	DeleteExcept(ctx context.Context, activeIDs []string, allowedDomains []string) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type memberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository returns a Postgres-backed implementation.
func NewMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &memberRepository{pool: pool}
}

func (r *memberRepository) Upsert(ctx context.Context, members []domain.Member) error {
	const query = `
        INSERT INTO members (id, username, first_name, last_name, real_name, email, is_admin, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        ON CONFLICT (id) DO UPDATE SET
            username=EXCLUDED.username, first_name=EXCLUDED.first_name, last_name=EXCLUDED.last_name,
            real_name=EXCLUDED.real_name, email=EXCLUDED.email, is_admin=EXCLUDED.is_admin, updated_at=NOW()`

	batch := &pgx.Batch{}
	for _, m := range members {
		batch.Queue(query, m.ID, m.Username, m.FirstName, m.LastName, m.RealName, m.Email, m.IsAdmin)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *memberRepository) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	const query = `
        SELECT id, username, first_name, last_name, real_name, email, is_admin, updated_at
        FROM members WHERE id=$1`

	var m domain.Member
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.Username,
		&m.FirstName,
		&m.LastName,
		&m.RealName,
		&m.Email,
		&m.IsAdmin,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *memberRepository) FindByRealName(ctx context.Context, name string) ([]domain.Member, error) {
	const query = `
        SELECT id, username, first_name, last_name, real_name, email, is_admin, updated_at
        FROM members WHERE real_name=$1 ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(
			&m.ID,
			&m.Username,
			&m.FirstName,
			&m.LastName,
			&m.RealName,
			&m.Email,
			&m.IsAdmin,
			&m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *memberRepository) DeleteExcept(ctx context.Context, activeIDs []string, allowedDomains []string) (int64, error) {
	if activeIDs == nil {
		activeIDs = []string{}
	}
	patterns := make([]string, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		patterns = append(patterns, "%"+strings.ToLower(d))
	}

	const query = `
        DELETE FROM members
        WHERE id <> ALL($1)
           OR (cardinality($2::text[]) > 0 AND NOT (lower(email) LIKE ANY($2)))`

	cmd, err := r.pool.Exec(ctx, query, activeIDs, patterns)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *memberRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM members`).Scan(&n)
	return n, err
}
