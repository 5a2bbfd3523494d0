package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spec-kit/slack-itop-bridge/internal/domain"
)

type sqliteMemberRepository struct {
	db *sql.DB
}

// NewSQLiteMemberRepository returns a MemberRepository on a single-file database.
func NewSQLiteMemberRepository(db *sql.DB) MemberRepository {
	return &sqliteMemberRepository{db: db}
}

func (r *sqliteMemberRepository) Upsert(ctx context.Context, members []domain.Member) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO members (id, username, first_name, last_name, real_name, email, is_admin, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, m := range members {
		if _, err := stmt.ExecContext(ctx, m.ID, m.Username, m.FirstName, m.LastName, m.RealName, m.Email, m.IsAdmin, now); err != nil {
			return fmt.Errorf("upsert member %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

func (r *sqliteMemberRepository) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, first_name, last_name, real_name, email, is_admin, updated_at
		FROM members WHERE id = ?`, id)
	m, err := scanSQLiteMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMemberNotFound
	}
	return m, err
}

func (r *sqliteMemberRepository) FindByRealName(ctx context.Context, name string) ([]domain.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, username, first_name, last_name, real_name, email, is_admin, updated_at
		FROM members WHERE real_name = ? ORDER BY id ASC`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Member
	for rows.Next() {
		m, err := scanSQLiteMember(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

// DeleteExcept evaluates the filter in Go so the active id list is not
// bound as thousands of statement parameters.
func (r *sqliteMemberRepository) DeleteExcept(ctx context.Context, activeIDs []string, allowedDomains []string) (int64, error) {
	active := make(map[string]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = struct{}{}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `SELECT id, email FROM members`)
	if err != nil {
		return 0, err
	}
	var stale []string
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.Email); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := active[m.ID]; !ok || !m.HasEmailDomain(allowedDomains) {
			stale = append(stale, m.ID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var deleted int64
	for _, id := range stale {
		res, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	return deleted, tx.Commit()
}

func (r *sqliteMemberRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMember(row rowScanner) (*domain.Member, error) {
	var m domain.Member
	if err := row.Scan(
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
	return &m, nil
}
