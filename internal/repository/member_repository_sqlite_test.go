package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/slack-itop-bridge/internal/domain"
	"github.com/spec-kit/slack-itop-bridge/internal/persistence"
)

func newSQLiteRepo(t *testing.T) MemberRepository {
	t.Helper()
	db, err := persistence.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "user_db.sqlite"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return NewSQLiteMemberRepository(db.DB)
}

func TestSQLiteMemberRepositoryUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	require.NoError(t, repo.Upsert(ctx, []domain.Member{
		{ID: "U1", Username: "jane", FirstName: "Jane", LastName: "Doe", RealName: "Jane Doe", Email: "jane@xxx.com", IsAdmin: true},
	}))
	require.NoError(t, repo.Upsert(ctx, []domain.Member{
		{ID: "U1", Username: "jane", FirstName: "Jane", LastName: "Smith", RealName: "Jane Smith", Email: "jane@xxx.com"},
	}))

	m, err := repo.GetByID(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "Smith", m.LastName)
	assert.False(t, m.IsAdmin)
	assert.False(t, m.UpdatedAt.IsZero())

	_, err = repo.GetByID(ctx, "U404")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSQLiteMemberRepositoryFindByRealNameOrdered(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	require.NoError(t, repo.Upsert(ctx, []domain.Member{
		{ID: "U9", RealName: "Jane Doe"},
		{ID: "U2", RealName: "Jane Doe"},
		{ID: "U5", RealName: "John Roe"},
	}))

	found, err := repo.FindByRealName(ctx, "Jane Doe")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "U2", found[0].ID)
	assert.Equal(t, "U9", found[1].ID)

	none, err := repo.FindByRealName(ctx, "Nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteMemberRepositoryDeleteExcept(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	require.NoError(t, repo.Upsert(ctx, []domain.Member{
		{ID: "U1", Email: "a@xxx.com"},
		{ID: "U2", Email: "b@XXXX.com"},
		{ID: "U3", Email: "c@gmail.com"},
		{ID: "U4", Email: "gone@xxx.com"},
	}))

	deleted, err := repo.DeleteExcept(ctx, []string{"U1", "U2", "U3"}, []string{"@xxx.com", "@xxxx.com"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = repo.GetByID(ctx, "U3")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestSQLiteMemberRepositoryDeleteExceptWithoutDomains(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	require.NoError(t, repo.Upsert(ctx, []domain.Member{{ID: "U1", Email: "x@gmail.com"}, {ID: "U2"}}))

	deleted, err := repo.DeleteExcept(ctx, []string{"U1"}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}
