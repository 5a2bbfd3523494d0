package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/slack-itop-bridge/internal/domain"
)

func workspaceUsers() []domain.WorkspaceUser {
	return []domain.WorkspaceUser{
		{Member: domain.Member{ID: "U1", RealName: "Jane Doe", Email: "jane@xxx.com", IsAdmin: true}},
		{Member: domain.Member{ID: "U2", RealName: "Guest", Email: "guest@gmail.com"}},
		{Member: domain.Member{ID: "B1", RealName: "Bot"}, IsBot: true},
		{Member: domain.Member{ID: "A1", RealName: "App"}, IsAppUser: true},
		{Member: domain.Member{ID: "U3", RealName: "Gone", Email: "gone@xxx.com"}, Deleted: true},
	}
}

func TestMemberServiceImportSkipsBotsAndDeleted(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := NewMemberService(MemberDependencies{
		MemberRepo: repo,
		Chat:       &fakeChat{users: workspaceUsers()},
		Logger:     zap.NewNop(),
	})

	res, err := svc.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Listed: 5, Stored: 2}, res)
	assert.Len(t, repo.members, 2)
	assert.Contains(t, repo.members, "U1")
	assert.Contains(t, repo.members, "U2")
}

func TestMemberServiceRefreshPrunes(t *testing.T) {
	repo := newFakeMemberRepo(domain.Member{ID: "U9", Email: "left@xxx.com"})
	svc := NewMemberService(MemberDependencies{
		MemberRepo:          repo,
		Chat:                &fakeChat{users: workspaceUsers()},
		AllowedEmailDomains: []string{"@xxx.com"},
		Logger:              zap.NewNop(),
	})

	res, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Deleted)
	assert.Equal(t, []string{"U1", "U2", "B1", "A1"}, repo.pruned.active)
	assert.Len(t, repo.members, 1)
	assert.Contains(t, repo.members, "U1")
}

func TestMemberServiceRefreshRefusesEmptyWorkspace(t *testing.T) {
	repo := newFakeMemberRepo(domain.Member{ID: "U1"})
	svc := NewMemberService(MemberDependencies{MemberRepo: repo, Chat: &fakeChat{}, Logger: zap.NewNop()})

	_, err := svc.Refresh(context.Background())
	require.Error(t, err)
	assert.Len(t, repo.members, 1)
}

func TestMemberServiceIsAdmin(t *testing.T) {
	repo := newFakeMemberRepo(
		domain.Member{ID: "UADMIN", IsAdmin: true},
		domain.Member{ID: "UPLAIN"},
	)
	chat := &fakeChat{userInfo: map[string]domain.WorkspaceUser{
		"UNEW":   {Member: domain.Member{ID: "UNEW", IsAdmin: true}},
		"UPLAIN": {Member: domain.Member{ID: "UPLAIN", IsAdmin: true}},
	}}
	svc := NewMemberService(MemberDependencies{MemberRepo: repo, Chat: chat, Logger: zap.NewNop()})
	ctx := context.Background()

	ok, err := svc.IsAdmin(ctx, "UADMIN")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsAdmin(ctx, "UPLAIN")
	require.NoError(t, err)
	assert.False(t, ok, "stored flag wins over Slack profile")

	ok, err = svc.IsAdmin(ctx, "UNEW")
	require.NoError(t, err)
	assert.True(t, ok, "falls back to Slack when not stored")

	_, err = svc.IsAdmin(ctx, "UGHOST")
	assert.Error(t, err)
}

func TestMemberServiceResolveByNameMiss(t *testing.T) {
	svc := NewMemberService(MemberDependencies{MemberRepo: newFakeMemberRepo(), Chat: &fakeChat{}, Logger: zap.NewNop()})

	id, ok, err := svc.ResolveByName(context.Background(), "Jane Doe")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)
}
