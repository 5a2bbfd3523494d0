package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/slack-itop-bridge/internal/chat"
	"github.com/spec-kit/slack-itop-bridge/internal/domain"
	"github.com/spec-kit/slack-itop-bridge/internal/repository"
)

// MemberService keeps the identity store in line with the Slack workspace.
type MemberService struct {
	members        repository.MemberRepository
	chat           chat.Client
	allowedDomains []string
	logger         *zap.Logger
}

// MemberDependencies bundles collaborators for MemberService.
type MemberDependencies struct {
	MemberRepo          repository.MemberRepository
	Chat                chat.Client
	AllowedEmailDomains []string
	Logger              *zap.Logger
}

// ImportResult summarizes one import run.
type ImportResult struct {
	Listed  int
	Stored  int
	Deleted int64
}

// NewMemberService creates the service.
func NewMemberService(deps MemberDependencies) *MemberService {
	return &MemberService{
		members:        deps.MemberRepo,
		chat:           deps.Chat,
		allowedDomains: deps.AllowedEmailDomains,
		logger:         deps.Logger,
	}
}

// Import stores every active human member of the workspace.
func (s *MemberService) Import(ctx context.Context) (ImportResult, error) {
	res, _, err := s.importMembers(ctx)
	return res, err
}

// Refresh imports members and then prunes inactive ones and those whose
// email falls outside the allowed domains.
func (s *MemberService) Refresh(ctx context.Context) (ImportResult, error) {
	res, activeIDs, err := s.importMembers(ctx)
	if err != nil {
		return res, err
	}
	if len(activeIDs) == 0 {
		return res, errors.New("workspace returned no active members; refusing to prune")
	}

	deleted, err := s.members.DeleteExcept(ctx, activeIDs, s.allowedDomains)
	if err != nil {
		return res, fmt.Errorf("prune members: %w", err)
	}
	res.Deleted = deleted
	s.logger.Info("pruned identity store", zap.Int64("deleted", deleted))
	return res, nil
}

func (s *MemberService) importMembers(ctx context.Context) (ImportResult, []string, error) {
	users, err := s.chat.ListMembers(ctx)
	if err != nil {
		return ImportResult{}, nil, err
	}

	activeIDs := make([]string, 0, len(users))
	members := make([]domain.Member, 0, len(users))
	for _, u := range users {
		if u.Deleted {
			continue
		}
		activeIDs = append(activeIDs, u.ID)
		if u.Importable() {
			members = append(members, u.Member)
		}
	}

	if err := s.members.Upsert(ctx, members); err != nil {
		return ImportResult{}, nil, fmt.Errorf("store members: %w", err)
	}
	res := ImportResult{Listed: len(users), Stored: len(members)}
	s.logger.Info("imported workspace members", zap.Int("listed", res.Listed), zap.Int("stored", res.Stored))
	return res, activeIDs, nil
}

// IsAdmin uses the stored admin flag, or asks Slack when the caller is not
// in the identity store yet.
func (s *MemberService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	m, err := s.members.GetByID(ctx, userID)
	if err == nil {
		return m.IsAdmin, nil
	}
	if !errors.Is(err, domain.ErrMemberNotFound) {
		return false, err
	}

	u, err := s.chat.UserInfo(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}

// CallerName returns the stored first/last name, or an empty pair.
func (s *MemberService) CallerName(ctx context.Context, userID string) domain.Caller {
	m, err := s.members.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrMemberNotFound) {
			s.logger.Warn("caller lookup failed", zap.String("user", userID), zap.Error(err))
		}
		return domain.Caller{}
	}
	return domain.Caller{FirstName: m.FirstName, LastName: m.LastName}
}

// ResolveByName maps a display name to a member id. When several members
// share the name the lowest id wins and a warning is logged.
func (s *MemberService) ResolveByName(ctx context.Context, name string) (string, bool, error) {
	found, err := s.members.FindByRealName(ctx, name)
	if err != nil {
		return "", false, err
	}
	if len(found) == 0 {
		return "", false, nil
	}
	if len(found) > 1 {
		ids := make([]string, 0, len(found))
		for _, m := range found {
			ids = append(ids, m.ID)
		}
		s.logger.Warn("display name is ambiguous; using first match",
			zap.String("name", name), zap.Strings("candidates", ids))
	}
	return found[0].ID, true, nil
}
