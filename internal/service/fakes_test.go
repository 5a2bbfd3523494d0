package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/spec-kit/slack-itop-bridge/internal/domain"
)

type postedMessage struct {
	Channel  string
	ThreadTS string
	User     string
	Text     string
}

type fakeChat struct {
	mu sync.Mutex

	first        domain.ThreadMessage
	firstErr     error
	replies      []domain.ThreadMessage
	reactions    []string
	reactionsErr error
	addErr       error
	users        []domain.WorkspaceUser
	userInfo     map[string]domain.WorkspaceUser

	posted    []postedMessage
	ephemeral []postedMessage
	added     []string
	removed   []string
	dmOpened  []string
}

func (f *fakeChat) PostMessage(_ context.Context, channel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, postedMessage{Channel: channel, Text: text})
	return nil
}

func (f *fakeChat) PostThreadReply(_ context.Context, thread domain.ThreadKey, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, postedMessage{Channel: thread.Channel, ThreadTS: thread.TS, Text: text})
	return nil
}

func (f *fakeChat) PostEphemeral(_ context.Context, channel, user, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ephemeral = append(f.ephemeral, postedMessage{Channel: channel, User: user, Text: text})
	return nil
}

func (f *fakeChat) AddReaction(_ context.Context, _ domain.ThreadKey, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, name)
	return nil
}

func (f *fakeChat) RemoveReaction(_ context.Context, _ domain.ThreadKey, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeChat) Reactions(context.Context, domain.ThreadKey) ([]string, error) {
	return f.reactions, f.reactionsErr
}

func (f *fakeChat) OpenDM(_ context.Context, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dmOpened = append(f.dmOpened, user)
	return "D" + user, nil
}

func (f *fakeChat) FirstMessage(context.Context, domain.ThreadKey) (domain.ThreadMessage, error) {
	return f.first, f.firstErr
}

func (f *fakeChat) ThreadReplies(context.Context, domain.ThreadKey) ([]domain.ThreadMessage, error) {
	return f.replies, nil
}

func (f *fakeChat) ListMembers(context.Context) ([]domain.WorkspaceUser, error) {
	return f.users, nil
}

func (f *fakeChat) UserInfo(_ context.Context, user string) (domain.WorkspaceUser, error) {
	u, ok := f.userInfo[user]
	if !ok {
		return domain.WorkspaceUser{}, errors.New("user_not_found")
	}
	return u, nil
}

type fakeTickets struct {
	created   []domain.TicketRequest
	createErr error
	ref       string

	logged    []string
	failAfter int
}

func (f *fakeTickets) CreateTicket(_ context.Context, req domain.TicketRequest) (string, error) {
	f.created = append(f.created, req)
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.ref, nil
}

func (f *fakeTickets) AppendPublicLog(_ context.Context, ref, text string) error {
	if f.failAfter > 0 && len(f.logged) >= f.failAfter {
		return errors.New("itop unavailable")
	}
	f.logged = append(f.logged, ref+":"+text)
	return nil
}

type memTracker struct {
	set map[string]struct{}
}

func newMemTracker(tokens ...string) *memTracker {
	t := &memTracker{set: map[string]struct{}{}}
	for _, tok := range tokens {
		t.set[tok] = struct{}{}
	}
	return t
}

func (t *memTracker) IsOpen(_ context.Context, k domain.ThreadKey) (bool, error) {
	_, ok := t.set[k.Token()]
	return ok, nil
}

func (t *memTracker) MarkOpen(_ context.Context, k domain.ThreadKey) error {
	t.set[k.Token()] = struct{}{}
	return nil
}

func (t *memTracker) MarkClosed(_ context.Context, k domain.ThreadKey) (int, error) {
	n := 0
	for tok := range t.set {
		if strings.Contains(tok, k.Token()) {
			delete(t.set, tok)
			n++
		}
	}
	return n, nil
}

func (t *memTracker) List(context.Context) ([]string, error) {
	var out []string
	for tok := range t.set {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out, nil
}

type fakeMemberRepo struct {
	members map[string]domain.Member
	pruned  struct {
		active  []string
		domains []string
	}
}

func newFakeMemberRepo(members ...domain.Member) *fakeMemberRepo {
	r := &fakeMemberRepo{members: map[string]domain.Member{}}
	for _, m := range members {
		r.members[m.ID] = m
	}
	return r
}

func (r *fakeMemberRepo) Upsert(_ context.Context, members []domain.Member) error {
	for _, m := range members {
		r.members[m.ID] = m
	}
	return nil
}

func (r *fakeMemberRepo) GetByID(_ context.Context, id string) (*domain.Member, error) {
	m, ok := r.members[id]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	return &m, nil
}

func (r *fakeMemberRepo) FindByRealName(_ context.Context, name string) ([]domain.Member, error) {
	var out []domain.Member
	for _, m := range r.members {
		if m.RealName == name {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeMemberRepo) DeleteExcept(_ context.Context, active []string, domains []string) (int64, error) {
	r.pruned.active = active
	r.pruned.domains = domains
	keep := map[string]bool{}
	for _, id := range active {
		keep[id] = true
	}
	var n int64
	for id, m := range r.members {
		if !keep[id] || !m.HasEmailDomain(domains) {
			delete(r.members, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeMemberRepo) Count(context.Context) (int64, error) {
	return int64(len(r.members)), nil
}
