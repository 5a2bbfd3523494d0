package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrMemberNotFound is returned when no member matches a lookup.
var ErrMemberNotFound = errors.New("member not found")

// Member is a cached Slack workspace member.
type Member struct {
	ID        string
	Username  string
	FirstName string
	LastName  string
	RealName  string
	Email     string
	IsAdmin   bool
	UpdatedAt time.Time
}

// HasEmailDomain reports whether the email ends with one of the suffixes.
// An empty suffix list accepts every member.
func (m Member) HasEmailDomain(suffixes []string) bool {
	if len(suffixes) == 0 {
		return true
	}
	email := strings.ToLower(m.Email)
	for _, s := range suffixes {
		if strings.HasSuffix(email, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// WorkspaceUser is the chat platform's view of a member, before filtering.
type WorkspaceUser struct {
	Member
	Deleted   bool
	IsBot     bool
	IsAppUser bool
}

// Importable reports whether the user belongs in the identity store.
func (u WorkspaceUser) Importable() bool {
	return !u.Deleted && !u.IsBot && !u.IsAppUser
}
