// Package formatter turns Slack message text into iTop ticket fields.
package formatter

import "strings"

type titleRule struct {
	title string
	match func(text, lower string) bool
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Order matters: the first matching rule names the ticket.
var titleRules = []titleRule{
	{"Slack issue", func(_, lower string) bool {
		return strings.Contains(lower, "slack")
	}},
	{"Upload Consultation", func(text, _ string) bool {
		return containsAny(text, "upload", "zoom.us")
	}},
	{"Shadowsocks issue", func(text, _ string) bool {
		return containsAny(text, "Shadowsocks", "shadowsocks", "cannot connect to IPS")
	}},
	{"Google account disabled", func(text, _ string) bool {
		return containsAny(text, "account", "disabled")
	}},
	{"Expert / client email ID change request", func(_, lower string) bool {
		return containsAny(lower, "magic link", "update email", "change the email id")
	}},
	{"TnC Issues", func(text, _ string) bool {
		return containsAny(text, "TnC", "renew")
	}},
	{"Financial rate change request", func(text, _ string) bool {
		return strings.Contains(text, "hourly rate")
	}},
}

// DeriveTitle returns the label of the first rule matching text, or "".
func DeriveTitle(text string) string {
	lower := strings.ToLower(text)
	for _, r := range titleRules {
		if r.match(text, lower) {
			return r.title
		}
	}
	return ""
}
