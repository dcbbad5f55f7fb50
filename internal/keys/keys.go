// Package keys derives the storage keys shared by every local and remote backend.
package keys

import (
	"fmt"
	"strconv"
	"strings"
)

// Key is a storage key in the local key/value namespace.
type Key string

// Domain identifies a user-scoped family of records.
type Domain int

const (
	TutorialStatus Domain = iota + 1
	FinanceTransactions
	NotificationSettings
)

// CommonPrefix marks device-wide keys that are not scoped to a user.
const CommonPrefix = "@userstate:"

// Device-wide keys.
const (
	OnboardingCompleted Key = CommonPrefix + "onboarding_completed"
	NavigationState     Key = CommonPrefix + "navigation_state"
	Session             Key = CommonPrefix + "session"
)

var domainPrefixes = map[Domain]string{
	TutorialStatus:       "tutorial_status",
	FinanceTransactions:  "finance_transactions",
	NotificationSettings: "notification_settings",
}

// Domains lists every known user-scoped domain.
func Domains() []Domain {
	return []Domain{TutorialStatus, FinanceTransactions, NotificationSettings}
}

// Prefix returns the key prefix for the domain. Unknown domains get a
// synthetic prefix so Build stays total.
func (d Domain) Prefix() string {
	if prefix, ok := domainPrefixes[d]; ok {
		return prefix
	}
	return "domain" + strconv.Itoa(int(d))
}

func (d Domain) String() string {
	return d.Prefix()
}

// ParseDomain resolves a domain from its prefix.
func ParseDomain(value string) (Domain, error) {
	value = strings.TrimSpace(value)
	for domain, prefix := range domainPrefixes {
		if prefix == value {
			return domain, nil
		}
	}
	return 0, fmt.Errorf("unknown domain %q", value)
}

// Build returns the key holding userID's record in domain.
func Build(domain Domain, userID string) Key {
	return Key(domain.Prefix() + "_" + userID)
}

// IsCommon reports whether key lives in the device-wide namespace.
func IsCommon(key Key) bool {
	return strings.HasPrefix(string(key), CommonPrefix)
}

// Split reverses Build for known domains.
func (k Key) Split() (Domain, string, bool) {
	if IsCommon(k) {
		return 0, "", false
	}
	for domain, prefix := range domainPrefixes {
		if rest, ok := strings.CutPrefix(string(k), prefix+"_"); ok {
			return domain, rest, true
		}
	}
	return 0, "", false
}

func (k Key) String() string {
	return string(k)
}
