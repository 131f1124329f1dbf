package email

import (
	"strings"

	platformstrings "freewalk/pkg/platform/strings"
)

// Normalize trims and lowercases an address. Identity providers report the
// address as typed at signup; local users are keyed on the normalized form.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Domain returns the lowercased part after the last '@', or "" when there is none.
func Domain(address string) string {
	at := strings.LastIndexByte(address, '@')
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(address[at+1:]))
}

// Valid reports whether address has a non-empty local part and a dotted domain.
func Valid(address string) bool {
	at := strings.LastIndexByte(address, '@')
	if at <= 0 {
		return false
	}
	domain := address[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".") &&
		!strings.ContainsAny(address, " \t\r\n")
}

// defaultBurnerDomains are well-known disposable mailbox providers.
var defaultBurnerDomains = []string{
	"10minutemail.com",
	"33mail.com",
	"dispostable.com",
	"fakeinbox.com",
	"getnada.com",
	"guerrillamail.com",
	"guerrillamail.net",
	"maildrop.cc",
	"mailinator.com",
	"mailnesia.com",
	"mintemail.com",
	"mohmal.com",
	"sharklasers.com",
	"spamgourmet.com",
	"temp-mail.org",
	"tempmail.com",
	"throwawaymail.com",
	"trashmail.com",
	"yopmail.com",
}

// Blocklist rejects addresses hosted on disposable domains.
type Blocklist struct {
	domains map[string]struct{}
}

// NewBlocklist returns the built-in disposable domains plus extra.
func NewBlocklist(extra ...string) *Blocklist {
	b := &Blocklist{domains: make(map[string]struct{}, len(defaultBurnerDomains)+len(extra))}
	for _, d := range defaultBurnerDomains {
		b.domains[d] = struct{}{}
	}
	for _, d := range platformstrings.DedupeAndTrimLower(extra) {
		b.domains[d] = struct{}{}
	}
	return b
}

// Blocked reports whether address, or any parent of its domain, is listed.
func (b *Blocklist) Blocked(address string) bool {
	domain := Domain(address)
	for domain != "" {
		if _, ok := b.domains[domain]; ok {
			return true
		}
		dot := strings.IndexByte(domain, '.')
		if dot < 0 {
			return false
		}
		domain = domain[dot+1:]
	}
	return false
}
