package domain

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

var (
	slugDisallowed = regexp.MustCompile(`[^a-z0-9@.]`)
	slugSeparators = regexp.MustCompile(`[@.]`)
	slugCollapse   = regexp.MustCompile(`-+`)
)

// SlugifyEmail derives the deterministic document id for a client or
// vendor from its email address: lowercase, replace everything outside
// [a-z0-9@.] with '-', then '@' and '.' with '-', collapse runs of '-'
// and trim the ends.
//
// Two emails that differ only in stripped characters (a.b@x.com vs
// a-b@x.com) map to the same id. That collision is accepted: both spell
// the same mailbox on every mainstream provider.
func SlugifyEmail(email string) string {
	s := strings.ToLower(strings.TrimSpace(email))
	s = slugDisallowed.ReplaceAllString(s, "-")
	s = slugSeparators.ReplaceAllString(s, "-")
	s = slugCollapse.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// DateISO truncates a timestamp to its UTC calendar date (YYYY-MM-DD).
func DateISO(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// SaleIDFrom derives the deterministic sale id from the composite business
// key. Time of day is intentionally discarded: two sales to the same
// customer for the same product on the same calendar day are the same
// logical sale.
func SaleIDFrom(customerEmail string, date time.Time, productID string) string {
	return fmt.Sprintf("%s-%s-%s", SlugifyEmail(customerEmail), DateISO(date), productID)
}

// WeekOf returns the week number of the date within its year, counting in
// 7-day blocks from January 1st and rounding up. Used to default the
// vendor-entered week field when it is left at zero.
func WeekOf(t time.Time) int {
	start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	diff := t.Sub(start)
	return int(math.Ceil(diff.Hours() / (7 * 24)))
}
