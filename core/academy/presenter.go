package academy

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/trackmyacademy/dashboard/core"
)

type (
	SortField     string
	SortDirection string
)

const (
	SortByName       SortField = "name"
	SortByOwnerName  SortField = "owner_name"
	SortByExpiryDate SortField = "expiry_date"

	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// SortFields are the columns an academy table can be sorted by.
var SortFields = []SortField{SortByName, SortByOwnerName, SortByExpiryDate}

// TableQuery holds the search and sorting of an academy table.
type TableQuery struct {
	Search    string
	Sort      SortField
	Direction SortDirection
}

// ParseTableQuery extracts `q`, `sort` and `dir` from URL query values.
// Unknown columns fall back to name, unknown directions to ascending.
func ParseTableQuery(q url.Values) TableQuery {
	query := TableQuery{
		Search:    q.Get("q"),
		Sort:      ParseSortField(q.Get("sort")),
		Direction: Ascending,
	}
	if SortDirection(strings.ToLower(q.Get("dir"))) == Descending {
		query.Direction = Descending
	}
	return query
}

// ParseSortField returns the SortField named `s`, or SortByName.
func ParseSortField(s string) SortField {
	s = core.CleanString(s, true /* lower */)
	for _, f := range SortFields {
		if string(f) == s {
			return f
		}
	}
	return SortByName
}

// Row is an Academy along with its evaluated subscription, as displayed in a table.
type Row struct {
	Academy
	Subscription Subscription `json:"subscription"`
}

// Present filters `academies` by `search` and sorts the result by `field` in direction `dir`.
//
// The search is a case-insensitive substring match on the name, owner name OR admin email;
// an empty search keeps every academy. The sort is stable: academies with equal keys keep their
// original relative order in both directions. Strings are compared with an English collator.
// A missing expiry date sorts as the earliest date. `academies` is never modified.
func Present(academies []Academy, search string, field SortField, dir SortDirection) []Academy {
	term := core.CleanString(search, true /* lower */)

	res := make([]Academy, 0, len(academies))
	for _, a := range academies {
		if matches(a, term) {
			res = append(res, a)
		}
	}

	cmp := comparator(field)
	sort.SliceStable(res, func(i, j int) bool {
		if dir == Descending {
			return cmp(res[j], res[i]) < 0
		}
		return cmp(res[i], res[j]) < 0
	})
	return res
}

// Table presents `academies` according to `query` and evaluates each subscription at `now`.
// Academies without an expiry date get a StatusUnknown subscription.
func Table(academies []Academy, query TableQuery, now time.Time) []Row {
	presented := Present(academies, query.Search, query.Sort, query.Direction)
	rows := make([]Row, 0, len(presented))
	for _, a := range presented {
		sub, _ := a.Subscription(now) // ErrMissingExpiryDate -> StatusUnknown
		rows = append(rows, Row{Academy: a, Subscription: sub})
	}
	return rows
}

func matches(a Academy, term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(a.Name), term) ||
		strings.Contains(strings.ToLower(a.OwnerName), term) ||
		strings.Contains(strings.ToLower(a.AdminEmail), term)
}

// comparator returns a three-way comparison of academies on `field`.
func comparator(field SortField) func(a, b Academy) int {
	switch field {
	case SortByExpiryDate:
		return func(a, b Academy) int {
			ta, tb := expiryKey(a), expiryKey(b)
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			default:
				return 0
			}
		}
	case SortByOwnerName:
		coll := collate.New(language.English)
		return func(a, b Academy) int { return coll.CompareString(a.OwnerName, b.OwnerName) }
	default:
		coll := collate.New(language.English)
		return func(a, b Academy) int { return coll.CompareString(a.Name, b.Name) }
	}
}

func expiryKey(a Academy) time.Time {
	if !a.SubscriptionExpiryDate.Valid {
		return time.Time{}
	}
	return a.SubscriptionExpiryDate.Time.Time
}
