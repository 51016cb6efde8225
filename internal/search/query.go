package search

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrEmptyQuery    = errors.New("empty search query")
	ErrUnknownFilter = errors.New("unknown search filter")
	ErrInvalidFilter = errors.New("invalid search filter value")
)

// Filters understood by the brokers endpoint.
const (
	FilterCountry    = "country"
	FilterRegulator  = "regulator"
	FilterAsset      = "asset"
	FilterMinRating  = "min_rating"
	FilterMaxDeposit = "max_deposit"
)

var knownFilters = map[string]bool{
	FilterCountry:    true,
	FilterRegulator:  true,
	FilterAsset:      true,
	FilterMinRating:  true,
	FilterMaxDeposit: true,
}

type Query struct {
	Text    string            `json:"query"`
	Filters map[string]string `json:"filters,omitempty"`
	Limit   int               `json:"limit,omitempty"`
}

// Normalize trims and lower-cases the text, collapses inner whitespace and
// drops empty filters, so equivalent queries share a cache key.
func (q Query) Normalize() Query {
	out := Query{
		Text:  strings.Join(strings.Fields(strings.ToLower(q.Text)), " "),
		Limit: q.Limit,
	}
	for k, v := range q.Filters {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		if out.Filters == nil {
			out.Filters = make(map[string]string)
		}
		out.Filters[k] = v
	}
	if out.Limit < 0 {
		out.Limit = 0
	}
	return out
}

func (q Query) Validate() error {
	if q.Text == "" {
		return ErrEmptyQuery
	}
	for k := range q.Filters {
		if !knownFilters[k] {
			return fmt.Errorf("%q: %w", k, ErrUnknownFilter)
		}
		if k == FilterMinRating || k == FilterMaxDeposit {
			if _, err := strconv.ParseFloat(q.Filters[k], 64); err != nil {
				return fmt.Errorf("%s=%q: %w", k, q.Filters[k], ErrInvalidFilter)
			}
		}
	}
	return nil
}

// Key serialises the query and its filters, sorted by name, into a cache
// key. Call it on a normalized query.
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(q.Text)
	names := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(q.Filters[k])
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, "|limit=%d", q.Limit)
	}
	return b.String()
}
