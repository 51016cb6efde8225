package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"brokerhub/core/internal/types"
)

var ErrUpstream = errors.New("upstream request failed")

// Fetcher loads brokers matching a query from the backing database.
type Fetcher interface {
	FetchBrokers(ctx context.Context, q Query) ([]types.Broker, error)
}

// HTTPFetcher queries the hosted database's REST interface.
type HTTPFetcher struct {
	http   *http.Client
	apiKey string
	base   string
}

func NewHTTPFetcher(base, apiKey string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		http:   &http.Client{Timeout: timeout},
		apiKey: apiKey,
		base:   strings.TrimSuffix(base, "/"),
	}
}

// brokerParams maps a query onto REST filter parameters.
func brokerParams(q Query) url.Values {
	v := url.Values{}
	v.Set("select", "*")
	v.Set("order", "rating.desc")
	// Commas and parentheses are syntax in the or=() filter.
	term := strings.NewReplacer(",", " ", "(", " ", ")", " ").Replace(q.Text)
	v.Set("or", fmt.Sprintf("(name.ilike.*%s*,slug.ilike.*%s*)", term, term))
	for k, val := range q.Filters {
		switch k {
		case FilterCountry:
			v.Set("countries", "cs."+arrayLiteral(val))
		case FilterRegulator:
			v.Set("regulators", "cs."+arrayLiteral(val))
		case FilterAsset:
			v.Set("asset_classes", "cs."+arrayLiteral(val))
		case FilterMinRating:
			if n, err := strconv.ParseFloat(val, 64); err == nil {
				v.Set("rating", "gte."+strconv.FormatFloat(n, 'f', -1, 64))
			}
		case FilterMaxDeposit:
			if n, err := strconv.ParseFloat(val, 64); err == nil {
				v.Set("min_deposit", "lte."+strconv.FormatFloat(n, 'f', -1, 64))
			}
		}
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// arrayLiteral quotes val as a one-element array literal so commas, braces
// and quotes inside it stay part of the value.
func arrayLiteral(val string) string {
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(val)
	return `{"` + esc + `"}`
}

func (f *HTTPFetcher) FetchBrokers(ctx context.Context, q Query) ([]types.Broker, error) {
	u := f.base + "/rest/v1/brokers?" + brokerParams(q).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	f.authorize(req)
	req.Header.Set("Accept", "application/json")
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: brokers: %s: %s", ErrUpstream, resp.Status, string(b))
	}
	var out []types.Broker
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode brokers: %v", ErrUpstream, err)
	}
	return out, nil
}

// Ping checks the REST root answers with the configured key.
func (f *HTTPFetcher) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base+"/rest/v1/", nil)
	if err != nil {
		return err
	}
	f.authorize(req)
	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: invalid API key (401)", ErrUpstream)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode)
	}
	return nil
}

func (f *HTTPFetcher) authorize(req *http.Request) {
	if f.apiKey == "" {
		return
	}
	req.Header.Set("apikey", f.apiKey)
	req.Header.Set("Authorization", "Bearer "+f.apiKey)
}
