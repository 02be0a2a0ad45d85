package sharepoint

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/ignite/punchlist-monitor/internal/config"
	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/pkg/httpretry"
)

// API is the subset of the list service the extractor needs.
type API interface {
	Fields(ctx context.Context, list string) ([]Field, error)
	Items(ctx context.Context, list string, selectFields, expand []string) ([]RawRow, error)
	SiteUsers(ctx context.Context, ids []int) (map[int]string, error)
}

// Client is an authenticated SharePoint REST client
type Client struct {
	siteURL    string
	pageSize   int
	httpClient httpretry.HTTPDoer
}

// Option tweaks a Client.
type Option func(*Client)

// WithHTTPDoer replaces the HTTP transport, mostly for tests.
func WithHTTPDoer(d httpretry.HTTPDoer) Option {
	return func(c *Client) { c.httpClient = d }
}

// NewClient builds a client whose cookie jar is seeded once with the browser
// session cookies. TLS verification is off: the corporate proxy re-signs
// traffic with a private CA.
func NewClient(cfg config.SharePointConfig, creds domain.Credentials, opts ...Option) (*Client, error) {
	if creds.Empty() {
		return nil, ErrNoCredentials
	}
	site, err := url.Parse(strings.TrimRight(cfg.SiteURL, "/"))
	if err != nil || site.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSiteURL, cfg.SiteURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	jar.SetCookies(&url.URL{Scheme: site.Scheme, Host: site.Host, Path: "/"}, toHTTPCookies(creds.Cookies, site.Scheme == "https"))

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 5000
	}

	c := &Client{
		siteURL:  site.String(),
		pageSize: pageSize,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
			Jar:     jar,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}, cfg.MaxRetries),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// toHTTPCookies copies browser cookies as host-only cookies for the site.
// The browser may hold them for the tenant's login domains; the REST calls
// only ever go to the site host.
func toHTTPCookies(cookies []domain.Cookie, secure bool) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		out = append(out, &http.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Path:     "/",
			Expires:  ck.Expires,
			Secure:   secure && ck.Secure,
			HttpOnly: ck.HTTPOnly,
		})
	}
	return out
}

// GetJSON issues a GET against the site and returns the raw body.
// Any non-200 status comes back as *HTTPError.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	fullURL := c.siteURL + path
	if len(params) > 0 {
		fullURL += "?" + encodeQuery(params)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json;odata=verbose")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// encodeQuery keeps OData keys readable ($select rather than %24select) and
// encodes spaces as %20, which the service requires inside $filter.
func encodeQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range params[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(strings.ReplaceAll(url.QueryEscape(v), "+", "%20"))
		}
	}
	return b.String()
}

// listPath returns the REST path of a list addressed by title.
func listPath(list string) string {
	escaped := url.PathEscape(strings.ReplaceAll(list, "'", "''"))
	escaped = strings.ReplaceAll(escaped, "%2F", "/")
	return "/_api/web/lists/getbytitle('" + escaped + "')"
}

type verboseEnvelope struct {
	D struct {
		Results json.RawMessage `json:"results"`
	} `json:"d"`
}

func decodeResults(body []byte, dst any) error {
	var env verboseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decoding envelope: %w", err)
	}
	if len(env.D.Results) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.D.Results, dst); err != nil {
		return fmt.Errorf("decoding results: %w", err)
	}
	return nil
}

// Fields returns the field metadata of a list in service order.
func (c *Client) Fields(ctx context.Context, list string) ([]Field, error) {
	body, err := c.GetJSON(ctx, listPath(list)+"/fields", nil)
	if err != nil {
		return nil, err
	}
	var fields []Field
	if err := decodeResults(body, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Items returns up to one page of list items. An empty selectFields asks
// for every field; expand lists relational fields to inline.
func (c *Client) Items(ctx context.Context, list string, selectFields, expand []string) ([]RawRow, error) {
	params := url.Values{}
	params.Set("$top", strconv.Itoa(c.pageSize))
	if len(selectFields) > 0 {
		params.Set("$select", strings.Join(selectFields, ","))
	}
	if len(expand) > 0 {
		params.Set("$expand", strings.Join(expand, ","))
	}

	body, err := c.GetJSON(ctx, listPath(list)+"/items", params)
	if err != nil {
		return nil, err
	}
	var rows []RawRow
	if err := decodeResults(body, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

type siteUser struct {
	ID    int    `json:"Id"`
	Title string `json:"Title"`
}

// SiteUsers resolves user identifiers to display names with one OR-composed
// filter. Identifiers the directory does not know are simply absent.
func (c *Client) SiteUsers(ctx context.Context, ids []int) (map[int]string, error) {
	if len(ids) == 0 {
		return map[int]string{}, nil
	}
	clauses := make([]string, len(ids))
	for i, id := range ids {
		clauses[i] = "Id eq " + strconv.Itoa(id)
	}
	params := url.Values{}
	params.Set("$select", "Id,Title")
	params.Set("$filter", strings.Join(clauses, " or "))

	body, err := c.GetJSON(ctx, "/_api/web/siteusers", params)
	if err != nil {
		return nil, err
	}
	var users []siteUser
	if err := decodeResults(body, &users); err != nil {
		return nil, err
	}
	names := make(map[int]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Title
	}
	return names, nil
}
