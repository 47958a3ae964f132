package servicenow

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
)

// MaxRecordsPerQuery caps every Table API read. Conversation sources are
// bounded in practice; anything larger signals a bad linking query.
const MaxRecordsPerQuery = 1000

const defaultRequestTimeout = 30 * time.Second

// ErrUnavailable marks a source that could not be read: the table does not
// exist on this instance, the user lacks an ACL, or the instance did not
// answer. Callers treat it as a degraded-but-recoverable condition.
var ErrUnavailable = errors.New("servicenow: source unavailable")

// Client is an explicitly constructed Table API session. Construct one per
// process and pass it by reference; there is no package-level singleton.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// Options configure a Client. Transport is optional and exists so callers
// can wrap the round tripper (instrumentation, test doubles).
type Options struct {
	InstanceURL string
	Username    string
	Password    string
	Timeout     time.Duration
	Transport   http.RoundTripper
}

func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.InstanceURL), "/")
	if base == "" {
		return nil, errors.New("servicenow: instance URL is required")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("servicenow: parse instance URL %q: %w", opts.InstanceURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("servicenow: instance URL %q must include scheme and host", opts.InstanceURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Client{
		baseURL:  base,
		username: opts.Username,
		password: opts.Password,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: opts.Transport,
		},
	}, nil
}

// ListOptions select records from one table.
type ListOptions struct {
	Table  string
	Query  string
	Fields []string
	Limit  int
}

// List reads up to opts.Limit records. Every read requests both value and
// display_value so reference fields stay resolvable without a second trip.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	if strings.TrimSpace(opts.Table) == "" {
		return nil, errors.New("servicenow: table is required")
	}
	limit := opts.Limit
	if limit <= 0 || limit > MaxRecordsPerQuery {
		limit = MaxRecordsPerQuery
	}

	params := url.Values{}
	if q := strings.TrimSpace(opts.Query); q != "" {
		params.Set("sysparm_query", q)
	}
	if len(opts.Fields) > 0 {
		params.Set("sysparm_fields", strings.Join(opts.Fields, ","))
	}
	params.Set("sysparm_limit", strconv.Itoa(limit))
	params.Set("sysparm_display_value", "all")

	endpoint := fmt.Sprintf("%s/api/now/table/%s?%s", c.baseURL, url.PathEscape(opts.Table), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("servicenow: build request for %s: %w", opts.Table, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, opts.Table, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read response: %v", ErrUnavailable, opts.Table, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrUnavailable, opts.Table, resp.StatusCode)
	}

	var payload struct {
		Result []Record `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: decode response: %v", ErrUnavailable, opts.Table, err)
	}
	return payload.Result, nil
}

// Ping verifies connectivity and credentials with a minimal read.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.List(ctx, ListOptions{
		Table:  "sys_properties",
		Fields: []string{"sys_id"},
		Limit:  1,
	})
	return err
}
