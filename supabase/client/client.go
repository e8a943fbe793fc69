// Package client provides the Supabase gateway used by every repository:
// PostgREST queries, RPC, Auth, Storage and Realtime subscriptions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/social_layer/internal/httputil"
	"github.com/R3E-Network/social_layer/pkg/logger"
	"github.com/R3E-Network/social_layer/pkg/metrics"
)

const (
	maxResponseBytes  = 8 << 20  // 8 MiB
	maxErrorBodyBytes = 32 << 10 // 32 KiB
)

// Client is a Supabase REST API client.
type Client struct {
	baseURL     string
	apiKey      string
	accessToken string
	httpClient  *http.Client
	metrics     *metrics.Metrics
}

// Config holds client configuration.
type Config struct {
	URL    string
	APIKey string
	// AccessToken is used for RLS when the request context carries none.
	AccessToken string
	HTTPClient  *http.Client
	// Timeout applies when HTTPClient is nil. Defaults to 30s.
	Timeout time.Duration
	Metrics *metrics.Metrics
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	return &Client{
		baseURL:     strings.TrimSuffix(cfg.URL, "/"),
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		httpClient:  httpClient,
		metrics:     cfg.Metrics,
	}, nil
}

// BaseURL returns the project URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// Access Token Propagation
// =============================================================================

type accessTokenKey struct{}

// WithAccessToken returns a context whose requests authenticate as the given user (RLS).
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFromContext extracts an access token from ctx if present.
func AccessTokenFromContext(ctx context.Context) string {
	if tok, ok := ctx.Value(accessTokenKey{}).(string); ok {
		return tok
	}
	return ""
}

// =============================================================================
// Database Operations (PostgREST)
// =============================================================================

// From starts a query builder for a table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{
		client: c,
		table:  table,
	}
}

type filter struct {
	column string
	expr   string
}

// QueryBuilder builds PostgREST queries.
type QueryBuilder struct {
	client  *Client
	table   string
	columns string
	filters []filter
	orders  []string
	limit   int
	offset  int
	single  bool
	count   string // exact, planned, estimated
}

// Table returns the table this builder targets.
func (q *QueryBuilder) Table() string {
	return q.table
}

// Select specifies columns to select.
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.columns = columns
	return q
}

func (q *QueryBuilder) addFilter(column, op string, value any) *QueryBuilder {
	q.filters = append(q.filters, filter{column: column, expr: op + "." + FormatValue(value)})
	return q
}

// Eq adds an equality filter.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	return q.addFilter(column, "eq", value)
}

// Neq adds a not-equal filter.
func (q *QueryBuilder) Neq(column string, value any) *QueryBuilder {
	return q.addFilter(column, "neq", value)
}

// Gt adds a greater-than filter.
func (q *QueryBuilder) Gt(column string, value any) *QueryBuilder {
	return q.addFilter(column, "gt", value)
}

// Gte adds a greater-than-or-equal filter.
func (q *QueryBuilder) Gte(column string, value any) *QueryBuilder {
	return q.addFilter(column, "gte", value)
}

// Lt adds a less-than filter.
func (q *QueryBuilder) Lt(column string, value any) *QueryBuilder {
	return q.addFilter(column, "lt", value)
}

// Lte adds a less-than-or-equal filter.
func (q *QueryBuilder) Lte(column string, value any) *QueryBuilder {
	return q.addFilter(column, "lte", value)
}

// Like adds a LIKE filter.
func (q *QueryBuilder) Like(column string, pattern string) *QueryBuilder {
	q.filters = append(q.filters, filter{column: column, expr: "like." + pattern})
	return q
}

// ILike adds a case-insensitive LIKE filter.
func (q *QueryBuilder) ILike(column string, pattern string) *QueryBuilder {
	q.filters = append(q.filters, filter{column: column, expr: "ilike." + pattern})
	return q
}

// In adds an IN filter.
func (q *QueryBuilder) In(column string, values []any) *QueryBuilder {
	strValues := make([]string, len(values))
	for i, v := range values {
		strValues[i] = quoteListValue(FormatValue(v))
	}
	q.filters = append(q.filters, filter{column: column, expr: "in.(" + strings.Join(strValues, ",") + ")"})
	return q
}

// InStrings adds an IN filter over string values.
func (q *QueryBuilder) InStrings(column string, values []string) *QueryBuilder {
	anyValues := make([]any, len(values))
	for i, v := range values {
		anyValues[i] = v
	}
	return q.In(column, anyValues)
}

// Is adds an IS filter (for NULL, TRUE, FALSE).
func (q *QueryBuilder) Is(column string, value any) *QueryBuilder {
	return q.addFilter(column, "is", value)
}

// Order adds an ORDER BY clause.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.orders = append(q.orders, fmt.Sprintf("%s.%s", column, dir))
	return q
}

// Limit sets the LIMIT.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Offset sets the OFFSET.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

// Single expects a single result.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// Count includes count in response.
func (q *QueryBuilder) Count(countType string) *QueryBuilder {
	q.count = countType
	return q
}

func (q *QueryBuilder) restURL(withSelect bool) string {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, url.PathEscape(q.table))

	params := url.Values{}
	if withSelect && q.columns != "" {
		params.Set("select", q.columns)
	}
	for _, f := range q.filters {
		params.Add(f.column, f.expr)
	}
	if withSelect {
		if len(q.orders) > 0 {
			params.Set("order", strings.Join(q.orders, ","))
		}
		if q.limit > 0 {
			params.Set("limit", strconv.Itoa(q.limit))
		}
		if q.offset > 0 {
			params.Set("offset", strconv.Itoa(q.offset))
		}
	}

	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	return reqURL
}

// Execute executes a SELECT query.
func (q *QueryBuilder) Execute(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.restURL(true), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q.client.setHeaders(req)
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	if q.count != "" {
		req.Header.Set("Prefer", fmt.Sprintf("count=%s", q.count))
	}

	return q.client.do(req, q.table)
}

// ExecuteCount runs a HEAD request with an exact count and returns the row total.
func (q *QueryBuilder) ExecuteCount(ctx context.Context) (int, error) {
	if q.columns == "" {
		q.columns = "*"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, q.restURL(true), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	q.client.setHeaders(req)
	countType := q.count
	if countType == "" {
		countType = "exact"
	}
	req.Header.Set("Prefer", "count="+countType)

	resp, err := q.client.do(req, q.table)
	if err != nil {
		return 0, err
	}
	if err := resp.Error(); err != nil {
		return 0, err
	}
	return resp.ContentRangeTotal()
}

// ExecuteInsert executes an INSERT operation.
func (q *QueryBuilder) ExecuteInsert(ctx context.Context, data any) (*Response, error) {
	return q.write(ctx, http.MethodPost, q.restURL(false), data, "return=representation")
}

// ExecuteUpsert executes an INSERT ... ON CONFLICT DO UPDATE operation.
func (q *QueryBuilder) ExecuteUpsert(ctx context.Context, data any, onConflict string) (*Response, error) {
	reqURL := q.restURL(false)
	if onConflict != "" {
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL += sep + "on_conflict=" + url.QueryEscape(onConflict)
	}
	return q.write(ctx, http.MethodPost, reqURL, data, "resolution=merge-duplicates,return=representation")
}

// ExecuteUpdate executes an UPDATE operation.
func (q *QueryBuilder) ExecuteUpdate(ctx context.Context, data any) (*Response, error) {
	return q.write(ctx, http.MethodPatch, q.restURL(false), data, "return=representation")
}

// ExecuteDelete executes a DELETE operation.
func (q *QueryBuilder) ExecuteDelete(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, q.restURL(false), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q.client.setHeaders(req)
	req.Header.Set("Prefer", "return=representation")

	return q.client.do(req, q.table)
}

func (q *QueryBuilder) write(ctx context.Context, method, reqURL string, data any, prefer string) (*Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q.client.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", prefer)

	return q.client.do(req, q.table)
}

// FormatValue renders a filter value the way PostgREST expects it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if x == nil {
			return "null"
		}
		return x.UTC().Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func quoteListValue(s string) string {
	if strings.ContainsAny(s, `,()" `) {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

// =============================================================================
// RPC (Stored Procedures)
// =============================================================================

// RPC calls a stored procedure.
func (c *Client) RPC(ctx context.Context, fn string, params any) (*Response, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, url.PathEscape(fn))

	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setHeaders(req)
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, "rpc/"+fn)
}

// =============================================================================
// Response Types
// =============================================================================

// Response is a generic API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Error returns an *APIError if the response indicates failure.
func (r *Response) Error() error {
	if r.StatusCode < 400 {
		return nil
	}
	apiErr := &APIError{StatusCode: r.StatusCode}
	if len(r.Body) > 0 {
		var body struct {
			Code             string `json:"code"`
			Message          string `json:"message"`
			Details          string `json:"details"`
			Hint             string `json:"hint"`
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
			Msg              string `json:"msg"`
		}
		if err := json.Unmarshal(r.Body, &body); err == nil {
			apiErr.Code = body.Code
			apiErr.Details = body.Details
			apiErr.Hint = body.Hint
			switch {
			case body.Message != "":
				apiErr.Message = body.Message
			case body.ErrorDescription != "":
				apiErr.Message = body.ErrorDescription
			case body.Msg != "":
				apiErr.Message = body.Msg
			case body.Error != "":
				apiErr.Message = body.Error
			}
		} else {
			apiErr.Message = strings.TrimSpace(string(r.Body))
		}
	}
	return apiErr
}

// ContentRangeTotal parses the total from a "0-9/100" or "*/0" Content-Range header.
func (r *Response) ContentRangeTotal() (int, error) {
	cr := r.Headers.Get("Content-Range")
	if cr == "" {
		return 0, fmt.Errorf("missing Content-Range header")
	}
	idx := strings.LastIndex(cr, "/")
	if idx < 0 || idx == len(cr)-1 {
		return 0, fmt.Errorf("malformed Content-Range %q", cr)
	}
	total := cr[idx+1:]
	if total == "*" {
		return 0, fmt.Errorf("content-range %q carries no total", cr)
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("malformed Content-Range %q: %w", cr, err)
	}
	return n, nil
}

// APIError is a non-2xx response from any Supabase endpoint.
type APIError struct {
	StatusCode int
	// Code is the PostgREST/Postgres error code, e.g. "23505".
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("supabase error %d (%s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("supabase error %d: %s", e.StatusCode, msg)
}

// =============================================================================
// Internal Methods
// =============================================================================

func (c *Client) setHeaders(req *http.Request) {
	token := c.apiKey
	if tok := AccessTokenFromContext(req.Context()); tok != "" {
		token = tok
	} else if c.accessToken != "" {
		token = c.accessToken
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if id := GetRequestID(req.Context()); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
}

// request sends a raw body to any Supabase endpoint and fails on non-2xx responses.
func (c *Client) request(ctx context.Context, method, reqURL string, body []byte, headers map[string]string, resource string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setHeaders(req)
	if body != nil && headers["Content-Type"] == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.do(req, resource)
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(req *http.Request, resource string) (*Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordGatewayRequest(req.Method, resource, 0, time.Since(start))
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.RecordGatewayRequest(req.Method, resource, resp.StatusCode, time.Since(start))

	var body []byte
	if resp.StatusCode >= 400 {
		body, _, err = httputil.ReadAllWithLimit(resp.Body, maxErrorBodyBytes)
	} else {
		body, err = httputil.ReadAllStrict(resp.Body, maxResponseBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}, nil
}

// =============================================================================
// Request ID and Tracing
// =============================================================================

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return logger.WithRequestID(ctx, requestID)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	return logger.RequestIDFromContext(ctx)
}

// GenerateRequestID generates a unique request ID.
func GenerateRequestID() string {
	return uuid.NewString()
}
