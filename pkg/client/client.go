// Package client is the Go SDK for the content risk and moderation API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jmerrifield20/contentrisk/internal/auditlog"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/risk"
)

// Wire types shared with the server.
type (
	Ad                  = model.Ad
	User                = model.User
	Message             = model.Message
	Flag                = model.Flag
	FlagRequest         = model.FlagRequest
	BulkReviewRequest   = model.BulkReviewRequest
	BulkResult          = model.BulkResult
	RiskSummary         = model.RiskSummary
	Reputation          = model.Reputation
	Verdict             = model.Verdict
	AnalysisResult      = model.AnalysisResult
	Report              = model.Report
	CreateReportRequest = model.CreateReportRequest
	UpdateReportRequest = model.UpdateReportRequest
	ReportStatus        = model.ReportStatus
	Policy              = risk.Policy
	AuditRecord         = auditlog.Record
)

// Sentinel errors matched by APIError.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalid      = errors.New("invalid request")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Is lets callers match API errors with errors.Is(err, client.ErrNotFound).
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrInvalid:
		return e.StatusCode == http.StatusBadRequest
	}
	return false
}

// FlagPage is one page of ListFlags.
type FlagPage struct {
	Flags  []*Flag `json:"flags"`
	Total  int     `json:"total"`
	Offset int     `json:"offset"`
}

// ReportPage is one page of ListReports.
type ReportPage struct {
	Reports []*Report `json:"reports"`
	Total   int       `json:"total"`
	Offset  int       `json:"offset"`
}

// AuditOverview is the audit chain length and head hash.
type AuditOverview struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// Client talks to a moderation engine.
type Client struct {
	base       string
	httpClient *http.Client

	// credentials for automatic token refresh; zero = none
	principalID int64
	secret      string

	// token state, guarded by mu
	mu          sync.Mutex
	bearerToken string
	tokenExpiry time.Time // zero = token was set manually (no auto-refresh)
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithRetries retries connection errors and 5xx responses up to max times
// with exponential backoff.
func WithRetries(max int) Option {
	return func(c *Client) error {
		rc := retryablehttp.NewClient()
		rc.RetryMax = max
		rc.RetryWaitMin = 200 * time.Millisecond
		rc.RetryWaitMax = 2 * time.Second
		rc.Logger = nil
		rc.HTTPClient.Timeout = c.httpClient.Timeout
		c.httpClient = rc.StandardClient()
		return nil
	}
}

// WithBearerToken attaches a pre-obtained access token to every request.
// The token is never refreshed.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		c.tokenExpiry = time.Time{}
		return nil
	}
}

// WithCredentials makes the client obtain and refresh its own access token
// from POST /api/v1/auth/token.
func WithCredentials(principalID int64, secret string) Option {
	return func(c *Client) error {
		if principalID <= 0 || secret == "" {
			return errors.New("principal id and secret are required")
		}
		c.principalID, c.secret = principalID, secret
		return nil
	}
}

// New creates a new Client for the engine at base, e.g. "http://localhost:8090".
//
//	c, err := client.New("http://localhost:8090",
//	    client.WithCredentials(2, os.Getenv("MODERATION_SECRET")),
//	    client.WithRetries(3),
//	)
func New(base string, opts ...Option) (*Client, error) {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// FetchToken exchanges the configured credentials for an access token and
// caches it until shortly before it expires.
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// Token exchanges arbitrary credentials for an access token without touching
// the client's own token state.
func (c *Client) Token(ctx context.Context, principalID int64, secret string) (token string, expiresIn time.Duration, err error) {
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	body := map[string]any{"principal_id": principalID, "secret": secret}
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/token", "", body, &out); err != nil {
		return "", 0, err
	}
	return out.AccessToken, time.Duration(out.ExpiresIn) * time.Second, nil
}

func (c *Client) refreshLocked(ctx context.Context) (string, error) {
	if c.principalID == 0 {
		return "", errors.New("no credentials configured")
	}
	token, ttl, err := c.Token(ctx, c.principalID, c.secret)
	if err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}
	// Refresh 60 s before actual expiry to avoid clock-skew failures.
	c.bearerToken = token
	c.tokenExpiry = time.Now().Add(ttl - 60*time.Second)
	return token, nil
}

// ensureToken returns the bearer token to send, fetching a new one if the
// cached token is absent or approaching expiry.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bearerToken != "" && (c.tokenExpiry.IsZero() || time.Now().Before(c.tokenExpiry)) {
		return c.bearerToken, nil
	}
	if c.principalID == 0 {
		return c.bearerToken, nil
	}
	return c.refreshLocked(ctx)
}

// ── Analysis and auto-moderation ────────────────────────────────────────

// AnalyzeAd scores an ad snapshot; suspicious ads with an id are flagged.
func (c *Client) AnalyzeAd(ctx context.Context, ad *Ad) (*AnalysisResult, error) {
	return authedJSON[AnalysisResult](ctx, c, http.MethodPost, "/api/v1/analyze/ads", ad)
}

// AnalyzeUser scores a user snapshot.
func (c *Client) AnalyzeUser(ctx context.Context, u *User) (*AnalysisResult, error) {
	return authedJSON[AnalysisResult](ctx, c, http.MethodPost, "/api/v1/analyze/users", u)
}

// AnalyzeMessage scores a message snapshot.
func (c *Client) AnalyzeMessage(ctx context.Context, m *Message) (*AnalysisResult, error) {
	return authedJSON[AnalysisResult](ctx, c, http.MethodPost, "/api/v1/analyze/messages", m)
}

// AnalyzeStored re-analyzes content the engine loads itself.
func (c *Client) AnalyzeStored(ctx context.Context, contentType string, id int64) (*AnalysisResult, error) {
	path := "/api/v1/analyze/" + url.PathEscape(contentType) + "/" + strconv.FormatInt(id, 10)
	return authedJSON[AnalysisResult](ctx, c, http.MethodPost, path, nil)
}

// AutoModAd asks whether a candidate ad may be published.
func (c *Client) AutoModAd(ctx context.Context, ad *Ad) (*Verdict, error) {
	return authedJSON[Verdict](ctx, c, http.MethodPost, "/api/v1/automod/ads", ad)
}

// AutoModMessage asks whether a candidate message may be sent.
func (c *Client) AutoModMessage(ctx context.Context, m *Message) (*Verdict, error) {
	return authedJSON[Verdict](ctx, c, http.MethodPost, "/api/v1/automod/messages", m)
}

// ── Review workflow ─────────────────────────────────────────────────────

// FlagContent flags content manually.
func (c *Client) FlagContent(ctx context.Context, req *FlagRequest) (*Flag, error) {
	return authedJSON[Flag](ctx, c, http.MethodPost, "/api/v1/flags", req)
}

// ListFlags returns a page of flags newest first. status is "pending",
// "reviewed", "all" or empty.
func (c *Client) ListFlags(ctx context.Context, status string, offset, limit int) (*FlagPage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return authedJSON[FlagPage](ctx, c, http.MethodGet, "/api/v1/flags?"+q.Encode(), nil)
}

// GetFlag returns one flag.
func (c *Client) GetFlag(ctx context.Context, id int64) (*Flag, error) {
	return authedJSON[Flag](ctx, c, http.MethodGet, "/api/v1/flags/"+strconv.FormatInt(id, 10), nil)
}

// ReviewFlag records a decision on a pending flag. Reviewing an already
// reviewed flag returns an error matching ErrConflict.
func (c *Client) ReviewFlag(ctx context.Context, id int64, action string) (*Flag, error) {
	path := "/api/v1/flags/" + strconv.FormatInt(id, 10) + "/review"
	return authedJSON[Flag](ctx, c, http.MethodPost, path, map[string]string{"action": action})
}

// BulkReview applies one action to many flags.
func (c *Client) BulkReview(ctx context.Context, ids []int64, action string) (*BulkResult, error) {
	req := &BulkReviewRequest{FlagIDs: ids, Action: action}
	return authedJSON[BulkResult](ctx, c, http.MethodPost, "/api/v1/flags/bulk-review", req)
}

// RiskSummary returns flag counts for dashboards.
func (c *Client) RiskSummary(ctx context.Context) (*RiskSummary, error) {
	return authedJSON[RiskSummary](ctx, c, http.MethodGet, "/api/v1/risk/summary", nil)
}

// Policy returns the engine's active risk policy.
func (c *Client) Policy(ctx context.Context) (*Policy, error) {
	return authedJSON[Policy](ctx, c, http.MethodGet, "/api/v1/policy", nil)
}

// Reputation returns a user's 0-100 trust score. No token is needed.
func (c *Client) Reputation(ctx context.Context, userID int64) (*Reputation, error) {
	path := "/api/v1/users/" + strconv.FormatInt(userID, 10) + "/reputation"
	return publicJSON[Reputation](ctx, c, http.MethodGet, path, nil)
}

// ── Reports ─────────────────────────────────────────────────────────────

// FileReport files a user report.
func (c *Client) FileReport(ctx context.Context, req *CreateReportRequest) (*Report, error) {
	return authedJSON[Report](ctx, c, http.MethodPost, "/api/v1/reports", req)
}

// ListReports returns a page of reports newest first.
func (c *Client) ListReports(ctx context.Context, status string, offset, limit int) (*ReportPage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return authedJSON[ReportPage](ctx, c, http.MethodGet, "/api/v1/reports?"+q.Encode(), nil)
}

// UpdateReport moves a report through its lifecycle.
func (c *Client) UpdateReport(ctx context.Context, id int64, req *UpdateReportRequest) (*Report, error) {
	return authedJSON[Report](ctx, c, http.MethodPatch, "/api/v1/reports/"+strconv.FormatInt(id, 10), req)
}

// ── Audit ───────────────────────────────────────────────────────────────

// AuditOverview returns the audit chain length and head hash.
func (c *Client) AuditOverview(ctx context.Context) (*AuditOverview, error) {
	return authedJSON[AuditOverview](ctx, c, http.MethodGet, "/api/v1/audit", nil)
}

// VerifyAudit walks the audit chain server-side. A broken chain is returned
// as valid=false with the reason, not as an error.
func (c *Client) VerifyAudit(ctx context.Context) (valid bool, reason string, err error) {
	var out struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	if err := c.authed(ctx, http.MethodGet, "/api/v1/audit/verify", nil, &out); err != nil {
		return false, "", err
	}
	return out.Valid, out.Error, nil
}

// AuditHistory returns the audit trail of one ad, user, message or report,
// oldest first.
func (c *Client) AuditHistory(ctx context.Context, kind string, id int64) ([]*AuditRecord, error) {
	var out struct {
		Entries []*AuditRecord `json:"entries"`
	}
	path := "/api/v1/audit/subjects/" + url.PathEscape(kind) + "/" + strconv.FormatInt(id, 10)
	if err := c.authed(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// ── transport ───────────────────────────────────────────────────────────

func authedJSON[T any](ctx context.Context, c *Client, method, path string, in any) (*T, error) {
	var out T
	if err := c.authed(ctx, method, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func publicJSON[T any](ctx context.Context, c *Client, method, path string, in any) (*T, error) {
	var out T
	if err := c.call(ctx, method, path, "", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) authed(ctx context.Context, method, path string, in, out any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}
	return c.call(ctx, method, path, token, in, out)
}

// call executes one JSON request. Non-2xx responses become *APIError.
func (c *Client) call(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(respBytes))
		if json.Unmarshal(respBytes, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil && len(respBytes) > 0 {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
