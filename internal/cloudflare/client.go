// Package cloudflare wraps the Cloudflare v4 REST API for a single account.
//
// Key behaviors:
//   - One Client per account credential; the Client holds no other state, so
//     concurrent callers need no coordination here.
//   - Mutating calls either fully succeed or return *APIError carrying the
//     vendor's own error message, suitable for direct display to an operator.
//   - Status/config reads soft-fail to nil: "unknown" is a displayable state,
//     not an error condition.
//   - No retries. A failed call is reported once; retrying is the caller's call.
//   - Idempotency is read-before-write (list, then match). The vendor offers
//     no transactions, so a concurrent actor (e.g. the Cloudflare dashboard)
//     can still race a write; the recovery paths below re-discover what such
//     a race left behind.
package cloudflare

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

	"github.com/slimani-dev/muraqib/internal/config"
)

const defaultBaseURL = "https://api.cloudflare.com/client/v4"

const listPerPage = 50

// Client is a Cloudflare v4 API client scoped to one account credential.
// An empty accountID restricts the client to user-scoped endpoints
// (token verification only).
type Client struct {
	baseURL    string
	httpClient *http.Client
	accountID  string
	apiToken   string
}

// NewClient creates a Client for a specific account.
func NewClient(cfg config.CloudflareConfig, accountID, apiToken string) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		accountID:  accountID,
		apiToken:   apiToken,
	}
}

// accountPath prefixes p with the account scope.
func (c *Client) accountPath(p string) string {
	return "/accounts/" + c.accountID + p
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type resultInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	Count      int `json:"count"`
	TotalCount int `json:"total_count"`
}

// envelope is the uniform v4 response wrapper.
type envelope struct {
	Success    bool            `json:"success"`
	Errors     []apiMessage    `json:"errors"`
	Result     json.RawMessage `json:"result"`
	ResultInfo *resultInfo     `json:"result_info"`
}

// doRaw performs one request and returns the decoded envelope. A non-success
// HTTP status or an envelope with success=false yields *APIError with the
// vendor messages joined verbatim (or the raw body when it is not an
// envelope at all).
func (c *Client) doRaw(ctx context.Context, method, path string, query url.Values, body interface{}) (*envelope, error) {
	var bodyReader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("cloudflare: marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(buf)
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: parse url: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("cloudflare: read body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if resp.StatusCode >= 300 || !env.Success {
		msg := joinMessages(env.Errors)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return &env, nil
}

// do performs one request and unmarshals the envelope result into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	env, err := c.doRaw(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("cloudflare: decode result: %w", err)
	}
	return nil
}

// listAll fetches every page of a list endpoint, invoking collect with each
// page's raw result, until the vendor stops reporting more pages. The object
// counts behind these endpoints are small in practice, but paginating here
// keeps the usage scans correct when they are not.
func (c *Client) listAll(ctx context.Context, path string, query url.Values, collect func(result json.RawMessage) error) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("per_page", strconv.Itoa(listPerPage))

	for page := 1; ; page++ {
		query.Set("page", strconv.Itoa(page))
		env, err := c.doRaw(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			return err
		}
		if err := collect(env.Result); err != nil {
			return err
		}
		if env.ResultInfo == nil || page >= env.ResultInfo.TotalPages {
			return nil
		}
	}
}

func joinMessages(msgs []apiMessage) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Message != "" {
			parts = append(parts, m.Message)
		}
	}
	return strings.Join(parts, "; ")
}

// VerifyToken reports whether the client's bearer token is active. The check
// is account-scoped when the client carries an account ID, user-scoped
// otherwise. It never returns an error: any failure, vendor rejection or
// malformed body included, reads as "not valid".
func (c *Client) VerifyToken(ctx context.Context) bool {
	path := "/user/tokens/verify"
	if c.accountID != "" {
		path = c.accountPath("/tokens/verify")
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return false
	}
	return out.Status == "active"
}
