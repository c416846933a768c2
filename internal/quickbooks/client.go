// Package quickbooks talks to Intuit's OAuth2 and QuickBooks Online accounting APIs.
package quickbooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	authURL       = "https://appcenter.intuit.com/connect/oauth2"
	tokenURL      = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	revokeURL     = "https://developer.api.intuit.com/v2/oauth2/tokens/revoke"
	sandboxURL    = "https://sandbox-quickbooks.api.intuit.com"
	productionURL = "https://quickbooks.api.intuit.com"

	minorVersion = "65"
	pageSize     = 1000
)

// Scopes requested during the connect flow.
var Scopes = []string{"com.intuit.quickbooks.accounting", "openid", "profile", "email"}

// Options configures a Client. Empty URL fields fall back to Intuit's endpoints.
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Environment  string // "sandbox" or "production"

	BaseURL    string
	AuthURL    string
	TokenURL   string
	RevokeURL  string
	HTTPClient *http.Client
}

// Client wraps the OAuth2 config and an HTTP client for the accounting API.
type Client struct {
	oauth      *oauth2.Config
	baseURL    string
	revokeURL  string
	httpClient *http.Client
}

// New creates a QuickBooks client.
func New(opts Options) *Client {
	base := opts.BaseURL
	if base == "" {
		base = sandboxURL
		if opts.Environment == "production" {
			base = productionURL
		}
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   orDefault(opts.AuthURL, authURL),
				TokenURL:  orDefault(opts.TokenURL, tokenURL),
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		baseURL:    strings.TrimRight(base, "/"),
		revokeURL:  orDefault(opts.RevokeURL, revokeURL),
		httpClient: httpClient,
	}
}

// AuthCodeURL returns the Intuit consent URL carrying state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (Token, error) {
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return Token{}, fmt.Errorf("quickbooks: exchange code: %w", err)
	}
	return fromOAuth(tok), nil
}

// Refresh obtains a new access token using a refresh token. Intuit rotates
// refresh tokens, so callers must persist the returned pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return Token{}, fmt.Errorf("quickbooks: refresh token: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return fromOAuth(tok), nil
}

// Revoke invalidates a refresh (or access) token.
func (c *Client) Revoke(ctx context.Context, token string) error {
	body, _ := json.Marshal(map[string]string{"token": token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.oauth.ClientID, c.oauth.ClientSecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("quickbooks: revoke token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("quickbooks: revoke token: status %d", resp.StatusCode)
	}
	return nil
}

// CompanyInfo fetches the company profile of the session's realm.
func (c *Client) CompanyInfo(ctx context.Context, s Session) (CompanyInfo, error) {
	var out struct {
		CompanyInfo CompanyInfo `json:"CompanyInfo"`
	}
	path := fmt.Sprintf("/v3/company/%s/companyinfo/%s", s.RealmID, s.RealmID)
	if err := c.do(ctx, s, http.MethodGet, path, nil, nil, &out); err != nil {
		return CompanyInfo{}, err
	}
	return out.CompanyInfo, nil
}

// FetchPurchases returns all purchases dated within [start, end].
func (c *Client) FetchPurchases(ctx context.Context, s Session, start, end time.Time) ([]Purchase, error) {
	where := fmt.Sprintf("WHERE TxnDate >= '%s' AND TxnDate <= '%s'", start.Format("2006-01-02"), end.Format("2006-01-02"))
	var all []Purchase
	for pos := 1; ; pos += pageSize {
		var out struct {
			QueryResponse struct {
				Purchase []Purchase `json:"Purchase"`
			} `json:"QueryResponse"`
		}
		q := fmt.Sprintf("SELECT * FROM Purchase %s STARTPOSITION %d MAXRESULTS %d", where, pos, pageSize)
		if err := c.Query(ctx, s, q, &out); err != nil {
			return nil, err
		}
		all = append(all, out.QueryResponse.Purchase...)
		if len(out.QueryResponse.Purchase) < pageSize {
			return all, nil
		}
	}
}

// FetchUncategorizedPurchases filters FetchPurchases down to purchases that still need a category.
func (c *Client) FetchUncategorizedPurchases(ctx context.Context, s Session, start, end time.Time) ([]Purchase, error) {
	purchases, err := c.FetchPurchases(ctx, s, start, end)
	if err != nil {
		return nil, err
	}
	out := purchases[:0]
	for _, p := range purchases {
		if p.Uncategorized() {
			out = append(out, p)
		}
	}
	return out, nil
}

// FetchAccounts returns the chart of accounts, including inactive accounts.
func (c *Client) FetchAccounts(ctx context.Context, s Session) ([]Account, error) {
	var out struct {
		QueryResponse struct {
			Account []Account `json:"Account"`
		} `json:"QueryResponse"`
	}
	q := fmt.Sprintf("SELECT * FROM Account WHERE Active IN (true, false) MAXRESULTS %d", pageSize)
	if err := c.Query(ctx, s, q, &out); err != nil {
		return nil, err
	}
	return out.QueryResponse.Account, nil
}

// FetchClasses returns all classes, including inactive ones.
func (c *Client) FetchClasses(ctx context.Context, s Session) ([]Class, error) {
	var out struct {
		QueryResponse struct {
			Class []Class `json:"Class"`
		} `json:"QueryResponse"`
	}
	q := fmt.Sprintf("SELECT * FROM Class WHERE Active IN (true, false) MAXRESULTS %d", pageSize)
	if err := c.Query(ctx, s, q, &out); err != nil {
		return nil, err
	}
	return out.QueryResponse.Class, nil
}

// UpdatePurchaseCategory points every expense line of a purchase at account
// (and class, when given). The purchase is read first so the full update keeps
// fields this client does not model and carries the current SyncToken.
func (c *Client) UpdatePurchaseCategory(ctx context.Context, s Session, purchaseID string, account Ref, class *Ref) error {
	var current struct {
		Purchase map[string]any `json:"Purchase"`
	}
	path := fmt.Sprintf("/v3/company/%s/purchase/%s", s.RealmID, url.PathEscape(purchaseID))
	if err := c.do(ctx, s, http.MethodGet, path, nil, nil, &current); err != nil {
		return err
	}
	if current.Purchase == nil {
		return fmt.Errorf("quickbooks: purchase %s not found", purchaseID)
	}

	if n := applyCategory(current.Purchase, account, class); n == 0 {
		return fmt.Errorf("quickbooks: purchase %s has no expense lines to categorize", purchaseID)
	}

	body, err := json.Marshal(current.Purchase)
	if err != nil {
		return err
	}
	path = fmt.Sprintf("/v3/company/%s/purchase", s.RealmID)
	return c.do(ctx, s, http.MethodPost, path, nil, body, nil)
}

// applyCategory rewrites the account/class refs on account-based expense lines
// of a raw purchase document and returns the number of lines touched.
func applyCategory(purchase map[string]any, account Ref, class *Ref) int {
	lines, _ := purchase["Line"].([]any)
	touched := 0
	for _, raw := range lines {
		line, ok := raw.(map[string]any)
		if !ok || line["DetailType"] != expenseLineType {
			continue
		}
		detail, _ := line[expenseLineType].(map[string]any)
		if detail == nil {
			detail = map[string]any{}
			line[expenseLineType] = detail
		}
		detail["AccountRef"] = map[string]any{"value": account.Value, "name": account.Name}
		if class != nil && class.Value != "" {
			detail["ClassRef"] = map[string]any{"value": class.Value, "name": class.Name}
		}
		touched++
	}
	return touched
}

// Query runs a QuickBooks SQL-like query and decodes the response into out.
func (c *Client) Query(ctx context.Context, s Session, query string, out any) error {
	params := url.Values{"query": {query}}
	return c.do(ctx, s, http.MethodGet, fmt.Sprintf("/v3/company/%s/query", s.RealmID), params, nil, out)
}

func (c *Client) do(ctx context.Context, s Session, method, path string, params url.Values, body []byte, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("minorversion", minorVersion)
	endpoint := c.baseURL + path + "?" + params.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("quickbooks: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var env faultEnvelope
		if json.NewDecoder(resp.Body).Decode(&env) == nil {
			apiErr.Type = env.Fault.Type
			apiErr.Errors = env.Fault.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("quickbooks: decode response: %w", err)
	}
	return nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func fromOAuth(tok *oauth2.Token) Token {
	t := Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if secs, ok := tok.Extra("x_refresh_token_expires_in").(float64); ok && secs > 0 {
		exp := time.Now().Add(time.Duration(secs) * time.Second)
		t.RefreshTokenExpiry = &exp
	}
	return t
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
