/**
 * @description
 * This package provides a client for the Teller banking-data API. Every call is
 * made over mutual TLS with the application certificate, and authorized with the
 * enrollment's access token.
 *
 * Key features:
 * - Loads the client certificate and key once at startup.
 * - Sandbox tokens (prefix `test_token_`) use HTTP Basic auth, others use Bearer.
 * - A fixed per-call timeout; timeouts surface as ErrTimeout.
 * - Content-type driven decoding: JSON bodies are parsed, everything else is raw text.
 */
package tellerclient

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/budgetlink/budgetlink-service/internal/domain"
)

const (
	DefaultBaseURL = "https://api.teller.io"
	DefaultTimeout = 10 * time.Second

	sandboxTokenPrefix = "test_token_"
	userAgent          = "BudgetLink/1.0"
)

var (
	ErrAuthFailed         = errors.New("teller: authentication failed")
	ErrTimeout            = errors.New("teller: request timed out")
	ErrUnexpectedResponse = errors.New("teller: unexpected response")
)

// UpstreamError is returned for non-2xx responses other than auth failures.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("teller API error: status %d, body: %s", e.Status, e.Body)
}

// Response is a decoded Teller response. JSON is set for JSON bodies, Text otherwise.
type Response struct {
	Status int
	JSON   json.RawMessage
	Text   string
}

// IsJSON reports whether the body was parsed as JSON.
func (r *Response) IsJSON() bool { return r.JSON != nil }

// Options tune the client. Zero values fall back to defaults.
type Options struct {
	BaseURL            string
	Timeout            time.Duration
	InsecureSkipVerify bool
	Logger             *slog.Logger
	// Transport overrides the TLS transport; used by tests.
	Transport http.RoundTripper
}

// Client is a client for the Teller API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// LoadCertificate reads the application certificate and private key from disk.
func LoadCertificate(certPath, keyPath string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load teller certificate: %w", err)
	}
	return cert, nil
}

// NewClient creates a new Teller API client presenting cert on every connection.
func NewClient(cert tls.Certificate, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	transport := opts.Transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.TLSClientConfig = &tls.Config{
			Certificates:       []tls.Certificate{cert},
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // development only, off by default
		}
		transport = base
	}

	return &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		logger: opts.Logger,
	}
}

// ListAccounts returns the accounts reachable with the access token.
func (c *Client) ListAccounts(ctx context.Context, accessToken string) ([]domain.Account, error) {
	var accounts []domain.Account
	if err := c.getList(ctx, c.baseURL+"/accounts", accessToken, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListTransactions returns the transactions of one account. Entries that are not
// JSON objects are skipped; the rest are kept as Teller sent them.
func (c *Client) ListTransactions(ctx context.Context, accessToken, accountID string) ([]domain.Transaction, error) {
	u := fmt.Sprintf("%s/accounts/%s/transactions", c.baseURL, url.PathEscape(accountID))
	var items []json.RawMessage
	if err := c.getList(ctx, u, accessToken, &items); err != nil {
		return nil, err
	}

	txns := make([]domain.Transaction, 0, len(items))
	for i, item := range items {
		var txn domain.Transaction
		if err := json.Unmarshal(item, &txn); err != nil {
			c.logger.WarnContext(ctx, "skipping undecodable transaction", "account_id", accountID, "index", i, "error", err)
			continue
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func (c *Client) getList(ctx context.Context, url, accessToken string, target interface{}) error {
	resp, err := c.Get(ctx, url, accessToken)
	if err != nil {
		return err
	}
	if !resp.IsJSON() || !isJSONArray(resp.JSON) {
		return fmt.Errorf("%w: expected a JSON array from %s", ErrUnexpectedResponse, url)
	}
	if err := json.Unmarshal(resp.JSON, target); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

// Get performs an authenticated GET and interprets the body by content type.
func (c *Client) Get(ctx context.Context, url, accessToken string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	setAuthorization(req, accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.logger.DebugContext(ctx, "teller request", "url", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("teller request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("reading teller response: %w", err)
	}

	out := &Response{Status: resp.StatusCode}
	if isJSONContent(resp.Header.Get("Content-Type")) && len(strings.TrimSpace(string(body))) > 0 {
		if !json.Valid(body) {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil, fmt.Errorf("%w: invalid JSON body", ErrUnexpectedResponse)
			}
			out.Text = string(body)
		} else {
			out.JSON = body
		}
	} else {
		out.Text = string(body)
	}

	c.logger.DebugContext(ctx, "teller response", "status", resp.StatusCode, "content_type", resp.Header.Get("Content-Type"))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return out, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	default:
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}
}

func setAuthorization(req *http.Request, accessToken string) {
	if strings.HasPrefix(accessToken, sandboxTokenPrefix) {
		creds := base64.StdEncoding.EncodeToString([]byte(accessToken + ":"))
		req.Header.Set("Authorization", "Basic "+creds)
		return
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
}

func isJSONContent(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "application/json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func isJSONArray(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "[")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
