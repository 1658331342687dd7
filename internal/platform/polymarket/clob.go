// Package polymarket contains the wire-level clients for the Polymarket
// CLOB: the authenticated REST client and the user-channel WebSocket.
package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/polywatcher/internal/crypto"
	"github.com/alanyoungcy/polywatcher/internal/domain"
)

// ClobClient is the REST client for the Polymarket CLOB and data APIs. It
// implements domain.Exchange: trade history, order lookups, and the
// per-user position summary used for bootstrap.
type ClobClient struct {
	baseURL    string
	dataURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	creds      *crypto.APICreds
}

// NewClobClient creates a CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// dataURL is the data API root, e.g. "https://data-api.polymarket.com".
// signer provides the EIP-712 auth signature for DeriveAPIKey; creds may be
// nil, in which case DeriveAPIKey must run before authenticated calls.
func NewClobClient(baseURL, dataURL string, signer *crypto.Signer, creds *crypto.APICreds) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		dataURL: dataURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer: signer,
		creds:  creds,
	}
}

// Creds returns the credentials currently in use, nil before DeriveAPIKey.
func (c *ClobClient) Creds() *crypto.APICreds {
	return c.creds
}

// FetchTrades retrieves the authenticated wallet's trade history, filtered
// by the query. Results are returned in the order the API delivers them;
// the calculator sorts by match time itself.
func (c *ClobClient) FetchTrades(ctx context.Context, q domain.TradeQuery) ([]domain.Trade, error) {
	params := url.Values{}
	params.Set("maker_address", c.signer.Address().Hex())
	if q.Market != "" {
		params.Set("market", q.Market)
	}
	if q.After > 0 {
		params.Set("after", strconv.FormatInt(q.After, 10))
	}
	if q.Before > 0 {
		params.Set("before", strconv.FormatInt(q.Before, 10))
	}

	path := "/data/trades?" + params.Encode()
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: fetch trades: %w", err)
	}

	var msgs []TradeMessage
	if err := json.Unmarshal(respBody, &msgs); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode trades: %w", err)
	}

	trades := make([]domain.Trade, 0, len(msgs))
	for i := range msgs {
		trades = append(trades, msgs[i].ToDomain())
	}
	return trades, nil
}

// FetchOrder retrieves a single order by id. A missing order returns
// (nil, nil); callers treat absence as cancellation.
func (c *ClobClient) FetchOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, "/data/order/"+orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("polymarket/clob: fetch order %s: %w", orderID, err)
	}

	var msg OrderMessage
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode order: %w", err)
	}
	if msg.ID == "" {
		return nil, nil
	}

	order := msg.ToDomain()
	return &order, nil
}

// FetchPositions retrieves the current position summary for a wallet from
// the data API. The endpoint is public, no auth headers required.
func (c *ClobClient) FetchPositions(ctx context.Context, address string) ([]domain.PositionSummary, error) {
	reqURL := c.dataURL + "/positions?user=" + url.QueryEscape(address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: create positions request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: positions request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: read positions response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, fmt.Errorf("polymarket/clob: fetch positions: %w", err)
	}

	var rows []APIPosition
	if err := json.Unmarshal(respBody, &rows); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode positions: %w", err)
	}

	summaries := make([]domain.PositionSummary, 0, len(rows))
	for i := range rows {
		summaries = append(summaries, rows[i].ToDomain())
	}
	return summaries, nil
}

// DeriveAPIKey performs the CLOB auth flow to obtain HMAC credentials. It
// signs a ClobAuth EIP-712 message and sends it with L1 headers
// (POLY_ADDRESS, POLY_SIGNATURE, POLY_TIMESTAMP, POLY_NONCE) to the
// derive-api-key endpoint. On success it populates the client's creds.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	c.creds = &crypto.APICreds{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}
	return nil
}

// doAuthenticatedRequest sends an L2-authenticated GET/DELETE style request
// (no body) against the CLOB API and returns the raw response body.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.creds == nil {
		return nil, fmt.Errorf("%w: api credentials not derived", domain.ErrUnauthorized)
	}

	// The HMAC path covers the route only, not the query string.
	sigPath := req.URL.Path
	for k, v := range c.creds.L2Headers(c.signer.Address().Hex(), method, sigPath, "") {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain sentinel errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
