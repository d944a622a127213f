// Package client provides an HTTP client for the estate-market REST API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/evcraddock/estate-market/internal/chat"
	"github.com/evcraddock/estate-market/internal/config"
	"github.com/evcraddock/estate-market/internal/property"
	"github.com/evcraddock/estate-market/internal/sale"
	"github.com/evcraddock/estate-market/internal/wallet"
)

// Client is an HTTP client for the estate-market API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ShowResponse is the response from GET /api/properties/{id}.
type ShowResponse struct {
	Property *property.Property `json:"property"`
	Sales    []*sale.Sale       `json:"sales"`
}

// ListOptions controls filtering for ListProperties.
type ListOptions struct {
	Owner string
	City  string
	Min   int64
	Max   int64
	Near  string
	Sort  string
	Limit int
}

// ListProperties returns indexed properties, optionally filtered.
func (c *Client) ListProperties(opts ListOptions) ([]*property.Property, error) {
	q := url.Values{}
	setString(q, "owner", opts.Owner)
	setString(q, "city", opts.City)
	setString(q, "near", opts.Near)
	setString(q, "sort", opts.Sort)
	if opts.Min > 0 {
		q.Set("min", strconv.FormatInt(opts.Min, 10))
	}
	if opts.Max > 0 {
		q.Set("max", strconv.FormatInt(opts.Max, 10))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	var props []*property.Property
	if err := c.get(withQuery("/api/properties", q), &props); err != nil {
		return nil, err
	}
	return props, nil
}

// GetProperty returns a property with its sales.
func (c *Client) GetProperty(id int64) (*ShowResponse, error) {
	var resp ShowResponse
	if err := c.get(fmt.Sprintf("/api/properties/%d", id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaleFilter controls filtering for ListSales.
type SaleFilter struct {
	PropertyID int64
	Buyer      string
	Seller     string
	Status     string
	Limit      int
}

// ListSales returns sales, newest first.
func (c *Client) ListSales(f SaleFilter) ([]*sale.Sale, error) {
	q := url.Values{}
	if f.PropertyID > 0 {
		q.Set("property_id", strconv.FormatInt(f.PropertyID, 10))
	}
	setString(q, "buyer", f.Buyer)
	setString(q, "seller", f.Seller)
	setString(q, "status", f.Status)
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	var sales []*sale.Sale
	if err := c.get(withQuery("/api/sales", q), &sales); err != nil {
		return nil, err
	}
	return sales, nil
}

// CreateSale makes an offer on a property as the key's wallet.
func (c *Client) CreateSale(propertyID, price int64) (*sale.Sale, error) {
	body := map[string]int64{"property_id": propertyID, "price": price}
	var s sale.Sale
	if err := c.post("/api/sales", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CompleteSale accepts an offer as the seller.
func (c *Client) CompleteSale(id, txHash string) (*sale.Sale, error) {
	body := map[string]string{"tx_hash": txHash}
	var s sale.Sale
	if err := c.post("/api/sales/"+url.PathEscape(id)+"/complete", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CancelSale withdraws an offer as buyer or seller.
func (c *Client) CancelSale(id string) (*sale.Sale, error) {
	var s sale.Sale
	if err := c.post("/api/sales/"+url.PathEscape(id)+"/cancel", struct{}{}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Account returns the on-chain account for an address.
func (c *Client) Account(address string) (*wallet.Account, error) {
	var acct wallet.Account
	if err := c.get("/api/accounts/"+url.PathEscape(address), &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// OwnedTokens returns the properties an address owns on chain.
func (c *Client) OwnedTokens(address string) ([]*property.Property, error) {
	var props []*property.Property
	if err := c.get("/api/accounts/"+url.PathEscape(address)+"/tokens", &props); err != nil {
		return nil, err
	}
	return props, nil
}

// StatsResponse is the response from GET /api/stats.
type StatsResponse struct {
	Properties *property.Stats `json:"properties"`
	Sales      *sale.Stats     `json:"sales"`
}

// Stats returns marketplace totals.
func (c *Client) Stats() (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.get("/api/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sync asks the server to re-import every token from the chain.
func (c *Client) Sync() (*property.SyncResult, error) {
	var result property.SyncResult
	if err := c.post("/api/sync", struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Chat sends a message and returns the assistant's reply. An empty
// conversation starts a new one; the reply carries its ID.
func (c *Client) Chat(conversation, text string) (*chat.Message, error) {
	body := map[string]string{"conversation": conversation, "text": text}
	var m chat.Message
	if err := c.post("/api/chat", body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Network returns the server's chain configuration.
func (c *Client) Network() (*config.Network, error) {
	var n config.Network
	if err := c.get("/api/network", &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Me returns the wallet address the API key acts for.
func (c *Client) Me() (string, error) {
	var resp struct {
		Address string `json:"address"`
	}
	if err := c.get("/api/me", &resp); err != nil {
		return "", err
	}
	return resp.Address, nil
}

// Challenge requests a sign-in message for address.
func (c *Client) Challenge(address string) (*wallet.Challenge, error) {
	var ch wallet.Challenge
	if err := c.post("/wallet/challenge", map[string]string{"address": address}, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// ConnectResponse is the response from POST /wallet/connect with issue_key.
type ConnectResponse struct {
	Address string `json:"address"`
	Key     *struct {
		Key string `json:"key"`
	} `json:"key"`
}

// ConnectWithKey exchanges a signed challenge for a new API key.
func (c *Client) ConnectWithKey(token, signature, keyName string) (*ConnectResponse, error) {
	body := map[string]interface{}{
		"token":     token,
		"signature": signature,
		"issue_key": true,
		"key_name":  keyName,
	}
	var resp ConnectResponse
	if err := c.post("/wallet/connect", body, &resp); err != nil {
		return nil, err
	}
	if resp.Key == nil || resp.Key.Key == "" {
		return nil, fmt.Errorf("server did not return an API key")
	}
	return &resp, nil
}

// APIKey describes an issued API key; the raw key is never returned.
type APIKey struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	KeyPrefix  string  `json:"key_prefix"`
	CreatedAt  string  `json:"created_at"`
	LastUsedAt *string `json:"last_used_at,omitempty"`
}

// ListKeys returns the API keys of the key's wallet.
func (c *Client) ListKeys() ([]APIKey, error) {
	var keys []APIKey
	if err := c.get("/api/keys", &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// DeleteKey revokes an API key.
func (c *Client) DeleteKey(id int64) error {
	return c.doDelete(fmt.Sprintf("/api/keys/%d", id))
}

func setString(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// get performs a GET request and decodes the response.
func (c *Client) get(path string, result interface{}) error {
	req, err := http.NewRequest("GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, result)
}

// post performs a POST request with a JSON body and decodes the response.
func (c *Client) post(path string, body interface{}, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequest("POST", c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

// doDelete performs a DELETE request.
func (c *Client) doDelete(path string) error {
	req, err := http.NewRequest("DELETE", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, nil)
}

// do executes an HTTP request with auth header and handles errors.
func (c *Client) do(req *http.Request, result interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("closing response body", "err", cerr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s", errResp.Error)
		}
		return fmt.Errorf("server error: %s", http.StatusText(resp.StatusCode))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
