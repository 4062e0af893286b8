// Package broker implements domain.Broker against the venue's REST trading
// API: EIP-712-signed order submission, L1 derive-API-key auth, and
// L2 HMAC-authenticated reads/writes.
package broker

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/openmarket/trademanager/internal/crypto"
	"github.com/openmarket/trademanager/internal/domain"
)

// priceScale converts a float64 price/amount in [0,1]-style units to the
// venue's fixed-point on-wire representation, matching the signer's
// expectation of decimal-string big.Int amounts.
const priceScale = 1_000_000

// Client is a REST client for the venue's order and market-data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	hmacAuth   *crypto.HMACAuth
	logger     *slog.Logger
}

// New creates a Client. timeout is applied per-call (brokerTimeout config
// key); timeouts classify as transient in the Executor's failure table.
func New(baseURL string, signer *crypto.Signer, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		signer:     signer,
		logger:     logger.With(slog.String("component", "broker")),
	}
}

// DeriveAPIKey performs the L1 derive-api-key auth flow, signing a ClobAuth
// EIP-712 message and exchanging it for HMAC credentials used on subsequent
// L2 requests.
func (c *Client) DeriveAPIKey(ctx context.Context) error {
	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	const nonce = int64(0)

	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return fmt.Errorf("broker: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("broker: build auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", fmt.Sprintf("%d", timestamp))
	req.Header.Set("POLY_NONCE", fmt.Sprintf("%d", nonce))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("broker: auth request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("broker: read auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("broker: auth failed: %w", &domain.BrokerError{StatusCode: resp.StatusCode, Message: string(body)})
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(body, &authResp); err != nil {
		return fmt.Errorf("broker: decode auth response: %w", err)
	}

	c.hmacAuth = &crypto.HMACAuth{Key: authResp.APIKey, Secret: authResp.Secret, Passphrase: authResp.Passphrase}
	return nil
}

// GetHoldings returns the wallet's current venue holdings.
func (c *Client) GetHoldings(ctx context.Context) ([]domain.Holding, error) {
	body, err := c.do(ctx, http.MethodGet, "/holdings", nil)
	if err != nil {
		return nil, fmt.Errorf("broker: get holdings: %w", err)
	}
	var out []struct {
		TokenID     string  `json:"token_id"`
		Shares      float64 `json:"shares"`
		Outcome     string  `json:"outcome"`
		MarketTitle string  `json:"market_title"`
		Redeemable  bool    `json:"redeemable"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("broker: decode holdings: %w", err)
	}
	holdings := make([]domain.Holding, 0, len(out))
	for _, h := range out {
		holdings = append(holdings, domain.Holding{
			TokenID: h.TokenID, Shares: h.Shares, Outcome: h.Outcome,
			MarketTitle: h.MarketTitle, Redeemable: h.Redeemable,
		})
	}
	return holdings, nil
}

// GetPositions returns the wallet's current venue positions.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	body, err := c.do(ctx, http.MethodGet, "/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("broker: get positions: %w", err)
	}
	var out []struct {
		MarketID      string     `json:"market_id"`
		TokenID       string     `json:"token_id"`
		Side          string     `json:"side"`
		Quantity      float64    `json:"quantity"`
		AvgEntryPrice *float64   `json:"avg_entry_price,omitempty"`
		CurrentPrice  float64    `json:"current_price"`
		EndDate       *time.Time `json:"end_date,omitempty"`
		Redeemable    bool       `json:"redeemable"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("broker: decode positions: %w", err)
	}
	positions := make([]domain.Position, 0, len(out))
	for _, p := range out {
		positions = append(positions, domain.Position{
			MarketID: p.MarketID, TokenID: p.TokenID, Side: p.Side,
			Quantity: p.Quantity, AvgEntryPrice: p.AvgEntryPrice,
			CurrentPrice: p.CurrentPrice, EndDate: p.EndDate,
			Redeemable: p.Redeemable, LastUpdatedAt: time.Now().UTC(),
		})
	}
	return positions, nil
}

// GetCurrentPrice returns 0, nil when the venue has no orderbook data for
// the given market/token, matching the Broker interface's contract.
func (c *Client) GetCurrentPrice(ctx context.Context, marketID, tokenID string) (float64, error) {
	path := fmt.Sprintf("/price?market=%s&token=%s", marketID, tokenID)
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		var berr *domain.BrokerError
		if asBrokerError(err, &berr) && berr.StatusCode == http.StatusNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("broker: get current price: %w", err)
	}
	var out struct {
		Price float64 `json:"price"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("broker: decode price: %w", err)
	}
	return out.Price, nil
}

// PlaceOrder signs and submits a sell order. Limit orders carry an
// EIP-712-signed OrderPayload; market orders omit the limit price.
func (c *Client) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlaceOrderResult, error) {
	sideCode := 1 // SELL; this engine only ever sells.
	salt := randomSalt()

	takerAmount := scaleAmount(req.Amount)
	makerAmount := takerAmount
	priceForSig := 0.0
	if req.LimitPrice != nil {
		priceForSig = *req.LimitPrice
		makerAmount = scaleAmount(req.Amount * priceForSig)
	}

	payload := crypto.OrderPayload{
		Salt:          salt,
		Maker:         c.signer.Address().Hex(),
		Signer:        c.signer.Address().Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       req.TokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          sideCode,
		SignatureType: 0,
	}

	sig, err := c.signer.SignOrder(payload)
	if err != nil {
		return domain.PlaceOrderResult{}, fmt.Errorf("broker: sign order: %w", err)
	}

	body := map[string]any{
		"order": map[string]any{
			"tokenID":       payload.TokenID,
			"makerAmount":   payload.MakerAmount,
			"takerAmount":   payload.TakerAmount,
			"side":          "SELL",
			"feeRateBps":    payload.FeeRateBps,
			"nonce":         payload.Nonce,
			"expiration":    payload.Expiration,
			"signatureType": payload.SignatureType,
			"signature":     sig,
			"maker":         payload.Maker,
			"signer":        payload.Signer,
			"taker":         payload.Taker,
		},
		"orderType": string(req.Kind),
	}
	if req.LimitPrice != nil {
		body["limitPrice"] = *req.LimitPrice
	}

	respBody, err := c.do(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.PlaceOrderResult{}, fmt.Errorf("broker: place order: %w", err)
	}

	var result struct {
		Success  bool   `json:"success"`
		OrderID  string `json:"orderID"`
		TxID     string `json:"txID"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return domain.PlaceOrderResult{}, fmt.Errorf("broker: decode order result: %w", err)
	}
	if !result.Success {
		return domain.PlaceOrderResult{}, fmt.Errorf("broker: order rejected: %w",
			&domain.BrokerError{StatusCode: http.StatusOK, Message: result.ErrorMsg})
	}

	return domain.PlaceOrderResult{OrderID: result.OrderID, TxID: result.TxID}, nil
}

// do issues an HMAC-authenticated request and returns the raw response body.
// Non-2xx responses are returned as *domain.BrokerError so the Executor can
// inspect StatusCode and Message without string-matching the Go error value.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("broker: marshal request: %w", err)
		}
		bodyStr = string(data)
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("broker: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.hmacAuth != nil {
		headers := c.hmacAuth.L2Headers(c.signer.Address().Hex(), method, path, bodyStr)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker: transport: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("broker: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.BrokerError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return respBody, nil
}

func asBrokerError(err error, target **domain.BrokerError) bool {
	var berr *domain.BrokerError
	if e, ok := err.(interface{ Unwrap() error }); ok {
		if b, ok2 := e.Unwrap().(*domain.BrokerError); ok2 {
			*target = b
			return true
		}
	}
	if b, ok := err.(*domain.BrokerError); ok {
		berr = b
		*target = berr
		return true
	}
	return false
}

func randomSalt() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return "1"
	}
	return n.String()
}

func scaleAmount(amount float64) string {
	scaled := big.NewInt(int64(amount * priceScale))
	return scaled.String()
}

var _ domain.Broker = (*Client)(nil)
