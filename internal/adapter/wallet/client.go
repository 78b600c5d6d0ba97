// Package wallet implements the payment port against an HTTP wallet daemon.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	walletport "github.com/arenaforge/arenaforge/internal/port/wallet"
	"github.com/arenaforge/arenaforge/internal/resilience"
)

// Client talks to a wallet daemon exposing balance, transfer and
// transaction-status endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	network    string
	poll       time.Duration
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a wallet client for the given daemon and network.
func NewClient(baseURL, apiKey, network string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		network: network,
		poll:    2 * time.Second,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to balance and transfer calls.
// Confirmation polling stays outside the breaker: a transfer already went
// out, so giving up early would orphan it.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

func (c *Client) Capabilities() walletport.Capabilities {
	return walletport.Capabilities{Balance: true, PayerAddress: true}
}

func (c *Client) Network() string { return c.network }

func (c *Client) Transfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"to":      to,
		"amount":  amount.String(),
		"network": c.network,
	})
	if err != nil {
		return "", fmt.Errorf("marshal transfer: %w", err)
	}

	var txID string
	call := func() error {
		body, err := c.doRequest(ctx, http.MethodPost, "/v1/transfers", payload)
		if err != nil {
			return err
		}
		var resp struct {
			TxID string `json:"tx_id"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("parse transfer response: %w", err)
		}
		if resp.TxID == "" {
			return fmt.Errorf("transfer response carries no tx id")
		}
		txID = resp.TxID
		return nil
	}

	if err := c.execute(call); err != nil {
		return "", fmt.Errorf("wallet transfer: %w", err)
	}
	return txID, nil
}

// WaitConfirmed polls the transaction status until it confirms, reverts, or
// ctx expires.
func (c *Client) WaitConfirmed(ctx context.Context, txID string) error {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		body, err := c.doRequest(ctx, http.MethodGet, "/v1/transfers/"+txID, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Transient poll failures are retried until the deadline.
			select {
			case <-ticker.C:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var resp struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("parse status response: %w", err)
		}
		switch resp.Status {
		case "confirmed":
			return nil
		case "reverted", "failed":
			return fmt.Errorf("transaction %s %s", txID, resp.Status)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	var balance decimal.Decimal
	call := func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "/v1/balance?network="+c.network, nil)
		if err != nil {
			return err
		}
		var resp struct {
			Balance string `json:"balance"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("parse balance response: %w", err)
		}
		balance, err = decimal.NewFromString(resp.Balance)
		if err != nil {
			return fmt.Errorf("parse balance %q: %w", resp.Balance, err)
		}
		return nil
	}

	if err := c.execute(call); err != nil {
		return decimal.Zero, fmt.Errorf("wallet balance: %w", err)
	}
	return balance, nil
}

func (c *Client) PayerAddress(ctx context.Context) (string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/address", nil)
	if err != nil {
		return "", fmt.Errorf("wallet address: %w", err)
	}
	var resp struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse address response: %w", err)
	}
	return resp.Address, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("wallet API error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func (c *Client) execute(call func() error) error {
	if c.breaker != nil {
		return c.breaker.Do(call)
	}
	return call()
}
