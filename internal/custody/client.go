package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Client is the HTTP implementation of Provider
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new custody API client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("custody API error %d: %s", e.status, e.body)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &apiError{status: resp.StatusCode, body: string(data)}
	}

	return data, nil
}

type pregenRequest struct {
	TelegramUserID string `json:"telegramUserId"`
	Type           string `json:"type"`
}

// CreateWallet creates a pregenerated EVM wallet, returning the existing one if present
func (c *Client) CreateWallet(ctx context.Context, telegramUserID int64) (*Wallet, error) {
	existing, err := c.GetWallet(ctx, telegramUserID)
	if err == nil {
		return existing, nil
	}
	if err != ErrWalletNotFound {
		return nil, err
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/wallets/pregen", pregenRequest{
		TelegramUserID: strconv.FormatInt(telegramUserID, 10),
		Type:           "EVM",
	})
	if err != nil {
		return nil, err
	}

	var w Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return &w, nil
}

// GetWallet returns the pregenerated wallet of a user
func (c *Client) GetWallet(ctx context.Context, telegramUserID int64) (*Wallet, error) {
	path := "/wallets/pregen?telegramUserId=" + strconv.FormatInt(telegramUserID, 10)
	data, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if apiErr, ok := err.(*apiError); ok && apiErr.status == http.StatusNotFound {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}

	var resp struct {
		Wallets []Wallet `json:"wallets"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	for _, w := range resp.Wallets {
		if w.Type == "" || w.Type == "EVM" {
			return &w, nil
		}
	}
	return nil, ErrWalletNotFound
}

type sendRequest struct {
	TelegramUserID string `json:"telegramUserId"`
	ChainID        string `json:"chainId"`
	To             string `json:"to"`
	Value          string `json:"value"`
	Data           string `json:"data"`
}

// SendTransaction signs and broadcasts a transaction, returning its hash
func (c *Client) SendTransaction(ctx context.Context, telegramUserID int64, tx TxRequest) (string, error) {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	data := "0x"
	if len(tx.Data) > 0 {
		data = hexutil.Encode(tx.Data)
	}

	respData, err := c.doRequest(ctx, http.MethodPost, "/transactions/send", sendRequest{
		TelegramUserID: strconv.FormatInt(telegramUserID, 10),
		ChainID:        strconv.FormatInt(tx.ChainID, 10),
		To:             tx.To.Hex(),
		Value:          value.String(),
		Data:           data,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		TransactionHash string `json:"transactionHash"`
	}
	if err := json.Unmarshal(respData, &resp); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	if resp.TransactionHash == "" {
		return "", fmt.Errorf("custody API returned no transaction hash")
	}
	return resp.TransactionHash, nil
}
