package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/obverse/mantle-bot/internal/metrics"
)

// Explorer is a client for the Mantle explorer's account API
type Explorer struct {
	apiURL     string
	siteURL    string
	httpClient *http.Client

	// Rate limiting
	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

// NewExplorer creates a new explorer client
func NewExplorer(apiURL, siteURL string) *Explorer {
	return &Explorer{
		apiURL:  strings.TrimSuffix(apiURL, "/"),
		siteURL: strings.TrimSuffix(siteURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		minDelay: 200 * time.Millisecond, // ~5 RPS
	}
}

func (e *Explorer) throttle() {
	e.mu.Lock()
	defer e.mu.Unlock()

	elapsed := time.Since(e.lastCall)
	if elapsed < e.minDelay {
		time.Sleep(e.minDelay - elapsed)
	}
	e.lastCall = time.Now()
}

func (e *Explorer) doRequest(ctx context.Context, query url.Values) (data []byte, err error) {
	e.throttle()

	start := time.Now()
	defer func() {
		metrics.RPCDuration.WithLabelValues("explorer_"+query.Get("action"), metrics.Status(err)).
			Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.apiURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("explorer error %d: %s", resp.StatusCode, string(data))
	}

	return data, nil
}

func (e *Explorer) accountQuery(ctx context.Context, action, address string, limit int, out interface{}) error {
	query := url.Values{}
	query.Set("module", "account")
	query.Set("action", action)
	query.Set("address", address)
	query.Set("startblock", "0")
	query.Set("endblock", "99999999")
	query.Set("page", "1")
	query.Set("offset", strconv.Itoa(limit))
	query.Set("sort", "desc")

	data, err := e.doRequest(ctx, query)
	if err != nil {
		return err
	}

	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	// "0" is returned both for errors and for accounts without history
	if resp.Status != "1" {
		return nil
	}

	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

// Transactions returns recent native transactions of an address, newest first
func (e *Explorer) Transactions(ctx context.Context, address string, limit int) ([]ExplorerTx, error) {
	var txs []ExplorerTx
	if err := e.accountQuery(ctx, "txlist", address, limit, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// TokenTransfers returns recent ERC-20 transfers involving an address, newest first
func (e *Explorer) TokenTransfers(ctx context.Context, address string, limit int) ([]TokenTransfer, error) {
	var transfers []TokenTransfer
	if err := e.accountQuery(ctx, "tokentx", address, limit, &transfers); err != nil {
		return nil, err
	}
	return transfers, nil
}

// TxURL returns the explorer page of a transaction
func (e *Explorer) TxURL(hash string) string {
	return e.siteURL + "/tx/" + hash
}

// AddressURL returns the explorer page of an address
func (e *Explorer) AddressURL(address string) string {
	return e.siteURL + "/address/" + address
}
