package custody

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWalletReturnsExisting(t *testing.T) {
	created := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/wallets/pregen":
			assert.Equal(t, "42", r.URL.Query().Get("telegramUserId"))
			w.Write([]byte(`{"wallets":[{"id":"w1","address":"0xabc","type":"EVM"}]}`))
		case r.Method == http.MethodPost:
			created = true
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	w, err := c.CreateWallet(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", w.Address)
	assert.False(t, created)
}

func TestCreateWalletCreatesWhenMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPost:
			var req pregenRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "42", req.TelegramUserID)
			assert.Equal(t, "EVM", req.Type)
			w.Write([]byte(`{"id":"w2","address":"0xdef","type":"EVM"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	w, err := c.CreateWallet(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "w2", w.ID)
}

func TestSendTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "/transactions/send", r.URL.Path)
		assert.Equal(t, "5000", req.ChainID)
		assert.Equal(t, "1000", req.Value)
		assert.Equal(t, "0x", req.Data)
		w.Write([]byte(`{"transactionHash":"0xhash"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	hash, err := c.SendTransaction(context.Background(), 42, TxRequest{
		ChainID: 5000,
		To:      common.HexToAddress("0x0000000000000000000000000000000000000001"),
		Value:   big.NewInt(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, "0xhash", hash)
}

func TestSendTransactionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"insufficient funds for gas"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.SendTransaction(context.Background(), 42, TxRequest{ChainID: 5000})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds for gas")
}
