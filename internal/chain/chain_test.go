package chain

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	native      *big.Int
	balances    map[common.Address]*big.Int
	decimals    map[common.Address]uint8
	failBalance map[common.Address]bool
}

func (f *fakeBackend) BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	return f.native, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, block *big.Int) ([]byte, error) {
	to := *call.To
	switch {
	case bytes.HasPrefix(call.Data, erc20ABI.Methods["balanceOf"].ID):
		if f.failBalance[to] {
			return nil, errors.New("execution reverted")
		}
		return erc20ABI.Methods["balanceOf"].Outputs.Pack(f.balances[to])
	case bytes.HasPrefix(call.Data, erc20ABI.Methods["decimals"].ID):
		d, ok := f.decimals[to]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return erc20ABI.Methods["decimals"].Outputs.Pack(d)
	}
	return nil, errors.New("unknown method")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUnits(t *testing.T) {
	amount := decimal.RequireFromString("1.5")
	assert.Equal(t, "1500000", ToBaseUnits(amount, 6).String())
	assert.Equal(t, "1500000000000000000", ToBaseUnits(amount, 18).String())

	// precision beyond the token's decimals is truncated
	assert.Equal(t, "1", ToBaseUnits(decimal.RequireFromString("0.0000019"), 6).String())

	assert.Equal(t, "500.123456", FromBaseUnits(big.NewInt(500123456), 6).String())
	assert.True(t, FromBaseUnits(nil, 6).IsZero())

	assert.True(t, FitsDecimals(decimal.RequireFromString("0.019999"), 6))
	assert.True(t, FitsDecimals(decimal.RequireFromString("1.500000"), 6))
	assert.True(t, FitsDecimals(decimal.RequireFromString("25"), 0))
	assert.False(t, FitsDecimals(decimal.RequireFromString("0.0199999"), 6))
	assert.False(t, FitsDecimals(decimal.RequireFromString("0.0000000000000000001"), 18))
	assert.Equal(t, "2", ParseBaseUnits("2000000", 6).String())
	assert.True(t, ParseBaseUnits("garbage", 6).IsZero())
}

func TestIsAddress(t *testing.T) {
	assert.True(t, IsAddress("0x0000000000000000000000000000000000000000"))
	assert.True(t, IsAddress("0x09bc4e0d864854c6afb6eb9a9cdf58ac190d0df9"))
	assert.True(t, IsAddress("0x09Bc4E0D864854c6aFB6eB9A9cdF58aC190D0dF9"))
	assert.False(t, IsAddress("0x09BC4e0D864854c6aFB6eB9A9cdF58aC190D0dF9"), "bad checksum")
	assert.False(t, IsAddress("09bc4e0d864854c6afb6eb9a9cdf58ac190d0df9"), "missing prefix")
	assert.False(t, IsAddress("0x1234"))
	assert.False(t, IsAddress("hello"))

	for _, tok := range BalanceTokens {
		if tok.Native {
			continue
		}
		assert.True(t, IsAddress(tok.Address.Hex()), tok.Symbol)
	}
	assert.Equal(t, "0x09Bc4E0D864854c6aFB6eB9A9cdF58aC190D0dF9", USDC.Address.Hex())
}

func TestShortAddr(t *testing.T) {
	assert.Equal(t, "0x1234...abcd", ShortAddr("0x123400000000000000000000000000000000abcd"))
	assert.Equal(t, "unknown", ShortAddr(""))
	assert.Equal(t, "0x12", ShortAddr("0x12"))
}

func TestLookupToken(t *testing.T) {
	tok, ok := LookupToken(" usdc ")
	require.True(t, ok)
	assert.Equal(t, int32(6), tok.Decimals)

	_, ok = LookupIn(LinkTokens, "MNT")
	assert.False(t, ok)

	tok, ok = TokenByAddress("0x201eba5cc46d216ce6dc03f6a759e8e766e956ae")
	require.True(t, ok)
	assert.Equal(t, "USDT", tok.Symbol)
	assert.Equal(t, "", MNT.ContractAddress())
}

func TestPackTransfer(t *testing.T) {
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	data, err := PackTransfer(to, big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, data[:4])
	assert.Len(t, data, 4+32+32)
}

func TestTokenBalance(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	backend := &fakeBackend{
		native:   new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18)),
		balances: map[common.Address]*big.Int{USDC.Address: big.NewInt(500123456), DAI.Address: big.NewInt(7)},
		decimals: map[common.Address]uint8{USDC.Address: 6},
	}
	c := NewClient(backend, discardLogger())
	ctx := context.Background()

	usdc, err := c.TokenBalance(ctx, USDC, owner)
	require.NoError(t, err)
	assert.Equal(t, "500.123456", usdc.String())

	// DAI has no decimals() in the fake, the table value is used
	dai, err := c.TokenBalance(ctx, DAI, owner)
	require.NoError(t, err)
	assert.True(t, dai.Equal(decimal.New(7, -18)))

	mnt, err := c.TokenBalance(ctx, MNT, owner)
	require.NoError(t, err)
	assert.Equal(t, "3", mnt.String())

	backend.failBalance = map[common.Address]bool{USDT.Address: true}
	_, err = c.TokenBalance(ctx, USDT, owner)
	assert.Error(t, err)
}

func TestExplorer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "account", q.Get("module"))
		assert.Equal(t, "desc", q.Get("sort"))

		switch q.Get("action") {
		case "txlist":
			w.Write([]byte(`{"status":"1","message":"OK","result":[{"hash":"0xaa","from":"0x1","to":"0x2","value":"1500000000000000000","timeStamp":"1700000000","isError":"0"}]}`))
		case "tokentx":
			w.Write([]byte(`{"status":"0","message":"No transactions found","result":"No transactions found"}`))
		}
	}))
	defer srv.Close()

	e := NewExplorer(srv.URL, "https://explorer.mantle.xyz/")
	e.minDelay = 0
	ctx := context.Background()

	txs, err := e.Transactions(ctx, "0x2", 5)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "1.5", txs[0].Amount().String())
	assert.Equal(t, int64(1700000000), txs[0].Time().Unix())

	transfers, err := e.TokenTransfers(ctx, "0x2", 5)
	require.NoError(t, err)
	assert.Empty(t, transfers)

	assert.Equal(t, "https://explorer.mantle.xyz/tx/0xaa", e.TxURL("0xaa"))
}

func TestExplorerHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := NewExplorer(srv.URL, "")
	e.minDelay = 0
	_, err := e.Transactions(context.Background(), "0x2", 5)
	assert.Error(t, err)
}

func TestTokenTransferAmount(t *testing.T) {
	tr := TokenTransfer{Value: "2500000", TokenDecimal: "6", Hash: "0xbb", LogIndex: "3"}
	assert.Equal(t, "2.5", tr.Amount().String())
	assert.Equal(t, "0xbb:3", tr.EventID())

	tr = TokenTransfer{Value: "2500000", ContractAddress: USDT.Address.Hex()}
	assert.Equal(t, "2.5", tr.Amount().String())
}
