package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token describes an asset supported on Mantle
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int32
	// Native is set for the gas token, which has no contract
	Native bool
}

var (
	MNT  = Token{Symbol: "MNT", Decimals: 18, Native: true}
	ETH  = Token{Symbol: "ETH", Address: common.HexToAddress("0xdEAddEaDdeadDEadDEADDEAddEADDEAddead1111"), Decimals: 18}
	USDC = Token{Symbol: "USDC", Address: common.HexToAddress("0x09Bc4E0D864854c6aFB6eB9A9cdF58aC190D0dF9"), Decimals: 6}
	USDT = Token{Symbol: "USDT", Address: common.HexToAddress("0x201EBa5CC46D216Ce6DC03F6a759e8E766e956Ae"), Decimals: 6}
	DAI  = Token{Symbol: "DAI", Address: common.HexToAddress("0xdA10009cBd5D07dd0CeCc66161FC93D7c9000da1"), Decimals: 18}
)

// BalanceTokens is the fixed set reported by balance queries, in display order
var BalanceTokens = []Token{MNT, ETH, USDC, USDT, DAI}

// TransferTokens can be sent with the transfer pipeline
var TransferTokens = []Token{MNT, USDC, USDT, DAI}

// LinkTokens can be requested through payment links
var LinkTokens = []Token{USDC, USDT, DAI}

// LookupToken finds a token by symbol, case-insensitively
func LookupToken(symbol string) (Token, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, t := range BalanceTokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return Token{}, false
}

// LookupIn finds a token by symbol within a set
func LookupIn(set []Token, symbol string) (Token, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, t := range set {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return Token{}, false
}

// TokenByAddress finds a token by contract address
func TokenByAddress(addr string) (Token, bool) {
	for _, t := range BalanceTokens {
		if !t.Native && strings.EqualFold(t.Address.Hex(), addr) {
			return t, true
		}
	}
	return Token{}, false
}

// ContractAddress returns the contract address as a string, empty for the gas token
func (t Token) ContractAddress() string {
	if t.Native {
		return ""
	}
	return t.Address.Hex()
}

// Symbols returns the symbols of a token set
func Symbols(set []Token) []string {
	out := make([]string, len(set))
	for i, t := range set {
		out[i] = t.Symbol
	}
	return out
}
