package chain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// ExplorerTx is a native transaction as returned by action=txlist
type ExplorerTx struct {
	BlockNumber string `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	GasUsed     string `json:"gasUsed"`
	IsError     string `json:"isError"`
}

// Amount returns the transferred MNT amount
func (t ExplorerTx) Amount() decimal.Decimal {
	return ParseBaseUnits(t.Value, MNT.Decimals)
}

// Time returns the block time
func (t ExplorerTx) Time() time.Time {
	return parseUnix(t.TimeStamp)
}

// Failed reports whether the transaction reverted
func (t ExplorerTx) Failed() bool {
	return t.IsError == "1"
}

// TokenTransfer is an ERC-20 transfer as returned by action=tokentx
type TokenTransfer struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
	LogIndex        string `json:"logIndex"`
}

// Amount returns the transferred amount scaled by the reported decimals
func (t TokenTransfer) Amount() decimal.Decimal {
	decimals, err := strconv.Atoi(t.TokenDecimal)
	if err != nil {
		if tok, ok := TokenByAddress(t.ContractAddress); ok {
			return ParseBaseUnits(t.Value, tok.Decimals)
		}
		decimals = 18
	}
	return ParseBaseUnits(t.Value, int32(decimals))
}

// Time returns the block time
func (t TokenTransfer) Time() time.Time {
	return parseUnix(t.TimeStamp)
}

// EventID identifies a transfer uniquely, a transaction may carry several transfers
func (t TokenTransfer) EventID() string {
	return t.Hash + ":" + t.LogIndex
}

func parseUnix(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
