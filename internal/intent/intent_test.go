package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		message string
		want    Type
	}{
		{"What's my balance?", Balance},
		{"show my balance", Balance},
		{"how much USDC do I have", Balance},
		{"send 10 USDC to 0x0000000000000000000000000000000000000000", Send},
		{"transfer 5 dai", Send},
		{"create payment link", PaymentLink},
		{"I want to get paid", PaymentLink},
		{"create payment link for Coffee 5 USDC", PaymentLink},
		{"Show me all my payment link statistics", Stats},
		{"show payment link stats", Stats},
		{"payment link stats", Stats},
		{"track payment links", Stats},
		{"how many transactions did I get", Stats},
		{"help", Help},
		{"what can you do?", Help},
		{"hello there", Greeting},
		{"gm", Greeting},
		{"purple elephants", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got := Classify(tt.message, "")
			assert.Equal(t, tt.want, got.Type)
		})
	}
}

func TestUnknownHasZeroConfidence(t *testing.T) {
	got := Classify("lorem ipsum", "")
	assert.Equal(t, Unknown, got.Type)
	assert.Zero(t, got.Confidence)
	assert.Empty(t, got.Scores)
}

func TestPatternsStack(t *testing.T) {
	got := Classify("send 10 USDC to 0x0000000000000000000000000000000000000000", "")
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
}

func TestContextBoost(t *testing.T) {
	plain := Classify("receive money", "")
	assert.Equal(t, PaymentLink, plain.Type)

	boosted := Classify("receive money", "Your wallet balance is 5 USDC")
	assert.Equal(t, Balance, boosted.Type)
	assert.True(t, boosted.Boosted)
	assert.InDelta(t, 0.5, boosted.Confidence, 1e-9)
}

func TestNoBoostWithoutMatch(t *testing.T) {
	got := Classify("purple elephants", "Your balance is 5 USDC")
	assert.Equal(t, Unknown, got.Type)
}

func TestLinkIDPrefersStats(t *testing.T) {
	got := Classify("show my payment link balance", "")
	assert.Equal(t, Balance, got.Type)

	got = Classify("show my payment link balance for AbCd1234", "")
	assert.Equal(t, Stats, got.Type)
	assert.Equal(t, "AbCd1234", got.Entities.LinkID)
}

func TestSendEntities(t *testing.T) {
	got := Classify("send 10.5 usdt to 0x52908400098527886E0F7030069857D2E4169EE7", "")
	assert.Equal(t, Send, got.Type)
	assert.Equal(t, "10.5", got.Entities.Amount)
	assert.Equal(t, "USDT", got.Entities.Token)
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", got.Entities.Address)
}

func TestBalanceToken(t *testing.T) {
	got := Classify("what is my DAI balance", "")
	assert.Equal(t, Balance, got.Type)
	assert.Equal(t, "DAI", got.Entities.Token)
}

func TestFindLinkID(t *testing.T) {
	assert.Equal(t, "xY7k2mQp", FindLinkID("stats for xY7k2mQp please"))
	assert.Equal(t, "", FindLinkID("show me workshop password"))
	assert.Equal(t, "", FindLinkID("Workshop"))
	assert.Equal(t, "", FindLinkID("12345678"))
	assert.Equal(t, "", FindLinkID("0x0000000000000000000000000000000000000000"))
}

func TestFindLinkIDWithKnownLinks(t *testing.T) {
	known := func(id string) bool { return id == "abcdefgh" || id == "Xyzabcde" }

	assert.Equal(t, "abcdefgh", FindLinkIDWith("payment link stats abcdefgh", known))
	assert.Equal(t, "Xyzabcde", FindLinkIDWith("stats for Xyzabcde please", known))
	assert.Equal(t, "", FindLinkID("payment link stats abcdefgh"), "shape check alone misses lowercase IDs")

	// unknown words still fall back to the shape check
	assert.Equal(t, "xY7k2mQp", FindLinkIDWith("stats for xY7k2mQp please", known))
	assert.Equal(t, "", FindLinkIDWith("show me workshop password", known))

	got := ClassifyWith("show my payment link balance for abcdefgh", "", known)
	assert.Equal(t, Stats, got.Type)
	assert.Equal(t, "abcdefgh", got.Entities.LinkID)
}
