// Package intent classifies free-text chat messages.
package intent

import (
	"regexp"
	"strings"
)

// Type is the purpose of a message
type Type string

const (
	Stats       Type = "payment_link_stats"
	Send        Type = "send_tokens"
	PaymentLink Type = "payment_link"
	Balance     Type = "balance_check"
	Help        Type = "help"
	Greeting    Type = "greeting"
	Unknown     Type = "unknown"
)

const (
	patternWeight = 0.3
	contextBoost  = 0.2
)

// Entities are values pulled out of the message
type Entities struct {
	Amount  string
	Token   string
	Address string
	LinkID  string
}

// Intent is the classification of one message
type Intent struct {
	Type       Type
	Confidence float64
	Entities   Entities
	// Boosted is set when the previous assistant message added to the score
	Boosted bool
	Scores  map[Type]float64
}

type category struct {
	typ      Type
	patterns []*regexp.Regexp
	keywords []string
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// categories are listed in priority order; on equal scores the earlier one wins
var categories = []category{
	{
		typ: Stats,
		patterns: compile(
			`\b(payment.*link.*(stats?|statistics)|link.*(stats?|statistics)|track.*payment.*links?|payment.*link.*transactions?)\b`,
			`\b(how.*many.*transactions?|total.*transactions?.*link|payment.*link.*analytics)\b`,
			`\b(link.*performance|payments?.*received.*link)\b`,
			`\b(show.*link.*(stats?|statistics)|show.*all.*payment.*links?)\b`,
			`\b(my.*payment.*link.*(stats?|statistics)|all.*my.*payment.*links?)\b`,
			`\b(payment.*link.*overview|link.*overview|(stats?|statistics).*payment.*link)\b`,
			`\b(view.*payment.*link.*(stats?|statistics)|display.*payment.*links?)\b`,
			`\btrack.*links?\b`,
			`\b(show|view).*payment.*links?\b`,
			`\b(link|payment)\b.*\b(info|details)\b`,
		),
		keywords: []string{"statistic", "stats", "views", "conversion", "tracking"},
	},
	{
		typ: Send,
		patterns: compile(
			`\b(send|transfer|pay)\b`,
			`\b\d+(\.\d+)?\s*(usdc|usdt|dai|mnt)\b`,
			`\bto\s+0x[a-f0-9]{40}\b`,
		),
		keywords: []string{"send", "transfer", "recipient", "address"},
	},
	{
		typ: PaymentLink,
		patterns: compile(
			`\b(create|make|generate|new)\b.*\b(payment|link)\b`,
			`\bpayment\s*link\b`,
			`\b(receive money|get paid|collect payments?|invoice)\b`,
		),
		keywords: []string{"payment link", "step", "token", "amount"},
	},
	{
		typ: Balance,
		patterns: compile(
			`\b(balance|wallet|how much|check)\b`,
			`\bshow.*(balance|wallet)\b`,
			`\b(my.*balance|account|funds|money)\b`,
			`\b(usdc|usdt|dai|mnt|eth)\b.*\bbalance\b`,
			`\bwhat.*have\b`,
		),
		keywords: []string{"balance", "wallet"},
	},
	{
		typ: Help,
		patterns: compile(
			`\b(help|commands?|what can you do)\b`,
			`\b(how (do|does|to)|guide|instructions?|support)\b`,
		),
		keywords: []string{"help", "commands"},
	},
	{
		typ: Greeting,
		patterns: compile(
			`^\s*(hi|hello|hey|gm|yo|good (morning|afternoon|evening))\b`,
			`\b(thanks|thank you)\b`,
		),
	},
}

var (
	amountRe  = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\b`)
	tokenRe   = regexp.MustCompile(`(?i)\b(usdc|usdt|dai|mnt|eth)\b`)
	addressRe = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
	wordRe    = regexp.MustCompile(`\b[A-Za-z0-9]{8}\b`)
)

// KnownLink reports whether a payment link with the given ID exists
type KnownLink func(linkID string) bool

// Classify returns the best intent for message.
// lastAssistant is the previous assistant message, used to favour continuing the same topic.
func Classify(message, lastAssistant string) Intent {
	return ClassifyWith(message, lastAssistant, nil)
}

// ClassifyWith is Classify with link IDs resolved against known first
func ClassifyWith(message, lastAssistant string, known KnownLink) Intent {
	lastAssistant = strings.ToLower(lastAssistant)

	best := Intent{Type: Unknown, Scores: make(map[Type]float64)}
	for _, c := range categories {
		score := 0.0
		for _, p := range c.patterns {
			if p.MatchString(message) {
				score += patternWeight
			}
		}
		if score == 0 {
			continue
		}

		boosted := false
		for _, kw := range c.keywords {
			if lastAssistant != "" && strings.Contains(lastAssistant, kw) {
				score += contextBoost
				boosted = true
				break
			}
		}

		best.Scores[c.typ] = score
		if score > best.Confidence {
			best.Type = c.typ
			best.Confidence = score
			best.Boosted = boosted
		}
	}

	linkID := FindLinkIDWith(message, known)
	if best.Type == Balance && linkID != "" && best.Scores[Stats] > 0 {
		best.Type = Stats
		best.Confidence = best.Scores[Stats]
	}

	switch best.Type {
	case Stats:
		best.Entities.LinkID = linkID
	case Send:
		best.Entities = sendEntities(message)
	case Balance:
		best.Entities.Token = strings.ToUpper(tokenRe.FindString(message))
	case PaymentLink:
		best.Entities.Amount = firstGroup(amountRe, message)
		best.Entities.Token = strings.ToUpper(tokenRe.FindString(message))
	}
	return best
}

func sendEntities(message string) Entities {
	e := Entities{
		Token:   strings.ToUpper(tokenRe.FindString(message)),
		Address: addressRe.FindString(message),
	}
	// amounts are searched with the address removed so its digits are not picked up
	e.Amount = firstGroup(amountRe, addressRe.ReplaceAllString(message, " "))
	return e
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// FindLinkID returns the first word shaped like a payment link ID.
// It must contain a letter and either a digit or an uppercase letter after the first character,
// so ordinary 8-letter words are skipped.
func FindLinkID(message string) string {
	return FindLinkIDWith(message, nil)
}

// FindLinkIDWith returns the first 8-character word that known accepts,
// falling back to the shape check of FindLinkID. known may be nil.
func FindLinkIDWith(message string, known KnownLink) string {
	words := wordRe.FindAllString(message, -1)
	if known != nil {
		for _, w := range words {
			if known(w) {
				return w
			}
		}
	}
	for _, w := range words {
		if looksLikeLinkID(w) {
			return w
		}
	}
	return ""
}

func looksLikeLinkID(w string) bool {
	var letter, digit, upper bool
	for i, r := range w {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'A' && r <= 'Z':
			letter = true
			if i > 0 {
				upper = true
			}
		default:
			letter = true
		}
	}
	return letter && (digit || upper)
}
