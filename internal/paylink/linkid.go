package paylink

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	linkIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	LinkIDLength   = 8
)

// NewLinkID returns a random 8-character alphanumeric link ID
func NewLinkID() (string, error) {
	size := big.NewInt(int64(len(linkIDAlphabet)))

	var sb strings.Builder
	sb.Grow(LinkIDLength)
	for i := 0; i < LinkIDLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		sb.WriteByte(linkIDAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// IsLinkID reports whether s has the shape of a link ID
func IsLinkID(s string) bool {
	if len(s) != LinkIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(linkIDAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// LinkIDFromURL extracts the link ID from a payment URL
func LinkIDFromURL(linkURL string) string {
	linkURL = strings.TrimSuffix(linkURL, "/")
	i := strings.LastIndex(linkURL, "/")
	if i < 0 {
		return ""
	}
	if id := linkURL[i+1:]; IsLinkID(id) {
		return id
	}
	return ""
}
