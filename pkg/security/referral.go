package security

import (
	"crypto/rand"
	"fmt"
)

const (
	referralAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	ReferralCodeLen  = 8
)

// GenerateReferralCode returns a random 8-character alphanumeric code.
// Bytes outside the largest multiple of the alphabet size are rejected so
// every character is equally likely. Uniqueness is the caller's
// responsibility; regenerate on collision.
func GenerateReferralCode() (string, error) {
	const limit = 256 - 256%len(referralAlphabet)

	code := make([]byte, 0, ReferralCodeLen)
	buf := make([]byte, ReferralCodeLen)
	for len(code) < ReferralCodeLen {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate referral code: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, referralAlphabet[int(b)%len(referralAlphabet)])
			if len(code) == ReferralCodeLen {
				break
			}
		}
	}
	return string(code), nil
}
