package services

import (
	"crypto/sha256"
	"fmt"
)

// ComputeHash fingerprints a request payload for idempotency comparison.
func ComputeHash(v interface{}) string {
	data := fmt.Sprintf("%+v", v)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

type confirmFingerprint struct {
	TransactionID string
	Amount        int64
}

type cancelFingerprint struct {
	TransactionID string
	Amount        int64
}
