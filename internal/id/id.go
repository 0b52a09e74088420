package id

import (
	"crypto/rand"
	"encoding/hex"
)

func New() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "request-fallback-id"
	}
	return hex.EncodeToString(b[:])
}
