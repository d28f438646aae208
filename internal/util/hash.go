package util

import (
	"crypto/md5"
	"encoding/hex"
)

// ContentHash returns the md5 hex digest of a payload, used to detect
// unchanged vendor responses without comparing bodies.
func ContentHash(payload []byte) string {
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}
