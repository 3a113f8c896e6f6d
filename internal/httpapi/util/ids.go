package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewID returns a prefixed opaque identifier, e.g. "tpl_9f2c...".
func NewID(prefix string) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}
