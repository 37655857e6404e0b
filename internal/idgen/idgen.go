// Package idgen mints the two identifier shapes the broker hands out at
// runtime: room codes shown to humans and short hex ids used internally for
// chat messages and guest usernames. Both are drawn from crypto/rand.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// roomIDAlphabet has 62 symbols. Rejecting bytes >= 248 (4*62) keeps the
// modulo reduction below unbiased.
const rejectionCeiling = 248

// RoomID returns an 8-character uniformly distributed alphanumeric string,
// drawn via rejection sampling so every accepted byte maps onto the
// alphabet without modulo bias.
func RoomID() string {
	return randomAlphanumeric(8)
}

func randomAlphanumeric(length int) string {
	out := make([]byte, length)
	buf := make([]byte, 1)
	for i := 0; i < length; {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("idgen: crypto/rand unavailable: %v", err))
		}
		b := buf[0]
		if b >= rejectionCeiling {
			continue
		}
		out[i] = roomIDAlphabet[int(b)%len(roomIDAlphabet)]
		i++
	}
	return string(out)
}

// ShortID returns a hex-encoded string drawn from numBytes of CSPRNG
// output, i.e. a string of length 2*numBytes.
func ShortID(numBytes int) string {
	buf := make([]byte, numBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("idgen: crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}

// MessageID returns a 12-hex-character id for a chat message (6 bytes of
// entropy).
func MessageID() string {
	return ShortID(6)
}

// GuestSuffix returns the 6-hex-character suffix appended to synthesized
// guest usernames (3 bytes of entropy), e.g. "Guest_<suffix>".
func GuestSuffix() string {
	return ShortID(3)
}
