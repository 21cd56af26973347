package session

import (
	"crypto/rand"
	"math/big"
)

// codeAlphabet omits easily confused characters (0/O, 1/I/L) so codes survive
// manual entry as well as QR scanning.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewCode draws n random characters from the code alphabet. With the default
// length of 6 the space is 31^6 (~887M), so a collision against the handful of
// concurrently active sessions is vanishingly rare.
func NewCode(n int) (string, error) {
	if n <= 0 {
		n = 6
	}
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[idx.Int64()]
	}
	return string(b), nil
}
