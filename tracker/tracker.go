// Package tracker generates the random ballot trackers a voter uses to find
// their ballot on the public bulletin board.
package tracker

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
)

// DefaultSize is the default tracker length in bytes.
const DefaultSize = 16

var trackerRegexp = regexp.MustCompile(`^[0-9a-f]+$`)

// Generate returns n random bytes from r as lowercase hex. A nil reader
// means crypto/rand.Reader. Trackers are independent of voting tokens, the
// caller draws them separately.
func Generate(r io.Reader, n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid tracker size %d", n)
	}
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read tracker bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// New returns a tracker of DefaultSize bytes read from crypto/rand.
func New() (string, error) {
	return Generate(rand.Reader, DefaultSize)
}

// Valid reports whether s looks like a tracker of DefaultSize bytes.
func Valid(s string) bool {
	return len(s) == 2*DefaultSize && trackerRegexp.MatchString(s)
}
