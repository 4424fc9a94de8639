// Package crypto holds the helpers shared by the cryptographic packages:
// parsing of key material received from the network and key fingerprints.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/vocdoni/blindvote/util"
)

// FingerprintLength is the number of hex characters kept from the sha256
// digest when computing a key fingerprint.
const FingerprintLength = 12

// ErrInvalidKeyFormat is returned when public key material is missing or
// cannot be parsed. It is always returned before any cryptographic
// operation is attempted with the key.
var ErrInvalidKeyFormat = errors.New("invalid key format")

// ParseHexInt parses a positive big integer encoded as hex, with or without
// the 0x prefix.
func ParseHexInt(s string) (*big.Int, error) {
	s = util.TrimHex(strings.TrimSpace(s))
	if s == "" {
		return nil, fmt.Errorf("%w: empty hex value", ErrInvalidKeyFormat)
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not hex", ErrInvalidKeyFormat, s)
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("%w: value must be positive", ErrInvalidKeyFormat)
	}
	return v, nil
}

// ParseDecInt parses a positive big integer encoded in base 10.
func ParseDecInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty decimal value", ErrInvalidKeyFormat)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidKeyFormat, s)
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("%w: value must be positive", ErrInvalidKeyFormat)
	}
	return v, nil
}

// BigToHex returns the lowercase hex encoding of v without prefix.
func BigToHex(v *big.Int) string {
	return v.Text(16)
}

// KeyFingerprint returns the short identifier of a key: the first
// FingerprintLength hex chars of sha256("label|p1|p2|..."), where the parts
// are written in base 10.
func KeyFingerprint(label string, parts ...*big.Int) string {
	fields := make([]string, 0, len(parts)+1)
	fields = append(fields, label)
	for _, p := range parts {
		fields = append(fields, p.String())
	}
	h := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(h[:])[:FingerprintLength]
}

// RSAKeyID returns the key id the election authority publishes for the RSA
// key (n, e).
func RSAKeyID(n, e *big.Int) string {
	return "rsa-" + KeyFingerprint("rsa", n, e)
}

// PaillierKeyID returns the key id the election authority publishes for the
// Paillier modulus n.
func PaillierKeyID(n *big.Int) string {
	return "paillier-" + KeyFingerprint("paillier", n)
}
