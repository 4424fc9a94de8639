package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestParseHexInt(t *testing.T) {
	c := qt.New(t)
	v, err := ParseHexInt("0xca1")
	c.Assert(err, qt.IsNil)
	c.Assert(v.Int64(), qt.Equals, int64(3233))

	v, err = ParseHexInt(" CA1 ")
	c.Assert(err, qt.IsNil)
	c.Assert(v.Int64(), qt.Equals, int64(3233))

	for _, bad := range []string{"", "0x", "zz", "0", "-a1"} {
		_, err := ParseHexInt(bad)
		c.Assert(err, qt.ErrorIs, ErrInvalidKeyFormat, qt.Commentf("input %q", bad))
	}
}

func TestParseDecInt(t *testing.T) {
	c := qt.New(t)
	v, err := ParseDecInt("65537")
	c.Assert(err, qt.IsNil)
	c.Assert(v.Int64(), qt.Equals, int64(65537))

	for _, bad := range []string{"", "0x11", "abc", "0", "-3"} {
		_, err := ParseDecInt(bad)
		c.Assert(err, qt.ErrorIs, ErrInvalidKeyFormat, qt.Commentf("input %q", bad))
	}
}

func TestKeyFingerprint(t *testing.T) {
	c := qt.New(t)
	n, e := big.NewInt(3233), big.NewInt(17)
	h := sha256.Sum256([]byte("rsa|3233|17"))
	want := hex.EncodeToString(h[:])[:FingerprintLength]

	c.Assert(KeyFingerprint("rsa", n, e), qt.Equals, want)
	c.Assert(RSAKeyID(n, e), qt.Equals, "rsa-"+want)
	c.Assert(KeyFingerprint("rsa", e, n), qt.Not(qt.Equals), want)

	h = sha256.Sum256([]byte("paillier|187"))
	c.Assert(PaillierKeyID(big.NewInt(187)), qt.Equals, "paillier-"+hex.EncodeToString(h[:])[:FingerprintLength])
}
