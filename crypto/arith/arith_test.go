package arith

import (
	"bytes"
	"crypto/rand"
	"errors"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestModPowIdentities(t *testing.T) {
	c := qt.New(t)
	n := big.NewInt(3233)
	for _, a := range []int64{0, 1, 2, 65, 3232, 3233, 5000, -7} {
		base := big.NewInt(a)

		r, err := ModPow(base, big.NewInt(0), n)
		c.Assert(err, qt.IsNil)
		c.Assert(r.Int64(), qt.Equals, int64(1))

		r, err = ModPow(base, big.NewInt(1), n)
		c.Assert(err, qt.IsNil)
		c.Assert(r.Cmp(Normalize(base, n)), qt.Equals, 0)
	}

	// mod 1 collapses everything to zero
	r, err := ModPow(big.NewInt(5), big.NewInt(0), big.NewInt(1))
	c.Assert(err, qt.IsNil)
	c.Assert(r.Sign(), qt.Equals, 0)
}

func TestModPowErrors(t *testing.T) {
	c := qt.New(t)
	_, err := ModPow(big.NewInt(2), big.NewInt(3), big.NewInt(0))
	c.Assert(err, qt.ErrorIs, ErrInvalidModulus)
	_, err = ModPow(big.NewInt(2), big.NewInt(3), big.NewInt(-5))
	c.Assert(err, qt.ErrorIs, ErrInvalidModulus)
	_, err = ModPow(big.NewInt(2), big.NewInt(-1), big.NewInt(5))
	c.Assert(err, qt.ErrorIs, ErrNegativeExponent)
	_, err = ModPowSecret(big.NewInt(2), big.NewInt(3), nil)
	c.Assert(err, qt.ErrorIs, ErrInvalidModulus)
}

func TestModPowNegativeBase(t *testing.T) {
	c := qt.New(t)
	// (-2)^3 mod 7 = -8 mod 7 = 6
	r, err := ModPow(big.NewInt(-2), big.NewInt(3), big.NewInt(7))
	c.Assert(err, qt.IsNil)
	c.Assert(r.Int64(), qt.Equals, int64(6))
}

func TestModPowSecretMatchesModPow(t *testing.T) {
	c := qt.New(t)
	p, err := rand.Prime(rand.Reader, 1024)
	c.Assert(err, qt.IsNil)
	q, err := rand.Prime(rand.Reader, 1024)
	c.Assert(err, qt.IsNil)
	n := new(big.Int).Mul(p, q)
	n2 := new(big.Int).Mul(n, n)

	for i := 0; i < 4; i++ {
		base, err := RandomCoprimeBelow(rand.Reader, n)
		c.Assert(err, qt.IsNil)
		for _, mod := range []*big.Int{n, n2} {
			want, err := ModPow(base, n, mod)
			c.Assert(err, qt.IsNil)
			got, err := ModPowSecret(base, n, mod)
			c.Assert(err, qt.IsNil)
			c.Assert(got.Cmp(want), qt.Equals, 0)
		}
	}

	// small and even moduli
	got, err := ModPowSecret(big.NewInt(4), big.NewInt(13), big.NewInt(497))
	c.Assert(err, qt.IsNil)
	c.Assert(got.Int64(), qt.Equals, int64(445))
	got, err = ModPowSecret(big.NewInt(3), big.NewInt(5), big.NewInt(16))
	c.Assert(err, qt.IsNil)
	c.Assert(got.Int64(), qt.Equals, int64(243%16))
	got, err = ModPowSecret(big.NewInt(3), big.NewInt(0), big.NewInt(187))
	c.Assert(err, qt.IsNil)
	c.Assert(got.Int64(), qt.Equals, int64(1))
}

func TestGCD(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		a, b, g int64
	}{
		{12, 18, 6},
		{17, 5, 1},
		{0, 9, 9},
		{9, 0, 9},
		{0, 0, 0},
		{-12, 18, 6},
		{12, -18, 6},
		{3233, 3120, 1},
	}
	for _, tt := range tests {
		c.Assert(GCD(big.NewInt(tt.a), big.NewInt(tt.b)).Int64(), qt.Equals, tt.g,
			qt.Commentf("gcd(%d, %d)", tt.a, tt.b))
	}
}

func TestExtendedGCD(t *testing.T) {
	c := qt.New(t)
	pairs := [][2]int64{{240, 46}, {17, 3120}, {3120, 17}, {-35, 15}, {35, -15}, {0, 7}, {7, 0}, {1, 1}}
	for _, p := range pairs {
		a, b := big.NewInt(p[0]), big.NewInt(p[1])
		g, x, y := ExtendedGCD(a, b)
		c.Assert(g.Cmp(GCD(a, b)), qt.Equals, 0)
		// a*x + b*y == g
		lhs := new(big.Int).Add(new(big.Int).Mul(a, x), new(big.Int).Mul(b, y))
		c.Assert(lhs.Cmp(g), qt.Equals, 0, qt.Commentf("pair %v", p))
	}
}

func TestModInv(t *testing.T) {
	c := qt.New(t)
	m := big.NewInt(3120)
	inv, err := ModInv(big.NewInt(17), m)
	c.Assert(err, qt.IsNil)
	c.Assert(inv.Int64(), qt.Equals, int64(2753))

	n := big.NewInt(3233)
	for a := int64(1); a < 200; a++ {
		ba := big.NewInt(a)
		inv, err := ModInv(ba, n)
		if GCD(ba, n).Int64() != 1 {
			c.Assert(err, qt.ErrorIs, ErrNoInverse)
			continue
		}
		c.Assert(err, qt.IsNil)
		c.Assert(inv.Sign() >= 0 && inv.Cmp(n) < 0, qt.IsTrue)
		prod := new(big.Int).Mul(inv, ba)
		c.Assert(prod.Mod(prod, n).Int64(), qt.Equals, int64(1))
	}

	// 61 divides 3233
	_, err = ModInv(big.NewInt(61), n)
	c.Assert(err, qt.ErrorIs, ErrNoInverse)
	_, err = ModInv(big.NewInt(0), n)
	c.Assert(err, qt.ErrorIs, ErrNoInverse)

	// negative input is reduced first
	inv, err = ModInv(big.NewInt(-17), m)
	c.Assert(err, qt.IsNil)
	c.Assert(inv.Int64(), qt.Equals, int64(3120-2753))
}

func TestRandomCoprimeBelow(t *testing.T) {
	c := qt.New(t)
	p, err := rand.Prime(rand.Reader, 128)
	c.Assert(err, qt.IsNil)
	q, err := rand.Prime(rand.Reader, 128)
	c.Assert(err, qt.IsNil)
	n := new(big.Int).Mul(p, q)

	const draws = 5000
	size := (n.BitLen() + 7) / 8
	seen := make(map[string]struct{}, draws)
	var histogram [256]int
	buf := make([]byte, size)
	full, short := 0, 0
	for i := 0; i < draws; i++ {
		r, err := RandomCoprimeBelow(rand.Reader, n)
		c.Assert(err, qt.IsNil)
		c.Assert(IsUnit(r, n), qt.IsTrue)
		_, dup := seen[r.String()]
		c.Assert(dup, qt.IsFalse)
		seen[r.String()] = struct{}{}
		if r.BitLen() == n.BitLen() {
			full++
		} else {
			short++
		}
		// the two top bytes are bounded by n, the rest should be uniform
		r.FillBytes(buf)
		for _, b := range buf[2:] {
			histogram[b]++
		}
	}
	// both the top bit-length and shorter values show up
	c.Assert(full > 0, qt.IsTrue)
	c.Assert(short > 0, qt.IsTrue)

	// the share of full-length values matches (n - 2^(k-1)) / n
	half := new(big.Int).Lsh(big.NewInt(1), uint(n.BitLen()-1))
	want, _ := new(big.Rat).SetFrac(new(big.Int).Sub(n, half), n).Float64()
	got := float64(full) / draws
	c.Assert(got > want-0.05 && got < want+0.05, qt.IsTrue,
		qt.Commentf("full-length share %.3f, expected %.3f", got, want))

	// no byte value is drawn more than twice or less than half as often
	// as expected
	expected := float64(draws*(size-2)) / 256
	for v, count := range histogram {
		c.Assert(float64(count) < 2*expected && float64(count) > expected/2, qt.IsTrue,
			qt.Commentf("byte %#x seen %d times, expected %.0f", v, count, expected))
	}
}

func TestRandomCoprimeBelowSmallModulus(t *testing.T) {
	c := qt.New(t)
	n := big.NewInt(187)
	hits := make(map[int64]int)
	for i := 0; i < 2000; i++ {
		r, err := RandomCoprimeBelow(rand.Reader, n)
		c.Assert(err, qt.IsNil)
		c.Assert(IsUnit(r, n), qt.IsTrue)
		hits[r.Int64()]++
	}
	// multiples of 11 and 17 are never drawn
	for v := range hits {
		c.Assert(v%11 != 0 && v%17 != 0, qt.IsTrue)
	}

	r, err := RandomCoprimeBelow(rand.Reader, big.NewInt(2))
	c.Assert(err, qt.IsNil)
	c.Assert(r.Int64(), qt.Equals, int64(1))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy source down") }

func TestRandomCoprimeBelowErrors(t *testing.T) {
	c := qt.New(t)
	_, err := RandomCoprimeBelow(rand.Reader, big.NewInt(1))
	c.Assert(err, qt.ErrorIs, ErrInvalidModulus)
	_, err = RandomCoprimeBelow(rand.Reader, nil)
	c.Assert(err, qt.ErrorIs, ErrInvalidModulus)

	_, err = RandomCoprimeBelow(failingReader{}, big.NewInt(3233))
	c.Assert(err, qt.ErrorMatches, ".*entropy source down")

	// a source stuck at zero never yields a unit
	zeros := bytes.NewReader(make([]byte, 1<<20))
	_, err = RandomCoprimeBelow(zeros, big.NewInt(3233))
	c.Assert(err, qt.ErrorIs, ErrSamplingFailed)
}
