// Package arith implements the arbitrary precision modular arithmetic used
// by the blind signature and Paillier packages: exponentiation, gcd, modular
// inverse and sampling of units modulo n.
package arith

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/cronokirby/saferith"
)

// SamplingMargin is the number of extra random bytes drawn on top of the
// byte length of n when sampling below n. The extra 64 bits keep the modulo
// bias below 2^-64.
const SamplingMargin = 8

// MaxSamplingDraws bounds the rejection loop of RandomCoprimeBelow. A healthy
// random source needs a handful of draws at most, so hitting the bound means
// the source is broken.
const MaxSamplingDraws = 1024

var (
	// ErrNoInverse is returned when the modular inverse does not exist,
	// i.e. gcd(a, m) != 1.
	ErrNoInverse = errors.New("modular inverse does not exist")
	// ErrInvalidModulus is returned for moduli that are nil, zero or negative.
	ErrInvalidModulus = errors.New("modulus must be positive")
	// ErrNegativeExponent is returned by ModPow for negative exponents.
	ErrNegativeExponent = errors.New("exponent must not be negative")
	// ErrSamplingFailed is returned when no valid sample could be drawn from
	// the random source.
	ErrSamplingFailed = errors.New("could not sample a unit below n")
)

var (
	zero = big.NewInt(0)
	one  = big.NewInt(1)
)

func checkModulus(m *big.Int) error {
	if m == nil || m.Sign() <= 0 {
		return ErrInvalidModulus
	}
	return nil
}

// Normalize returns a mod m in the range [0, m), for any sign of a.
func Normalize(a, m *big.Int) *big.Int {
	// big.Int.Mod implements Euclidean modulus, the result is never negative.
	return new(big.Int).Mod(a, m)
}

// ModPow returns base^exp mod m, in the range [0, m). Negative or over-range
// bases are reduced into [0, m) first.
func ModPow(base, exp, m *big.Int) (*big.Int, error) {
	if err := checkModulus(m); err != nil {
		return nil, err
	}
	if exp == nil || exp.Sign() < 0 {
		return nil, ErrNegativeExponent
	}
	if m.Cmp(one) == 0 {
		return new(big.Int), nil
	}
	b := Normalize(base, m)
	return new(big.Int).Exp(b, exp, m), nil
}

// ModPowSecret has the same contract as ModPow but runs in time independent
// of the values of base and exp. It must be used whenever the base or the
// exponent is secret material, such as a blinding factor or an encryption
// nonce. Even moduli fall back to ModPow.
func ModPowSecret(base, exp, m *big.Int) (*big.Int, error) {
	if err := checkModulus(m); err != nil {
		return nil, err
	}
	if exp == nil || exp.Sign() < 0 {
		return nil, ErrNegativeExponent
	}
	if m.Bit(0) == 0 || m.Cmp(one) == 0 {
		return ModPow(base, exp, m)
	}
	if exp.Sign() == 0 {
		return new(big.Int).Set(one), nil
	}
	mod := saferith.ModulusFromNat(new(saferith.Nat).SetBig(m, m.BitLen()))
	x := new(saferith.Nat).SetBig(Normalize(base, m), m.BitLen())
	e := new(saferith.Nat).SetBig(exp, exp.BitLen())
	return new(saferith.Nat).Exp(x, e, mod).Big(), nil
}

// GCD returns the greatest common divisor of |a| and |b|. GCD(0, 0) is 0.
func GCD(a, b *big.Int) *big.Int {
	x := new(big.Int).Abs(a)
	y := new(big.Int).Abs(b)
	for y.Sign() != 0 {
		x.Mod(x, y)
		x, y = y, x
	}
	return x
}

// ExtendedGCD returns (g, x, y) such that a*x + b*y = g, with g = gcd(a, b)
// never negative.
func ExtendedGCD(a, b *big.Int) (g, x, y *big.Int) {
	oldR, r := new(big.Int).Set(a), new(big.Int).Set(b)
	oldS, s := big.NewInt(1), big.NewInt(0)
	oldT, t := big.NewInt(0), big.NewInt(1)
	q, tmp := new(big.Int), new(big.Int)
	for r.Sign() != 0 {
		q.Quo(oldR, r)
		// (oldR, r) = (r, oldR - q*r), and the same for s and t
		tmp.Mul(q, r)
		oldR, r = r, new(big.Int).Sub(oldR, tmp)
		tmp.Mul(q, s)
		oldS, s = s, new(big.Int).Sub(oldS, tmp)
		tmp.Mul(q, t)
		oldT, t = t, new(big.Int).Sub(oldT, tmp)
	}
	if oldR.Sign() < 0 {
		oldR.Neg(oldR)
		oldS.Neg(oldS)
		oldT.Neg(oldT)
	}
	return oldR, oldS, oldT
}

// ModInv returns a^-1 mod m in the range [0, m). It returns ErrNoInverse if
// gcd(a, m) != 1.
func ModInv(a, m *big.Int) (*big.Int, error) {
	if err := checkModulus(m); err != nil {
		return nil, err
	}
	g, x, _ := ExtendedGCD(Normalize(a, m), m)
	if g.Cmp(one) != 0 {
		return nil, fmt.Errorf("%w: gcd is %s", ErrNoInverse, g.String())
	}
	return Normalize(x, m), nil
}

// IsUnit reports whether 0 < r < n and gcd(r, n) = 1.
func IsUnit(r, n *big.Int) bool {
	if r == nil || n == nil {
		return false
	}
	if r.Cmp(zero) <= 0 || r.Cmp(n) >= 0 {
		return false
	}
	return GCD(r, n).Cmp(one) == 0
}

// RandomCoprimeBelow draws a uniformly distributed r with 0 < r < n and
// gcd(r, n) = 1 from the given random source, which must be a
// cryptographically secure generator (crypto/rand.Reader in production).
//
// It reads SamplingMargin more bytes than needed to represent n and reduces
// modulo n, redrawing while the candidate is zero or shares a factor with n.
func RandomCoprimeBelow(rand io.Reader, n *big.Int) (*big.Int, error) {
	if n == nil || n.Cmp(one) <= 0 {
		return nil, fmt.Errorf("%w: n must be greater than 1", ErrInvalidModulus)
	}
	buf := make([]byte, (n.BitLen()+7)/8+SamplingMargin)
	defer clear(buf)
	r := new(big.Int)
	for i := 0; i < MaxSamplingDraws; i++ {
		if _, err := io.ReadFull(rand, buf); err != nil {
			return nil, fmt.Errorf("read random bytes: %w", err)
		}
		r.SetBytes(buf)
		r.Mod(r, n)
		if r.Sign() == 0 || GCD(r, n).Cmp(one) != 0 {
			continue
		}
		return r, nil
	}
	return nil, ErrSamplingFailed
}
