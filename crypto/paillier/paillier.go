// Package paillier implements the public key side of the Paillier
// cryptosystem with the simplified generator g = n+1: encryption of single
// bits and homomorphic addition of ciphertexts. Decryption belongs to the
// tally authority and is not provided.
package paillier

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/vocdoni/blindvote/crypto"
	"github.com/vocdoni/blindvote/crypto/arith"
)

var (
	// ErrEncryptionDomain is returned when the plaintext is not 0 or 1.
	ErrEncryptionDomain = errors.New("plaintext must be 0 or 1")
	// ErrInvalidCiphertext is returned for ciphertexts outside [0, n^2).
	ErrInvalidCiphertext = errors.New("ciphertext out of range")
	// ErrUnsupportedGenerator is returned when a key announces a generator
	// other than n+1.
	ErrUnsupportedGenerator = errors.New("only the generator g = n+1 is supported")
)

// PublicKey is the Paillier public key of the tally authority.
type PublicKey struct {
	KeyID string
	N     *big.Int
}

// NewPublicKey builds and validates a public key with generator n+1.
func NewPublicKey(keyID string, n *big.Int) (*PublicKey, error) {
	pk := &PublicKey{KeyID: keyID, N: n}
	if err := pk.Validate(); err != nil {
		return nil, err
	}
	return pk, nil
}

// NewPublicKeyWithGenerator is NewPublicKey for directories that publish the
// generator explicitly. A nil g means n+1; any other value is rejected.
func NewPublicKeyWithGenerator(keyID string, n, g *big.Int) (*PublicKey, error) {
	pk, err := NewPublicKey(keyID, n)
	if err != nil {
		return nil, err
	}
	if g != nil && g.Cmp(pk.G()) != 0 {
		return nil, ErrUnsupportedGenerator
	}
	return pk, nil
}

// Validate checks that the key has an id and an odd modulus greater than 2.
func (pk *PublicKey) Validate() error {
	if pk == nil {
		return fmt.Errorf("%w: nil paillier key", crypto.ErrInvalidKeyFormat)
	}
	if pk.KeyID == "" {
		return fmt.Errorf("%w: missing paillier key id", crypto.ErrInvalidKeyFormat)
	}
	if pk.N == nil || pk.N.Cmp(big.NewInt(2)) <= 0 || pk.N.Bit(0) == 0 {
		return fmt.Errorf("%w: paillier modulus must be odd and greater than 2", crypto.ErrInvalidKeyFormat)
	}
	return nil
}

// G returns the generator n+1.
func (pk *PublicKey) G() *big.Int {
	return new(big.Int).Add(pk.N, big.NewInt(1))
}

// NSquared returns n^2, the ciphertext modulus.
func (pk *PublicKey) NSquared() *big.Int {
	return new(big.Int).Mul(pk.N, pk.N)
}

// Bits returns the bit length of n.
func (pk *PublicKey) Bits() int {
	return pk.N.BitLen()
}

// EncryptBit encrypts bit as c = g^bit * r^n mod n^2 with a fresh r drawn
// from rand. Two encryptions of the same bit are unlinkable.
func (pk *PublicKey) EncryptBit(rand io.Reader, bit int) (*big.Int, error) {
	if bit != 0 && bit != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrEncryptionDomain, bit)
	}
	if err := pk.Validate(); err != nil {
		return nil, err
	}
	n2 := pk.NSquared()
	r, err := arith.RandomCoprimeBelow(rand, pk.N)
	if err != nil {
		return nil, fmt.Errorf("encryption nonce: %w", err)
	}
	rn, err := arith.ModPowSecret(r, pk.N, n2)
	if err != nil {
		return nil, err
	}
	// with g = n+1, g^bit mod n^2 = 1 + bit*n
	gm, err := arith.ModPow(pk.G(), big.NewInt(int64(bit)), n2)
	if err != nil {
		return nil, err
	}
	c := gm.Mul(gm, rn)
	return c.Mod(c, n2), nil
}

// EncryptBitToDecString is EncryptBit with the ciphertext written in base 10,
// the wire format of ballot entries.
func (pk *PublicKey) EncryptBitToDecString(rand io.Reader, bit int) (string, error) {
	c, err := pk.EncryptBit(rand, bit)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// ValidateCiphertext checks 0 <= c < n^2.
func (pk *PublicKey) ValidateCiphertext(c *big.Int) error {
	if c == nil || c.Sign() < 0 || c.Cmp(pk.NSquared()) >= 0 {
		return ErrInvalidCiphertext
	}
	return nil
}

// ParseCiphertext parses a base 10 ciphertext and checks its range.
func (pk *PublicKey) ParseCiphertext(s string) (*big.Int, error) {
	c, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidCiphertext, s)
	}
	if err := pk.ValidateCiphertext(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Add returns c1 * c2 mod n^2, an encryption of the sum of both plaintexts.
func (pk *PublicKey) Add(c1, c2 *big.Int) (*big.Int, error) {
	if err := pk.ValidateCiphertext(c1); err != nil {
		return nil, err
	}
	if err := pk.ValidateCiphertext(c2); err != nil {
		return nil, err
	}
	sum := new(big.Int).Mul(c1, c2)
	return sum.Mod(sum, pk.NSquared()), nil
}

// EncryptedZero returns the trivial encryption of zero (r = 1), the neutral
// element of Add. It is not hiding and is only meant as an accumulator seed.
func (pk *PublicKey) EncryptedZero() *big.Int {
	return big.NewInt(1)
}
