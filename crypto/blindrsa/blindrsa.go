// Package blindrsa implements Chaum RSA blind signatures over the SHA-256
// digest of a voting token.
//
// The voter blinds m = SHA-256(token) as blinded = r^e * m mod n, the signer
// answers with blinded^d mod n without learning m, and the voter removes the
// blinding factor with s = s' * r^-1 mod n, obtaining the plain RSA
// signature m^d mod n.
package blindrsa

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/vocdoni/blindvote/crypto"
	"github.com/vocdoni/blindvote/crypto/arith"
)

var (
	// ErrMessageTooLarge is returned when the digest of the token is not
	// smaller than the modulus.
	ErrMessageTooLarge = errors.New("message too large for modulus")
	// ErrBadSignature is returned when a signature does not verify or is
	// outside [0, n).
	ErrBadSignature = errors.New("invalid blind signature")
)

// PublicKey is the RSA public key of the credential signer, as published by
// the election authority.
type PublicKey struct {
	KeyID string
	N     *big.Int
	E     *big.Int
}

// NewPublicKey builds and validates a public key.
func NewPublicKey(keyID string, n, e *big.Int) (*PublicKey, error) {
	pk := &PublicKey{KeyID: keyID, N: n, E: e}
	if err := pk.Validate(); err != nil {
		return nil, err
	}
	return pk, nil
}

// Validate checks that the key material is usable: a key id, an odd modulus
// greater than 2 and an exponent greater than 1.
func (pk *PublicKey) Validate() error {
	if pk == nil {
		return fmt.Errorf("%w: nil rsa key", crypto.ErrInvalidKeyFormat)
	}
	if pk.KeyID == "" {
		return fmt.Errorf("%w: missing rsa key id", crypto.ErrInvalidKeyFormat)
	}
	if pk.N == nil || pk.N.Cmp(big.NewInt(2)) <= 0 || pk.N.Bit(0) == 0 {
		return fmt.Errorf("%w: rsa modulus must be odd and greater than 2", crypto.ErrInvalidKeyFormat)
	}
	if pk.E == nil || pk.E.Cmp(big.NewInt(1)) <= 0 {
		return fmt.Errorf("%w: rsa exponent must be greater than 1", crypto.ErrInvalidKeyFormat)
	}
	return nil
}

// Bits returns the bit length of the modulus.
func (pk *PublicKey) Bits() int {
	return pk.N.BitLen()
}

// PrivateKey is the signer side of the key. Only the election authority
// holds it.
type PrivateKey struct {
	PublicKey
	D *big.Int
}

// SignBlinded returns blinded^d mod n. The signer never sees the token.
func (sk *PrivateKey) SignBlinded(blinded *big.Int) (*big.Int, error) {
	if err := sk.Validate(); err != nil {
		return nil, err
	}
	if sk.D == nil || sk.D.Sign() <= 0 {
		return nil, fmt.Errorf("%w: missing rsa private exponent", crypto.ErrInvalidKeyFormat)
	}
	if blinded == nil || blinded.Sign() < 0 || blinded.Cmp(sk.N) >= 0 {
		return nil, fmt.Errorf("blinded value out of range")
	}
	return arith.ModPowSecret(blinded, sk.D, sk.N)
}

// MessageRepresentative returns SHA-256(token) read as a big-endian
// unsigned integer.
func MessageRepresentative(token string) *big.Int {
	h := sha256.Sum256([]byte(token))
	return new(big.Int).SetBytes(h[:])
}

// Blind hashes the token and blinds the digest with a fresh factor r. The
// caller must keep r secret and use it only to unblind the answer to this
// very request.
func Blind(rand io.Reader, token string, pub *PublicKey) (blinded, r *big.Int, err error) {
	if err := pub.Validate(); err != nil {
		return nil, nil, err
	}
	m := MessageRepresentative(token)
	if m.Cmp(pub.N) >= 0 {
		return nil, nil, fmt.Errorf("%w: digest has %d bits, modulus %d", ErrMessageTooLarge, m.BitLen(), pub.Bits())
	}
	return BlindMessage(rand, m, pub)
}

// BlindMessage blinds an already computed message representative m, which
// must satisfy 0 <= m < n.
func BlindMessage(rand io.Reader, m *big.Int, pub *PublicKey) (blinded, r *big.Int, err error) {
	if err := pub.Validate(); err != nil {
		return nil, nil, err
	}
	if m == nil || m.Sign() < 0 || m.Cmp(pub.N) >= 0 {
		return nil, nil, ErrMessageTooLarge
	}
	r, err = arith.RandomCoprimeBelow(rand, pub.N)
	if err != nil {
		return nil, nil, fmt.Errorf("blinding factor: %w", err)
	}
	re, err := arith.ModPowSecret(r, pub.E, pub.N)
	if err != nil {
		return nil, nil, err
	}
	blinded = re.Mul(re, m)
	blinded.Mod(blinded, pub.N)
	return blinded, r, nil
}

// Unblind removes the blinding factor r from the signer's answer:
// s = signedBlinded * r^-1 mod n. It returns arith.ErrNoInverse if r is not
// a unit modulo n.
func Unblind(signedBlinded, r *big.Int, pub *PublicKey) (*big.Int, error) {
	if err := pub.Validate(); err != nil {
		return nil, err
	}
	if signedBlinded == nil || signedBlinded.Sign() < 0 || signedBlinded.Cmp(pub.N) >= 0 {
		return nil, fmt.Errorf("%w: signed value out of range", ErrBadSignature)
	}
	rInv, err := arith.ModInv(r, pub.N)
	if err != nil {
		return nil, err
	}
	s := rInv.Mul(rInv, signedBlinded)
	return s.Mod(s, pub.N), nil
}

// Verify checks signature^e mod n == SHA-256(token) mod n.
func Verify(token string, signature *big.Int, pub *PublicKey) error {
	return VerifyMessage(MessageRepresentative(token), signature, pub)
}

// VerifyMessage checks signature^e mod n == m mod n.
func VerifyMessage(m, signature *big.Int, pub *PublicKey) error {
	if err := pub.Validate(); err != nil {
		return err
	}
	if signature == nil || signature.Sign() < 0 || signature.Cmp(pub.N) >= 0 {
		return fmt.Errorf("%w: signature out of range", ErrBadSignature)
	}
	got, err := arith.ModPow(signature, pub.E, pub.N)
	if err != nil {
		return err
	}
	if got.Cmp(arith.Normalize(m, pub.N)) != 0 {
		return ErrBadSignature
	}
	return nil
}
