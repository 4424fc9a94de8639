package credential

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"math/big"
	"regexp"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/blindvote/crypto"
	"github.com/vocdoni/blindvote/crypto/blindrsa"
)

var base64URL = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)

func testSigner(c *qt.C) *blindrsa.PrivateKey {
	k, err := rsa.GenerateKey(rand.Reader, 1024)
	c.Assert(err, qt.IsNil)
	e := big.NewInt(int64(k.E))
	return &blindrsa.PrivateKey{
		PublicKey: blindrsa.PublicKey{KeyID: crypto.RSAKeyID(k.N, e), N: k.N, E: e},
		D:         k.D,
	}
}

func sign(c *qt.C, sk *blindrsa.PrivateKey, blindedHex string) string {
	blinded, err := crypto.ParseHexInt(blindedHex)
	c.Assert(err, qt.IsNil)
	s, err := sk.SignBlinded(blinded)
	c.Assert(err, qt.IsNil)
	return crypto.BigToHex(s)
}

func TestGenToken(t *testing.T) {
	c := qt.New(t)
	seen := make(map[Token]struct{}, 5000)
	for i := 0; i < 5000; i++ {
		tok, err := GenToken(rand.Reader)
		c.Assert(err, qt.IsNil)
		c.Assert(base64URL.MatchString(tok.String()), qt.IsTrue, qt.Commentf("token %q", tok))
		c.Assert(tok.Validate(), qt.IsNil)
		raw, err := base64.RawURLEncoding.DecodeString(tok.String())
		c.Assert(err, qt.IsNil)
		c.Assert(raw, qt.HasLen, TokenSize)
		_, dup := seen[tok]
		c.Assert(dup, qt.IsFalse)
		seen[tok] = struct{}{}
	}
}

func TestTokenValidate(t *testing.T) {
	c := qt.New(t)
	c.Assert(Token("").Validate(), qt.ErrorIs, ErrInvalidToken)
	c.Assert(Token("abc").Validate(), qt.ErrorIs, ErrInvalidToken)
	c.Assert(Token("not base64 at all!").Validate(), qt.ErrorIs, ErrInvalidToken)
	padded := base64.URLEncoding.EncodeToString(make([]byte, TokenSize))
	c.Assert(Token(padded).Validate(), qt.ErrorIs, ErrInvalidToken)
}

func TestAttemptHappyPath(t *testing.T) {
	c := qt.New(t)
	sk := testSigner(c)

	a, err := NewAttempt("election-1", &sk.PublicKey)
	c.Assert(err, qt.IsNil)
	c.Assert(a.State(), qt.Equals, Idle)

	c.Assert(a.GenerateToken(rand.Reader), qt.IsNil)
	c.Assert(a.State(), qt.Equals, TokenGenerated)

	blindedHex, err := a.Blind(rand.Reader)
	c.Assert(err, qt.IsNil)
	c.Assert(a.State(), qt.Equals, Blinded)
	again, err := a.BlindedHex()
	c.Assert(err, qt.IsNil)
	c.Assert(again, qt.Equals, blindedHex)

	c.Assert(a.Submitted(), qt.IsNil)
	c.Assert(a.State(), qt.Equals, AwaitingSignature)

	c.Assert(a.Unblind(sign(c, sk, blindedHex)), qt.IsNil)
	c.Assert(a.State(), qt.Equals, Unblinded)
	c.Assert(a.r, qt.IsNil)

	cred, err := a.Credential("00112233445566778899aabbccddeeff")
	c.Assert(err, qt.IsNil)
	c.Assert(cred.ElectionID, qt.Equals, "election-1")
	c.Assert(cred.RSAKeyID, qt.Equals, sk.KeyID)
	sig, err := crypto.ParseHexInt(cred.Signature)
	c.Assert(err, qt.IsNil)
	c.Assert(blindrsa.Verify(cred.Token.String(), sig, &sk.PublicKey), qt.IsNil)

	// the attempt is done, nothing else is allowed
	_, err = a.Blind(rand.Reader)
	c.Assert(err, qt.ErrorIs, ErrInvalidState)
	a.Discard()
	c.Assert(a.State(), qt.Equals, Unblinded)
}

func TestAttemptIllegalTransitions(t *testing.T) {
	c := qt.New(t)
	sk := testSigner(c)
	a, err := NewAttempt("e", &sk.PublicKey)
	c.Assert(err, qt.IsNil)

	_, err = a.Blind(rand.Reader)
	c.Assert(err, qt.ErrorIs, ErrInvalidState)
	c.Assert(a.Submitted(), qt.ErrorIs, ErrInvalidState)
	c.Assert(a.Unblind("01"), qt.ErrorIs, ErrInvalidState)
	_, err = a.Credential("")
	c.Assert(err, qt.ErrorIs, ErrInvalidState)
	_, err = a.BlindedHex()
	c.Assert(err, qt.ErrorIs, ErrInvalidState)
	// illegal calls do not move the attempt
	c.Assert(a.State(), qt.Equals, Idle)

	c.Assert(a.GenerateToken(rand.Reader), qt.IsNil)
	c.Assert(a.GenerateToken(rand.Reader), qt.ErrorIs, ErrInvalidState)
	c.Assert(a.Unblind("01"), qt.ErrorIs, ErrInvalidState)
	c.Assert(a.State(), qt.Equals, TokenGenerated)
}

func TestAttemptBadSignature(t *testing.T) {
	c := qt.New(t)
	sk := testSigner(c)
	a, err := NewAttempt("e", &sk.PublicKey)
	c.Assert(err, qt.IsNil)
	c.Assert(a.GenerateToken(rand.Reader), qt.IsNil)
	_, err = a.Blind(rand.Reader)
	c.Assert(err, qt.IsNil)
	c.Assert(a.Submitted(), qt.IsNil)

	err = a.Unblind("1234abcd")
	c.Assert(err, qt.ErrorIs, blindrsa.ErrBadSignature)
	c.Assert(a.State(), qt.Equals, Failed)
	c.Assert(a.Err(), qt.ErrorIs, blindrsa.ErrBadSignature)
	c.Assert(a.r, qt.IsNil)

	// failed is terminal
	c.Assert(a.Unblind("1234abcd"), qt.ErrorIs, ErrInvalidState)
}

func TestAttemptMalformedSignerAnswer(t *testing.T) {
	c := qt.New(t)
	sk := testSigner(c)
	a, err := NewAttempt("e", &sk.PublicKey)
	c.Assert(err, qt.IsNil)
	c.Assert(a.GenerateToken(rand.Reader), qt.IsNil)
	_, err = a.Blind(rand.Reader)
	c.Assert(err, qt.IsNil)
	c.Assert(a.Submitted(), qt.IsNil)
	c.Assert(a.Unblind("not-hex"), qt.ErrorIs, blindrsa.ErrBadSignature)
	c.Assert(a.State(), qt.Equals, Failed)
}

func TestAttemptMessageTooLarge(t *testing.T) {
	c := qt.New(t)
	toy := &blindrsa.PublicKey{KeyID: "rsa-toy", N: big.NewInt(3233), E: big.NewInt(17)}
	a, err := NewAttempt("e", toy)
	c.Assert(err, qt.IsNil)
	c.Assert(a.GenerateToken(rand.Reader), qt.IsNil)
	_, err = a.Blind(rand.Reader)
	c.Assert(err, qt.ErrorIs, blindrsa.ErrMessageTooLarge)
	c.Assert(a.State(), qt.Equals, Failed)
}

func TestAttemptDiscard(t *testing.T) {
	c := qt.New(t)
	sk := testSigner(c)
	a, err := NewAttempt("e", &sk.PublicKey)
	c.Assert(err, qt.IsNil)
	c.Assert(a.GenerateToken(rand.Reader), qt.IsNil)
	_, err = a.Blind(rand.Reader)
	c.Assert(err, qt.IsNil)
	c.Assert(a.Submitted(), qt.IsNil)

	a.Discard()
	c.Assert(a.State(), qt.Equals, Failed)
	c.Assert(a.r, qt.IsNil)
	c.Assert(a.token, qt.Equals, Token(""))
	c.Assert(a.Unblind("01"), qt.ErrorIs, ErrInvalidState)
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestAttemptRandomFailure(t *testing.T) {
	c := qt.New(t)
	sk := testSigner(c)
	a, err := NewAttempt("e", &sk.PublicKey)
	c.Assert(err, qt.IsNil)
	c.Assert(a.GenerateToken(brokenReader{}), qt.ErrorMatches, ".*no entropy")
	c.Assert(a.State(), qt.Equals, Failed)
}

func TestAttemptStringHidesSecrets(t *testing.T) {
	c := qt.New(t)
	sk := testSigner(c)
	a, err := NewAttempt("e", &sk.PublicKey)
	c.Assert(err, qt.IsNil)
	c.Assert(a.GenerateToken(rand.Reader), qt.IsNil)
	c.Assert(a.String(), qt.Not(qt.Contains), a.token.String())
	c.Assert(a.String(), qt.Contains, "token-generated")
}

func TestNewAttemptInvalidKey(t *testing.T) {
	c := qt.New(t)
	_, err := NewAttempt("e", &blindrsa.PublicKey{KeyID: "k", N: big.NewInt(10), E: big.NewInt(3)})
	c.Assert(err, qt.ErrorIs, crypto.ErrInvalidKeyFormat)
	_, err = NewAttempt("", &blindrsa.PublicKey{KeyID: "k", N: big.NewInt(3233), E: big.NewInt(17)})
	c.Assert(err, qt.Not(qt.IsNil))
}
