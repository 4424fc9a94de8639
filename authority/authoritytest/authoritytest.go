// Package authoritytest provides an election authority with test keys, for
// tests of the packages that talk to it.
package authoritytest

import (
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/blindvote/authority"
	"github.com/vocdoni/blindvote/ballot"
	"github.com/vocdoni/blindvote/crypto"
	"github.com/vocdoni/blindvote/crypto/blindrsa"
	"github.com/vocdoni/blindvote/crypto/paillier"
	"github.com/vocdoni/blindvote/storage"
	"github.com/vocdoni/blindvote/types"
	"go.vocdoni.io/dvote/db/metadb"
)

// ElectionID is the id of the election created by New.
const ElectionID = "election-1"

var (
	// PaillierN is a toy Paillier modulus, 11 * 17. Tallies up to 186
	// ballots per candidate can be decrypted with Decrypt.
	PaillierN      = big.NewInt(187)
	paillierLambda = big.NewInt(80)

	rsaOnce sync.Once
	rsaKey  *rsa.PrivateKey
	rsaErr  error
)

// Candidates returns the candidates of the test election.
func Candidates() []ballot.Candidate {
	return []ballot.Candidate{
		{ID: "alice", Name: "Alice"},
		{ID: "bob", Name: "Bob"},
		{ID: "carol", Name: "Carol"},
	}
}

// RSAKey returns a 1024 bit RSA key shared by every test of the binary.
func RSAKey(t testing.TB) *blindrsa.PrivateKey {
	rsaOnce.Do(func() {
		rsaKey, rsaErr = rsa.GenerateKey(rand.Reader, 1024)
	})
	qt.Assert(t, rsaErr, qt.IsNil)
	e := big.NewInt(int64(rsaKey.E))
	pub, err := blindrsa.NewPublicKey(crypto.RSAKeyID(rsaKey.N, e), rsaKey.N, e)
	qt.Assert(t, err, qt.IsNil)
	return &blindrsa.PrivateKey{PublicKey: *pub, D: rsaKey.D}
}

// PaillierKey returns the toy Paillier key.
func PaillierKey(t testing.TB) *paillier.PublicKey {
	pk, err := paillier.NewPublicKey(crypto.PaillierKeyID(PaillierN), PaillierN)
	qt.Assert(t, err, qt.IsNil)
	return pk
}

// Decrypt decrypts a base 10 ciphertext of the toy Paillier key.
func Decrypt(t testing.TB, pk *paillier.PublicKey, s string) int64 {
	ct, err := pk.ParseCiphertext(s)
	qt.Assert(t, err, qt.IsNil)
	n2 := pk.NSquared()
	l := func(x *big.Int) *big.Int {
		return new(big.Int).Div(new(big.Int).Sub(x, big.NewInt(1)), pk.N)
	}
	mu := new(big.Int).ModInverse(l(new(big.Int).Exp(pk.G(), paillierLambda, n2)), pk.N)
	m := l(new(big.Int).Exp(ct, paillierLambda, n2))
	return m.Mul(m, mu).Mod(m, pk.N).Int64()
}

// Clock is a settable clock for the authority.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the clock time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// New returns an authority over an in-memory database with an open
// election ElectionID, started one hour before the clock time and ending one
// hour after.
func New(t testing.TB) (*authority.Authority, *Clock) {
	clock := &Clock{now: time.Now()}
	stg := storage.New(metadb.NewTest(t))
	a, err := authority.New(&authority.Config{
		Storage:     stg,
		RSAKey:      RSAKey(t),
		PaillierKey: PaillierKey(t),
		Now:         clock.Now,
	})
	qt.Assert(t, err, qt.IsNil)

	start, end := clock.Now().Add(-time.Hour), clock.Now().Add(time.Hour)
	qt.Assert(t, a.CreateElection(&types.Election{
		ID:         ElectionID,
		Name:       "Test election",
		StartTime:  &start,
		EndTime:    &end,
		IsActive:   true,
		Candidates: Candidates(),
	}), qt.IsNil)
	return a, clock
}
