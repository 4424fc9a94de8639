package ballot

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/blindvote/crypto"
	"github.com/vocdoni/blindvote/crypto/paillier"
)

// toy key n = 187 = 11 * 17, lambda = lcm(10, 16) = 80
var (
	toyN      = big.NewInt(187)
	toyLambda = big.NewInt(80)
)

func toyKey(c *qt.C) *paillier.PublicKey {
	pk, err := paillier.NewPublicKey(crypto.PaillierKeyID(toyN), toyN)
	c.Assert(err, qt.IsNil)
	return pk
}

func decrypt(c *qt.C, pk *paillier.PublicKey, s string) int64 {
	ct, err := pk.ParseCiphertext(s)
	c.Assert(err, qt.IsNil)
	n2 := pk.NSquared()
	l := func(x *big.Int) *big.Int {
		return new(big.Int).Div(new(big.Int).Sub(x, big.NewInt(1)), toyN)
	}
	mu := new(big.Int).ModInverse(l(new(big.Int).Exp(pk.G(), toyLambda, n2)), toyN)
	m := l(new(big.Int).Exp(ct, toyLambda, n2))
	return m.Mul(m, mu).Mod(m, toyN).Int64()
}

func candidates(n int) []Candidate {
	list := make([]Candidate, n)
	for i := range list {
		list[i] = Candidate{ID: fmt.Sprintf("cand-%d", i), Name: fmt.Sprintf("Candidate %d", i)}
	}
	return list
}

func TestBuildOneHotMiddleSelection(t *testing.T) {
	c := qt.New(t)
	pk := toyKey(c)
	list := []Candidate{{ID: "alice"}, {ID: "bob"}, {ID: "carol"}}

	b, err := BuildOneHot(context.Background(), rand.Reader, list, "bob", pk)
	c.Assert(err, qt.IsNil)
	c.Assert(b.Scheme, qt.Equals, Scheme)
	c.Assert(b.Exponent, qt.Equals, 0)
	c.Assert(b.KeyID, qt.Equals, pk.KeyID)
	c.Assert(b.Entries, qt.HasLen, 3)

	want := []int64{0, 1, 0}
	for i, e := range b.Entries {
		c.Assert(e.CandidateID, qt.Equals, list[i].ID)
		c.Assert(decrypt(c, pk, e.Ciphertext), qt.Equals, want[i])
	}
	c.Assert(b.Validate(list, pk), qt.IsNil)
}

func TestBuildOneHotProperty(t *testing.T) {
	c := qt.New(t)
	pk := toyKey(c)
	for size := 1; size <= 12; size++ {
		list := candidates(size)
		for sel := 0; sel < size; sel++ {
			b, err := BuildOneHot(context.Background(), rand.Reader, list, list[sel].ID, pk)
			c.Assert(err, qt.IsNil)
			c.Assert(b.Entries, qt.HasLen, size)
			ones := 0
			for i, e := range b.Entries {
				c.Assert(e.CandidateID, qt.Equals, list[i].ID)
				bit := decrypt(c, pk, e.Ciphertext)
				c.Assert(bit == 0 || bit == 1, qt.IsTrue)
				if bit == 1 {
					ones++
					c.Assert(i, qt.Equals, sel)
				}
			}
			c.Assert(ones, qt.Equals, 1)
		}
	}
}

func TestBuildOneHotErrors(t *testing.T) {
	c := qt.New(t)
	pk := toyKey(c)
	ctx := context.Background()

	_, err := BuildOneHot(ctx, rand.Reader, candidates(3), "nobody", pk)
	c.Assert(err, qt.ErrorIs, ErrUnknownCandidate)

	_, err = BuildOneHot(ctx, rand.Reader, nil, "x", pk)
	c.Assert(err, qt.ErrorIs, ErrInvalidCandidates)

	_, err = BuildOneHot(ctx, rand.Reader, []Candidate{{ID: "a"}, {ID: "a"}}, "a", pk)
	c.Assert(err, qt.ErrorIs, ErrInvalidCandidates)

	_, err = BuildOneHot(ctx, rand.Reader, []Candidate{{ID: "a"}, {ID: ""}}, "a", pk)
	c.Assert(err, qt.ErrorIs, ErrInvalidCandidates)

	_, err = BuildOneHot(ctx, rand.Reader, candidates(2), "cand-0", &paillier.PublicKey{KeyID: "k"})
	c.Assert(err, qt.ErrorIs, crypto.ErrInvalidKeyFormat)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = BuildOneHot(cancelled, rand.Reader, candidates(4), "cand-1", pk)
	c.Assert(err, qt.ErrorIs, context.Canceled)
}

func TestBallotJSON(t *testing.T) {
	c := qt.New(t)
	pk := toyKey(c)
	b, err := BuildOneHot(context.Background(), rand.Reader, candidates(2), "cand-1", pk)
	c.Assert(err, qt.IsNil)

	var raw map[string]any
	c.Assert(json.Unmarshal([]byte(b.String()), &raw), qt.IsNil)
	c.Assert(raw["scheme"], qt.Equals, "paillier-1hot")
	c.Assert(raw["exponent"], qt.Equals, float64(0))
	c.Assert(raw["key_id"], qt.Equals, pk.KeyID)
	entries := raw["entries"].([]any)
	c.Assert(entries, qt.HasLen, 2)
	first := entries[0].(map[string]any)
	c.Assert(first["candidate_id"], qt.Equals, "cand-0")
	c.Assert(first["c"], qt.Equals, b.Entries[0].Ciphertext)
}

func TestValidate(t *testing.T) {
	c := qt.New(t)
	pk := toyKey(c)
	list := candidates(3)
	build := func() *OneHotBallot {
		b, err := BuildOneHot(context.Background(), rand.Reader, list, "cand-2", pk)
		c.Assert(err, qt.IsNil)
		return b
	}

	var nilBallot *OneHotBallot
	c.Assert(nilBallot.Validate(list, pk), qt.ErrorIs, ErrInvalidBallot)

	tests := []struct {
		name   string
		mutate func(b *OneHotBallot)
	}{
		{"scheme", func(b *OneHotBallot) { b.Scheme = "elgamal" }},
		{"exponent", func(b *OneHotBallot) { b.Exponent = 1 }},
		{"key id", func(b *OneHotBallot) { b.KeyID = "paillier-other" }},
		{"missing entry", func(b *OneHotBallot) { b.Entries = b.Entries[:2] }},
		{"unknown candidate", func(b *OneHotBallot) { b.Entries[0].CandidateID = "cand-9" }},
		{"duplicated entry", func(b *OneHotBallot) { b.Entries[1].CandidateID = "cand-0" }},
		{"ciphertext range", func(b *OneHotBallot) { b.Entries[2].Ciphertext = pk.NSquared().String() }},
		{"ciphertext format", func(b *OneHotBallot) { b.Entries[2].Ciphertext = "0xff" }},
	}
	for _, tt := range tests {
		b := build()
		tt.mutate(b)
		c.Assert(b.Validate(list, pk), qt.ErrorIs, ErrInvalidBallot, qt.Commentf("%s", tt.name))
	}

	// entry order is not part of validity
	b := build()
	b.Entries[0], b.Entries[2] = b.Entries[2], b.Entries[0]
	c.Assert(b.Validate(list, pk), qt.IsNil)
}

func TestAggregate(t *testing.T) {
	c := qt.New(t)
	pk := toyKey(c)
	list := candidates(3)
	choices := []string{"cand-0", "cand-2", "cand-2", "cand-1", "cand-2"}

	ballots := make([]*OneHotBallot, 0, len(choices))
	for _, ch := range choices {
		b, err := BuildOneHot(context.Background(), rand.Reader, list, ch, pk)
		c.Assert(err, qt.IsNil)
		ballots = append(ballots, b)
	}
	tally, err := Aggregate(pk, list, ballots...)
	c.Assert(err, qt.IsNil)
	c.Assert(tally.Count(), qt.Equals, 5)

	want := []int64{1, 1, 3}
	for i, e := range tally.Entries() {
		c.Assert(e.CandidateID, qt.Equals, list[i].ID)
		c.Assert(decrypt(c, pk, e.Ciphertext), qt.Equals, want[i])
	}

	// an invalid ballot leaves the tally untouched
	bad := *ballots[0]
	bad.KeyID = "other"
	c.Assert(tally.Add(&bad), qt.ErrorIs, ErrInvalidBallot)
	c.Assert(tally.Count(), qt.Equals, 5)
}

func TestRestoreTally(t *testing.T) {
	c := qt.New(t)
	pk := toyKey(c)
	list := candidates(2)
	b, err := BuildOneHot(context.Background(), rand.Reader, list, "cand-1", pk)
	c.Assert(err, qt.IsNil)
	tally, err := Aggregate(pk, list, b)
	c.Assert(err, qt.IsNil)

	restored, err := RestoreTally(pk, list, tally.Count(), tally.Entries())
	c.Assert(err, qt.IsNil)
	c.Assert(restored.Add(b), qt.IsNil)
	c.Assert(restored.Count(), qt.Equals, 2)
	c.Assert(decrypt(c, pk, restored.Entries()[1].Ciphertext), qt.Equals, int64(2))

	_, err = RestoreTally(pk, list, 1, tally.Entries()[:1])
	c.Assert(err, qt.ErrorIs, ErrInvalidBallot)
}

func TestBallotHash(t *testing.T) {
	c := qt.New(t)
	pk := toyKey(c)
	b, err := BuildOneHot(context.Background(), rand.Reader, candidates(3), "cand-2", pk)
	c.Assert(err, qt.IsNil)

	h := b.Hash()
	c.Assert(h, qt.HasLen, 32)
	c.Assert(b.Hash(), qt.DeepEquals, h)

	// a decoded copy commits to the same value
	var copied OneHotBallot
	c.Assert(json.Unmarshal([]byte(b.String()), &copied), qt.IsNil)
	c.Assert(copied.Hash(), qt.DeepEquals, h)

	copied.Entries[0].Ciphertext = "1"
	c.Assert(copied.Hash(), qt.Not(qt.DeepEquals), h)
}
