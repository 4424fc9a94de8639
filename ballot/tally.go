package ballot

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/blindvote/crypto/paillier"
)

// Tally accumulates one-hot ballots column by column. Each column is the
// homomorphic sum of the ciphertexts cast for a candidate, so decrypting it
// yields the number of votes the candidate got. Tally is not safe for
// concurrent use.
type Tally struct {
	pub        *paillier.PublicKey
	candidates []Candidate
	columns    map[string]*big.Int
	count      int
}

// NewTally returns an empty tally for the candidate list.
func NewTally(pub *paillier.PublicKey, candidates []Candidate) (*Tally, error) {
	if err := pub.Validate(); err != nil {
		return nil, err
	}
	if err := CheckCandidates(candidates); err != nil {
		return nil, err
	}
	t := &Tally{
		pub:        pub,
		candidates: candidates,
		columns:    make(map[string]*big.Int, len(candidates)),
	}
	for _, c := range candidates {
		t.columns[c.ID] = pub.EncryptedZero()
	}
	return t, nil
}

// Add validates the ballot and adds it to the tally.
func (t *Tally) Add(b *OneHotBallot) error {
	if err := b.Validate(t.candidates, t.pub); err != nil {
		return err
	}
	sums := make(map[string]*big.Int, len(b.Entries))
	for _, e := range b.Entries {
		ct, err := t.pub.ParseCiphertext(e.Ciphertext)
		if err != nil {
			return err
		}
		sum, err := t.pub.Add(t.columns[e.CandidateID], ct)
		if err != nil {
			return err
		}
		sums[e.CandidateID] = sum
	}
	// only commit once every column was added
	for id, sum := range sums {
		t.columns[id] = sum
	}
	t.count++
	return nil
}

// Count returns the number of ballots added.
func (t *Tally) Count() int {
	return t.count
}

// Entries returns the aggregated ciphertexts in candidate list order.
func (t *Tally) Entries() []Entry {
	entries := make([]Entry, 0, len(t.candidates))
	for _, c := range t.candidates {
		entries = append(entries, Entry{CandidateID: c.ID, Ciphertext: t.columns[c.ID].String()})
	}
	return entries
}

// Aggregate adds all the ballots into a new tally.
func Aggregate(pub *paillier.PublicKey, candidates []Candidate, ballots ...*OneHotBallot) (*Tally, error) {
	t, err := NewTally(pub, candidates)
	if err != nil {
		return nil, err
	}
	for i, b := range ballots {
		if err := t.Add(b); err != nil {
			return nil, fmt.Errorf("ballot %d: %w", i, err)
		}
	}
	return t, nil
}

// RestoreTally rebuilds a tally from aggregated entries, as returned by
// Entries, and the number of ballots they hold.
func RestoreTally(pub *paillier.PublicKey, candidates []Candidate, count int, entries []Entry) (*Tally, error) {
	t, err := NewTally(pub, candidates)
	if err != nil {
		return nil, err
	}
	if len(entries) != len(candidates) {
		return nil, fmt.Errorf("%w: %d tally entries for %d candidates", ErrInvalidBallot, len(entries), len(candidates))
	}
	for _, e := range entries {
		if _, ok := t.columns[e.CandidateID]; !ok {
			return nil, fmt.Errorf("%w: unknown candidate %q", ErrInvalidBallot, e.CandidateID)
		}
		ct, err := pub.ParseCiphertext(e.Ciphertext)
		if err != nil {
			return nil, err
		}
		t.columns[e.CandidateID] = ct
	}
	t.count = count
	return t, nil
}
