// Package ballot builds and checks one-hot Paillier ballots: one ciphertext
// per candidate, where exactly one of them encrypts 1.
package ballot

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/vocdoni/blindvote/crypto/paillier"
	"golang.org/x/sync/errgroup"
)

// Scheme is the identifier of the one-hot Paillier ballot format.
const Scheme = "paillier-1hot"

var (
	// ErrUnknownCandidate is returned when the selected candidate is not in
	// the candidate list.
	ErrUnknownCandidate = errors.New("unknown candidate")
	// ErrInvalidCandidates is returned for empty candidate lists, empty ids
	// or duplicated ids.
	ErrInvalidCandidates = errors.New("invalid candidate list")
	// ErrInvalidBallot is returned when a ballot does not match the election.
	ErrInvalidBallot = errors.New("invalid ballot")
)

// Candidate is an election option.
type Candidate struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Entry is the ciphertext of one candidate, in base 10.
type Entry struct {
	CandidateID string `json:"candidate_id"`
	Ciphertext  string `json:"c"`
}

// OneHotBallot is an encrypted vote. Entries follow the candidate list order.
type OneHotBallot struct {
	Scheme   string  `json:"scheme"`
	Exponent int     `json:"exponent"`
	KeyID    string  `json:"key_id"`
	Entries  []Entry `json:"entries"`
}

// Hash returns the SHA-256 of the JSON encoding of the ballot. It is the
// commitment published on the bulletin board.
func (b *OneHotBallot) Hash() []byte {
	h := sha256.Sum256([]byte(b.String()))
	return h[:]
}

// String returns the JSON representation of the ballot.
func (b *OneHotBallot) String() string {
	data, err := json.Marshal(b)
	if err != nil {
		return ""
	}
	return string(data)
}

// CheckCandidates verifies the list is not empty and its ids are non empty
// and unique.
func CheckCandidates(candidates []Candidate) error {
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no candidates", ErrInvalidCandidates)
	}
	ids := make(map[string]struct{}, len(candidates))
	for i, c := range candidates {
		if c.ID == "" {
			return fmt.Errorf("%w: candidate %d has no id", ErrInvalidCandidates, i)
		}
		if _, ok := ids[c.ID]; ok {
			return fmt.Errorf("%w: duplicated id %q", ErrInvalidCandidates, c.ID)
		}
		ids[c.ID] = struct{}{}
	}
	return nil
}

// lockedReader serializes reads so a single random source can feed several
// encryption goroutines.
type lockedReader struct {
	mu sync.Mutex
	r  io.Reader
}

func (l *lockedReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Read(p)
}

// BuildOneHot encrypts 1 for the selected candidate and 0 for every other
// one, each entry with its own randomness. Entries are encrypted in
// parallel but always returned in candidate list order.
func BuildOneHot(ctx context.Context, rand io.Reader, candidates []Candidate,
	selectedID string, pub *paillier.PublicKey,
) (*OneHotBallot, error) {
	if err := pub.Validate(); err != nil {
		return nil, err
	}
	if err := CheckCandidates(candidates); err != nil {
		return nil, err
	}
	found := false
	for _, c := range candidates {
		if c.ID == selectedID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCandidate, selectedID)
	}

	src := &lockedReader{r: rand}
	entries := make([]Entry, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bit := 0
			if c.ID == selectedID {
				bit = 1
			}
			ct, err := pub.EncryptBitToDecString(src, bit)
			if err != nil {
				return fmt.Errorf("encrypt entry %d: %w", i, err)
			}
			entries[i] = Entry{CandidateID: c.ID, Ciphertext: ct}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &OneHotBallot{
		Scheme:   Scheme,
		Exponent: 0,
		KeyID:    pub.KeyID,
		Entries:  entries,
	}, nil
}

// Validate checks the ballot against the authoritative candidate list and
// the tally key: scheme, exponent and key id, one entry per candidate with
// the same id set, and every ciphertext in [0, n^2). It can not check that
// exactly one entry encrypts 1, that would need the private key.
func (b *OneHotBallot) Validate(candidates []Candidate, pub *paillier.PublicKey) error {
	if b == nil {
		return fmt.Errorf("%w: empty ballot", ErrInvalidBallot)
	}
	if err := CheckCandidates(candidates); err != nil {
		return err
	}
	if b.Scheme != Scheme {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBallot, b.Scheme)
	}
	if b.Exponent != 0 {
		return fmt.Errorf("%w: exponent must be 0", ErrInvalidBallot)
	}
	if b.KeyID != pub.KeyID {
		return fmt.Errorf("%w: key id %q does not match %q", ErrInvalidBallot, b.KeyID, pub.KeyID)
	}
	if len(b.Entries) != len(candidates) {
		return fmt.Errorf("%w: %d entries for %d candidates", ErrInvalidBallot, len(b.Entries), len(candidates))
	}
	valid := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		valid[c.ID] = false
	}
	for _, e := range b.Entries {
		used, ok := valid[e.CandidateID]
		if !ok {
			return fmt.Errorf("%w: unknown candidate %q", ErrInvalidBallot, e.CandidateID)
		}
		if used {
			return fmt.Errorf("%w: duplicated entry for %q", ErrInvalidBallot, e.CandidateID)
		}
		valid[e.CandidateID] = true
		if _, err := pub.ParseCiphertext(e.Ciphertext); err != nil {
			return fmt.Errorf("%w: candidate %q: %v", ErrInvalidBallot, e.CandidateID, err)
		}
	}
	return nil
}
