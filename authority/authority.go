// Package authority implements the election authority counterpart of the
// voter: it signs blinded tokens once per voter, accepts ballots cast with
// an unblinded credential, keeps the encrypted running tally and publishes
// every accepted ballot on the bulletin board.
//
// The authority never generates keys and never decrypts. It is used as the
// development server behind the HTTP API and in end-to-end tests.
package authority

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vocdoni/blindvote/ballot"
	"github.com/vocdoni/blindvote/credential"
	"github.com/vocdoni/blindvote/crypto"
	"github.com/vocdoni/blindvote/crypto/blindrsa"
	"github.com/vocdoni/blindvote/crypto/ethereum"
	"github.com/vocdoni/blindvote/crypto/paillier"
	"github.com/vocdoni/blindvote/log"
	"github.com/vocdoni/blindvote/storage"
	"github.com/vocdoni/blindvote/tracker"
	"github.com/vocdoni/blindvote/types"
)

var (
	ErrElectionNotFound      = fmt.Errorf("election not found")
	ErrElectionClosed        = fmt.Errorf("election is not open")
	ErrInvalidElection       = fmt.Errorf("invalid election")
	ErrKeyMismatch           = fmt.Errorf("key mismatch for election")
	ErrAlreadyIssued         = fmt.Errorf("token already issued for this election")
	ErrInvalidBlindedToken   = fmt.Errorf("invalid blinded token")
	ErrInvalidVoterSignature = fmt.Errorf("invalid voter signature")
	ErrNotEligible           = fmt.Errorf("voter not eligible for this election")
	ErrInvalidCredential     = fmt.Errorf("invalid credential")
	ErrTokenAlreadyUsed      = fmt.Errorf("token already used")
	ErrInvalidTracker        = fmt.Errorf("invalid tracker")
	ErrTrackerInUse          = fmt.Errorf("tracker already used")
)

// Config holds the key material and storage of the authority.
type Config struct {
	Storage     *storage.Storage
	RSAKey      *blindrsa.PrivateKey
	PaillierKey *paillier.PublicKey
	// Now returns the current time, time.Now if nil.
	Now func() time.Time
}

// Authority is the election authority.
type Authority struct {
	storage  *storage.Storage
	rsa      *blindrsa.PrivateKey
	paillier *paillier.PublicKey
	now      func() time.Time

	// castLock serializes ballot acceptance so that the spent token check,
	// the tally update and the bulletin append happen as one step.
	castLock sync.Mutex
}

// New returns an Authority with the given configuration.
func New(conf *Config) (*Authority, error) {
	if conf == nil || conf.Storage == nil {
		return nil, fmt.Errorf("missing storage")
	}
	if conf.RSAKey == nil || conf.RSAKey.D == nil {
		return nil, fmt.Errorf("%w: missing rsa signing key", crypto.ErrInvalidKeyFormat)
	}
	if err := conf.RSAKey.Validate(); err != nil {
		return nil, err
	}
	if err := conf.PaillierKey.Validate(); err != nil {
		return nil, err
	}
	now := conf.Now
	if now == nil {
		now = time.Now
	}
	return &Authority{
		storage:  conf.Storage,
		rsa:      conf.RSAKey,
		paillier: conf.PaillierKey,
		now:      now,
	}, nil
}

// RSAPublicKey returns the public part of the signing key.
func (a *Authority) RSAPublicKey() *blindrsa.PublicKey {
	pub := a.rsa.PublicKey
	return &pub
}

// PaillierPublicKey returns the ballot encryption key.
func (a *Authority) PaillierPublicKey() *paillier.PublicKey {
	return a.paillier
}

// Now returns the authority clock.
func (a *Authority) Now() time.Time {
	return a.now()
}

// CreateElection stores a new election. An empty RSAKeyID is bound to the
// authority signing key.
func (a *Authority) CreateElection(e *types.Election) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidElection)
	}
	if len(e.ID) > types.MaxElectionIDLen || strings.ContainsRune(e.ID, '/') {
		return fmt.Errorf("%w: malformed id %q", ErrInvalidElection, e.ID)
	}
	if e.RSAKeyID == "" {
		e.RSAKeyID = a.rsa.KeyID
	}
	if e.RSAKeyID != a.rsa.KeyID {
		return fmt.Errorf("%w: unknown rsa key %s", ErrKeyMismatch, e.RSAKeyID)
	}
	if e.StartTime != nil && e.EndTime != nil && !e.EndTime.After(*e.StartTime) {
		return fmt.Errorf("%w: end time before start time", ErrInvalidElection)
	}
	if err := ballot.CheckCandidates(e.Candidates); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidElection, err)
	}
	if err := a.storage.SetElection(e); err != nil {
		return err
	}
	log.Infow("election stored", "election", e.ID, "candidates", len(e.Candidates), "active", e.IsActive)
	return nil
}

// Election returns the election, or ErrElectionNotFound.
func (a *Authority) Election(id string) (*types.Election, error) {
	e, err := a.storage.Election(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrElectionNotFound, id)
	}
	return e, err
}

// Elections returns every stored election.
func (a *Authority) Elections() ([]*types.Election, error) {
	ids, err := a.storage.ListElections()
	if err != nil {
		return nil, err
	}
	list := make([]*types.Election, 0, len(ids))
	for _, id := range ids {
		e, err := a.storage.Election(id)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, nil
}

// BlindSignRequest is a voter request for a blind signature.
type BlindSignRequest struct {
	ElectionID string
	RSAKeyID   string
	BlindedHex string
	// VoterSignature is the voter's signature over
	// credential.IssuanceMessage(ElectionID, RSAKeyID, BlindedHex).
	VoterSignature []byte
}

// BlindSign signs the blinded token of an eligible voter. Each voter,
// identified by the address recovered from the request signature, gets at
// most one signature per election. The signed value is returned as hex.
func (a *Authority) BlindSign(req *BlindSignRequest) (string, error) {
	e, err := a.Election(req.ElectionID)
	if err != nil {
		return "", err
	}
	if !e.IsActive || e.HasEnded(a.now()) {
		return "", fmt.Errorf("%w: %s", ErrElectionClosed, e.ID)
	}
	keyID := req.RSAKeyID
	if keyID == "" {
		keyID = e.RSAKeyID
	}
	if keyID != e.RSAKeyID || keyID != a.rsa.KeyID {
		return "", fmt.Errorf("%w: %s", ErrKeyMismatch, keyID)
	}
	blinded, err := crypto.ParseHexInt(req.BlindedHex)
	if err != nil || blinded.Cmp(a.rsa.N) >= 0 {
		return "", ErrInvalidBlindedToken
	}
	addr, err := ethereum.AddrFromSignature(
		credential.IssuanceMessage(e.ID, keyID, req.BlindedHex), req.VoterSignature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidVoterSignature, err)
	}
	if !e.Eligible(addr.Hex()) {
		return "", fmt.Errorf("%w: %s", ErrNotEligible, addr.Hex())
	}
	if err := a.storage.MarkIssued(e.ID, addr.Hex()); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return "", ErrAlreadyIssued
		}
		return "", err
	}
	signed, err := a.rsa.SignBlinded(blinded)
	if err != nil {
		return "", err
	}
	log.Debugw("blind signature issued", "election", e.ID, "key", keyID, "voter", addr.Hex())
	return crypto.BigToHex(signed), nil
}

// Vote is a ballot cast with an unblinded credential.
type Vote struct {
	ElectionID string
	Token      string
	Signature  string
	Tracker    string
	Ballot     *ballot.OneHotBallot
}

// TokenHash returns the value stored to mark a token as used.
func TokenHash(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

// CastVote verifies the credential, validates the ballot against the
// election, spends the token, adds the ballot to the encrypted tally and
// publishes it on the bulletin board. The three writes are committed
// together.
func (a *Authority) CastVote(v *Vote) (*storage.BulletinEntry, error) {
	if v == nil || v.Ballot == nil {
		return nil, fmt.Errorf("%w: missing ballot", ballot.ErrInvalidBallot)
	}
	e, err := a.Election(v.ElectionID)
	if err != nil {
		return nil, err
	}
	if !e.Open(a.now()) {
		return nil, fmt.Errorf("%w: %s", ErrElectionClosed, e.ID)
	}
	if v.Token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrInvalidCredential)
	}
	sig, err := crypto.ParseHexInt(v.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if err := blindrsa.Verify(v.Token, sig, &a.rsa.PublicKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !tracker.Valid(v.Tracker) {
		return nil, ErrInvalidTracker
	}
	if err := v.Ballot.Validate(e.Candidates, a.paillier); err != nil {
		return nil, err
	}

	a.castLock.Lock()
	defer a.castLock.Unlock()

	tokenHash := TokenHash(v.Token)
	spent, err := a.storage.TokenSpent(tokenHash)
	if err != nil {
		return nil, err
	}
	if spent {
		return nil, ErrTokenAlreadyUsed
	}
	if _, err := a.storage.BulletinEntry(e.ID, v.Tracker); err == nil {
		return nil, ErrTrackerInUse
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	tally, err := a.loadTally(e)
	if err != nil {
		return nil, err
	}
	if err := tally.Add(v.Ballot); err != nil {
		return nil, err
	}
	entry, err := a.storage.RecordCast(&storage.Cast{
		ElectionID: e.ID,
		Tracker:    v.Tracker,
		TokenHash:  tokenHash,
		BallotHash: v.Ballot.Hash(),
		Tally: &storage.Tally{
			ElectionID: e.ID,
			KeyID:      a.paillier.KeyID,
			Count:      tally.Count(),
			Entries:    tally.Entries(),
		},
	})
	switch {
	case errors.Is(err, storage.ErrTokenSpent):
		return nil, ErrTokenAlreadyUsed
	case errors.Is(err, storage.ErrAlreadyExists):
		return nil, ErrTrackerInUse
	case err != nil:
		return nil, fmt.Errorf("record ballot: %w", err)
	}
	log.Infow("ballot accepted", "election", e.ID, "index", entry.Index, "count", tally.Count())
	return entry, nil
}

func (a *Authority) loadTally(e *types.Election) (*ballot.Tally, error) {
	t, err := a.storage.Tally(e.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return ballot.NewTally(a.paillier, e.Candidates)
	}
	if err != nil {
		return nil, err
	}
	return ballot.RestoreTally(a.paillier, e.Candidates, t.Count, t.Entries)
}

// Tally returns the encrypted tally of the election. Before the first
// ballot every column is the encryption of zero.
func (a *Authority) Tally(electionID string) (*storage.Tally, error) {
	e, err := a.Election(electionID)
	if err != nil {
		return nil, err
	}
	t, err := a.loadTally(e)
	if err != nil {
		return nil, err
	}
	return &storage.Tally{
		ElectionID: e.ID,
		KeyID:      a.paillier.KeyID,
		Count:      t.Count(),
		Entries:    t.Entries(),
	}, nil
}

// Proof returns the bulletin board inclusion proof of the tracker. When the
// tracker is not published the proof carries the current root and count and
// storage.ErrNotFound is returned.
func (a *Authority) Proof(electionID, tr string) (*storage.BulletinProof, error) {
	if _, err := a.Election(electionID); err != nil {
		return nil, err
	}
	if !tracker.Valid(tr) {
		return nil, ErrInvalidTracker
	}
	return a.storage.BulletinProof(electionID, tr)
}
