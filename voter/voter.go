// Package voter drives the voter side of an election: it obtains a blind
// signed credential from the election authority, keeps it until the ballot
// is cast, submits the encrypted one-hot ballot and later checks that the
// ballot made it to the public bulletin board.
package voter

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vocdoni/blindvote/api"
	"github.com/vocdoni/blindvote/ballot"
	"github.com/vocdoni/blindvote/credential"
	"github.com/vocdoni/blindvote/crypto/arith"
	"github.com/vocdoni/blindvote/crypto/blindrsa"
	"github.com/vocdoni/blindvote/crypto/paillier"
	"github.com/vocdoni/blindvote/log"
	"github.com/vocdoni/blindvote/storage"
	"github.com/vocdoni/blindvote/tracker"
)

// DefaultMaxBlindingRetries is the number of fresh attempts made when the
// blinding factor can not be drawn or inverted.
const DefaultMaxBlindingRetries = 3

var (
	// ErrKeyDomain is returned when no usable blinding factor was found
	// after all the retries. It points to a broken signer key.
	ErrKeyDomain = errors.New("no blinding factor invertible modulo the signer key")
	// ErrSignerRejected is returned when the authority did not sign the
	// blinded token. It wraps the authority error.
	ErrSignerRejected = errors.New("blind signature rejected")
	// ErrElectionNotOpen is returned when the election does not accept
	// credentials or ballots.
	ErrElectionNotOpen = errors.New("election is not open")
	// ErrCredentialExists is returned by PrepareCredential when a credential
	// for the election is already stored. Use Resume to load it.
	ErrCredentialExists = errors.New("credential already prepared")
	// ErrNoCredential is returned when there is no stored credential.
	ErrNoCredential = errors.New("no credential prepared for the election")
	// ErrAlreadyVoted is returned when a receipt for the election exists.
	ErrAlreadyVoted = errors.New("ballot already cast")
	// ErrTokenUsed is returned when the authority reports the token as
	// spent. The stored credential is deleted.
	ErrTokenUsed = errors.New("voting token already used")
	// ErrBallotMismatch is returned when the bulletin board holds a
	// different ballot under the receipt tracker.
	ErrBallotMismatch = errors.New("bulletin board entry does not match the cast ballot")
)

// KeyDirectory publishes the election parameters and the public keys.
type KeyDirectory interface {
	ElectionDetail(ctx context.Context, electionID string) (*api.ElectionDetail, error)
	RSAPublicKey(ctx context.Context, keyID string) (*blindrsa.PublicKey, error)
	PaillierPublicKey(ctx context.Context) (*paillier.PublicKey, error)
}

// CredentialIssuer signs blinded tokens.
type CredentialIssuer interface {
	BlindSign(ctx context.Context, electionID string, req *api.BlindSignRequest) (*api.BlindSignResponse, error)
}

// BallotBox accepts ballots.
type BallotBox interface {
	CastVote(ctx context.Context, req *api.CastVoteRequest) (*api.CastVoteResponse, error)
}

// BulletinBoard answers tracker lookups.
type BulletinBoard interface {
	Proof(ctx context.Context, electionID, tracker string) (*api.ProofResponse, error)
}

// Authority groups every collaborator, api/client.HTTPclient implements it.
type Authority interface {
	KeyDirectory
	CredentialIssuer
	BallotBox
	BulletinBoard
}

// Signer signs with the voter's long-term key. The authority recovers the
// voter address from the signature to enforce one credential per voter.
type Signer interface {
	SignEthereum(message []byte) ([]byte, error)
}

// Config holds the collaborators of a Session. Keys, Issuer, Box and Board
// can be filled at once with WithAuthority.
type Config struct {
	Keys    KeyDirectory
	Issuer  CredentialIssuer
	Box     BallotBox
	Board   BulletinBoard
	Signer  Signer
	Storage *storage.Storage
	// Rand defaults to crypto/rand.Reader.
	Rand io.Reader
	// MaxBlindingRetries defaults to DefaultMaxBlindingRetries.
	MaxBlindingRetries int
	// Now defaults to time.Now.
	Now func() time.Time
}

// WithAuthority sets every collaborator to a.
func (c *Config) WithAuthority(a Authority) *Config {
	c.Keys, c.Issuer, c.Box, c.Board = a, a, a, a
	return c
}

// Session is the voter context object. It owns no key material besides the
// Signer, credentials live in the storage between calls.
type Session struct {
	keys    KeyDirectory
	issuer  CredentialIssuer
	box     BallotBox
	board   BulletinBoard
	signer  Signer
	storage *storage.Storage
	rand    io.Reader
	retries int
	now     func() time.Time
}

// New creates a Session from the configuration.
func New(conf *Config) (*Session, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing configuration")
	}
	switch {
	case conf.Keys == nil:
		return nil, fmt.Errorf("missing key directory")
	case conf.Issuer == nil:
		return nil, fmt.Errorf("missing credential issuer")
	case conf.Box == nil:
		return nil, fmt.Errorf("missing ballot box")
	case conf.Board == nil:
		return nil, fmt.Errorf("missing bulletin board")
	case conf.Signer == nil:
		return nil, fmt.Errorf("missing voter signer")
	case conf.Storage == nil:
		return nil, fmt.Errorf("missing storage")
	}
	s := &Session{
		keys:    conf.Keys,
		issuer:  conf.Issuer,
		box:     conf.Box,
		board:   conf.Board,
		signer:  conf.Signer,
		storage: conf.Storage,
		rand:    conf.Rand,
		retries: conf.MaxBlindingRetries,
		now:     conf.Now,
	}
	if s.rand == nil {
		s.rand = rand.Reader
	}
	if s.retries <= 0 {
		s.retries = DefaultMaxBlindingRetries
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// openElection fetches the election and checks it accepts voters.
func (s *Session) openElection(ctx context.Context, electionID string) (*api.ElectionDetail, error) {
	e, err := s.keys.ElectionDetail(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("fetch election %s: %w", electionID, err)
	}
	if !e.IsActive || !e.HasStarted || e.HasEnded {
		return nil, fmt.Errorf("%w: %s", ErrElectionNotOpen, electionID)
	}
	return e, nil
}

// PrepareCredential obtains a blind signed credential for the election and
// stores it. The token is blinded before it leaves the session, so the
// authority signs it without seeing it. Blinding factors that can not be
// drawn or inverted restart the whole attempt with a new token, up to
// MaxBlindingRetries times, before ErrKeyDomain is returned.
//
// When ctx is cancelled while waiting for the signature the attempt is
// discarded and ctx.Err() is returned.
func (s *Session) PrepareCredential(ctx context.Context, electionID string) (*credential.Credential, error) {
	if _, err := s.storage.Receipt(electionID); err == nil {
		return nil, ErrAlreadyVoted
	}
	if _, err := s.storage.Credential(electionID); err == nil {
		return nil, ErrCredentialExists
	}
	e, err := s.openElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	pub, err := s.keys.RSAPublicKey(ctx, e.RSAKeyID)
	if err != nil {
		return nil, fmt.Errorf("fetch rsa key: %w", err)
	}
	if e.RSAKeyID != "" && pub.KeyID != e.RSAKeyID {
		log.Warnw("election key not published, using first key",
			"election", electionID, "expected", e.RSAKeyID, "using", pub.KeyID)
	}

	for i := 1; i <= s.retries; i++ {
		cred, err := s.issue(ctx, electionID, pub)
		if errors.Is(err, arith.ErrNoInverse) || errors.Is(err, arith.ErrSamplingFailed) {
			log.Warnw("blinding failed, restarting attempt", "election", electionID, "attempt", i, "error", err.Error())
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := s.storage.SetCredential(cred); err != nil {
			return nil, fmt.Errorf("store credential: %w", err)
		}
		log.Infow("credential prepared", "election", electionID, "key", cred.RSAKeyID)
		return cred, nil
	}
	return nil, fmt.Errorf("%w: %d attempts", ErrKeyDomain, s.retries)
}

// issue runs one blind signature attempt.
func (s *Session) issue(ctx context.Context, electionID string, pub *blindrsa.PublicKey) (*credential.Credential, error) {
	att, err := credential.NewAttempt(electionID, pub)
	if err != nil {
		return nil, err
	}
	defer att.Discard()
	if err := att.GenerateToken(s.rand); err != nil {
		return nil, err
	}
	blinded, err := att.Blind(s.rand)
	if err != nil {
		return nil, err
	}
	sig, err := s.signer.SignEthereum(credential.IssuanceMessage(electionID, att.KeyID(), blinded))
	if err != nil {
		return nil, fmt.Errorf("sign issuance request: %w", err)
	}
	if err := att.Submitted(); err != nil {
		return nil, err
	}
	resp, err := s.issuer.BlindSign(ctx, electionID, &api.BlindSignRequest{
		BlindedTokenHex: blinded,
		RSAKeyID:        att.KeyID(),
		VoterSignature:  sig,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Debugw("attempt cancelled while waiting for signature", "attempt", att.ID())
		return nil, ctxErr
	}
	if err != nil {
		att.Fail(err)
		return nil, fmt.Errorf("%w: %w", ErrSignerRejected, err)
	}
	if resp.RSAKeyID != "" && resp.RSAKeyID != att.KeyID() {
		err := fmt.Errorf("signed with key %s, requested %s", resp.RSAKeyID, att.KeyID())
		att.Fail(err)
		return nil, fmt.Errorf("%w: %w", ErrSignerRejected, err)
	}
	if err := att.Unblind(resp.SignedBlindedTokenHex); err != nil {
		return nil, err
	}
	tr, err := tracker.Generate(s.rand, tracker.DefaultSize)
	if err != nil {
		return nil, err
	}
	return att.Credential(tr)
}

// Resume loads the stored credential of the election. A credential stored
// without tracker gets one, which is persisted.
func (s *Session) Resume(electionID string) (*credential.Credential, error) {
	cred, err := s.storage.Credential(electionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoCredential
	}
	if err != nil {
		return nil, err
	}
	if cred.Tracker == "" {
		if cred.Tracker, err = tracker.Generate(s.rand, tracker.DefaultSize); err != nil {
			return nil, err
		}
		if err := s.storage.SetCredential(cred); err != nil {
			return nil, fmt.Errorf("store credential: %w", err)
		}
	}
	return cred, nil
}

// Abandon deletes the stored credential of the election. The authority
// issues one credential per voter, so an abandoned credential is lost.
func (s *Session) Abandon(electionID string) error {
	log.Infow("abandoning credential", "election", electionID)
	return s.storage.DeleteCredential(electionID)
}

// Cast encrypts a one-hot ballot for candidateID and submits it with the
// stored credential. On success the credential is deleted and a receipt is
// stored and returned. If the authority reports the token as spent the
// credential is replaced by a receipt without ballot commitment and
// ErrTokenUsed is returned. Any other failure keeps the credential so the
// cast can be retried.
func (s *Session) Cast(ctx context.Context, electionID, candidateID string) (*storage.Receipt, error) {
	if _, err := s.storage.Receipt(electionID); err == nil {
		return nil, ErrAlreadyVoted
	}
	cred, err := s.Resume(electionID)
	if err != nil {
		return nil, err
	}
	e, err := s.openElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	pk, err := s.keys.PaillierPublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch paillier key: %w", err)
	}
	b, err := ballot.BuildOneHot(ctx, s.rand, e.Candidates, candidateID, pk)
	if err != nil {
		return nil, err
	}
	resp, err := s.box.CastVote(ctx, &api.CastVoteRequest{
		ElectionID: electionID,
		Token:      cred.Token.String(),
		Signature:  cred.Signature,
		Tracker:    cred.Tracker,
		Ballot:     b,
	})
	if errors.Is(err, api.ErrTokenAlreadyUsed) {
		// The token may have been spent by an earlier delivery of this same
		// request. Keep the tracker so the ballot can still be looked up, the
		// published commitment is unknown.
		r := &storage.Receipt{ElectionID: electionID, Tracker: cred.Tracker, CastAt: s.now().UTC()}
		if serr := s.storage.SetReceipt(r); serr != nil {
			return nil, fmt.Errorf("store receipt of spent credential: %w", serr)
		}
		if derr := s.storage.DeleteCredential(electionID); derr != nil {
			log.Warnw("could not delete spent credential", "election", electionID, "error", derr.Error())
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenUsed, err)
	}
	if err != nil {
		return nil, fmt.Errorf("cast vote: %w", err)
	}
	if resp.Tracker != "" && resp.Tracker != cred.Tracker {
		log.Warnw("authority answered with another tracker", "election", electionID, "tracker", resp.Tracker)
	}
	r := &storage.Receipt{
		ElectionID: electionID,
		Tracker:    cred.Tracker,
		CastAt:     s.now().UTC(),
		BallotHash: b.Hash(),
	}
	if err := s.storage.SetReceipt(r); err != nil {
		return nil, fmt.Errorf("store receipt: %w", err)
	}
	if err := s.storage.DeleteCredential(electionID); err != nil {
		log.Warnw("could not delete used credential", "election", electionID, "error", err.Error())
	}
	log.Infow("ballot cast", "election", electionID, "index", resp.Index)
	return r, nil
}

// Receipt returns the stored receipt of the election.
func (s *Session) Receipt(electionID string) (*storage.Receipt, error) {
	return s.storage.Receipt(electionID)
}

// Inclusion is the bulletin board answer for a receipt.
type Inclusion struct {
	Receipt *storage.Receipt
	Found   bool
	Index   uint64
	Count   int
	Root    []byte
}

// VerifyInclusion looks the receipt tracker up on the bulletin board. A
// published entry whose ballot commitment differs from the receipt returns
// ErrBallotMismatch.
func (s *Session) VerifyInclusion(ctx context.Context, electionID string) (*Inclusion, error) {
	r, err := s.storage.Receipt(electionID)
	if err != nil {
		return nil, fmt.Errorf("load receipt: %w", err)
	}
	p, err := s.board.Proof(ctx, electionID, r.Tracker)
	if err != nil {
		return nil, fmt.Errorf("fetch proof: %w", err)
	}
	inc := &Inclusion{Receipt: r, Found: p.Found, Count: p.Count, Root: p.Root}
	if !p.Found || p.Entry == nil || p.Entry.BulletinEntry == nil {
		inc.Found = false
		return inc, nil
	}
	inc.Index = p.Entry.Index
	if len(r.BallotHash) > 0 && !bytes.Equal(p.Entry.BallotHash, r.BallotHash) {
		return inc, ErrBallotMismatch
	}
	return inc, nil
}
