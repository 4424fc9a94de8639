package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/blindvote/authority"
	"github.com/vocdoni/blindvote/log"
	"github.com/vocdoni/blindvote/storage"
	"github.com/vocdoni/blindvote/types"
)

// publicKeys returns both public keys
// GET /public-keys
func (a *API) publicKeys(w http.ResponseWriter, r *http.Request) {
	httpWriteJSON(w, &PublicKeys{
		RSA:      RSAKeyList{NewRSAKeyInfo(a.authority.RSAPublicKey())},
		Paillier: NewPaillierKeyInfo(a.authority.PaillierPublicKey()),
	})
}

// rsaKey returns the blind signature key
// GET /public-keys/rsa
func (a *API) rsaKey(w http.ResponseWriter, r *http.Request) {
	httpWriteJSON(w, NewRSAKeyInfo(a.authority.RSAPublicKey()))
}

// paillierKey returns the ballot encryption key
// GET /public-keys/paillier
func (a *API) paillierKey(w http.ResponseWriter, r *http.Request) {
	httpWriteJSON(w, NewPaillierKeyInfo(a.authority.PaillierPublicKey()))
}

func electionID(r *http.Request) (string, bool) {
	id := chi.URLParam(r, ElectionURLParam)
	return id, id != "" && len(id) <= types.MaxElectionIDLen
}

// election returns the voter view of an election
// GET /voter/elections/{electionId}
func (a *API) election(w http.ResponseWriter, r *http.Request) {
	id, ok := electionID(r)
	if !ok {
		ErrMalformedElectionID.Write(w)
		return
	}
	e, err := a.authority.Election(id)
	if err != nil {
		authorityError(err).Write(w)
		return
	}
	httpWriteJSON(w, NewElectionDetail(e, a.authority.Now()))
}

// newElection stores an election, only available in development mode
// POST /elections
func (a *API) newElection(w http.ResponseWriter, r *http.Request) {
	e := &types.Election{}
	if err := json.NewDecoder(r.Body).Decode(e); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if e.ID == "" || len(e.ID) > types.MaxElectionIDLen {
		ErrMalformedElectionID.Write(w)
		return
	}
	if err := a.authority.CreateElection(e); err != nil {
		authorityError(err).Write(w)
		return
	}
	httpWriteJSON(w, NewElectionDetail(e, a.authority.Now()))
}

// blindSign signs a blinded voting token
// POST /elections/{electionId}/blind-sign
func (a *API) blindSign(w http.ResponseWriter, r *http.Request) {
	id, ok := electionID(r)
	if !ok {
		ErrMalformedElectionID.Write(w)
		return
	}
	req := &BlindSignRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if req.BlindedTokenHex == "" {
		ErrInvalidBlindedToken.Write(w)
		return
	}
	if len(req.VoterSignature) == 0 {
		ErrInvalidVoterSignature.With("missing voter signature").Write(w)
		return
	}
	signed, err := a.authority.BlindSign(&authority.BlindSignRequest{
		ElectionID:     id,
		RSAKeyID:       req.RSAKeyID,
		BlindedHex:     req.BlindedTokenHex,
		VoterSignature: req.VoterSignature,
	})
	if err != nil {
		authorityError(err).Write(w)
		return
	}
	httpWriteJSON(w, &BlindSignResponse{
		SignedBlindedTokenHex: signed,
		RSAKeyID:              a.authority.RSAPublicKey().KeyID,
	})
}

// castVote accepts a ballot
// POST /cast-vote
func (a *API) castVote(w http.ResponseWriter, r *http.Request) {
	req := &CastVoteRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if req.ElectionID == "" || len(req.ElectionID) > types.MaxElectionIDLen {
		ErrMalformedElectionID.Write(w)
		return
	}
	entry, err := a.authority.CastVote(&authority.Vote{
		ElectionID: req.ElectionID,
		Token:      req.Token,
		Signature:  req.Signature,
		Tracker:    req.Tracker,
		Ballot:     req.Ballot,
	})
	if err != nil {
		authorityError(err).Write(w)
		return
	}
	log.Debugw("vote cast", "election", req.ElectionID, "index", entry.Index)
	httpWriteJSON(w, &CastVoteResponse{
		Message: "vote recorded",
		Tracker: entry.Tracker,
		Index:   entry.Index,
	})
}

// proof returns the bulletin board inclusion of a tracker
// GET /wbb/{electionId}/proof?tracker=
func (a *API) proof(w http.ResponseWriter, r *http.Request) {
	id, ok := electionID(r)
	if !ok {
		ErrMalformedElectionID.Write(w)
		return
	}
	tr := r.URL.Query().Get(TrackerQueryParam)
	if tr == "" {
		ErrMalformedTracker.With("missing tracker").Write(w)
		return
	}
	p, err := a.authority.Proof(id, tr)
	if errors.Is(err, storage.ErrNotFound) {
		httpWriteJSON(w, &ProofResponse{Found: false, Count: p.Count, Root: p.Root})
		return
	}
	if err != nil {
		authorityError(err).Write(w)
		return
	}
	httpWriteJSON(w, &ProofResponse{
		Found: true,
		Count: p.Count,
		Root:  p.Root,
		Entry: &ProofEntry{
			BulletinEntry: p.Entry,
			MerklePath:    p.Siblings,
			Root:          p.Root,
		},
	})
}

// tally returns the encrypted running tally
// GET /elections/{electionId}/tally
func (a *API) tally(w http.ResponseWriter, r *http.Request) {
	id, ok := electionID(r)
	if !ok {
		ErrMalformedElectionID.Write(w)
		return
	}
	t, err := a.authority.Tally(id)
	if err != nil {
		authorityError(err).Write(w)
		return
	}
	httpWriteJSON(w, &TallyResponse{
		ElectionID: t.ElectionID,
		KeyID:      t.KeyID,
		Count:      t.Count,
		Entries:    t.Entries,
	})
}
