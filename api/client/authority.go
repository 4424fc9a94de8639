package client

import (
	"context"
	"fmt"

	"github.com/vocdoni/blindvote/api"
	"github.com/vocdoni/blindvote/crypto"
	"github.com/vocdoni/blindvote/crypto/blindrsa"
	"github.com/vocdoni/blindvote/crypto/paillier"
	"github.com/vocdoni/blindvote/types"
)

// PublicKeys fetches the published keys.
func (c *HTTPclient) PublicKeys(ctx context.Context) (*api.PublicKeys, error) {
	keys := &api.PublicKeys{}
	if err := c.call(ctx, HTTPGET, nil, keys, nil, api.PublicKeysEndpoint); err != nil {
		return nil, err
	}
	return keys, nil
}

// RSAPublicKey returns the RSA key with the given id, falling back to the
// first published key when none matches. Malformed keys are reported as
// crypto.ErrInvalidKeyFormat.
func (c *HTTPclient) RSAPublicKey(ctx context.Context, keyID string) (*blindrsa.PublicKey, error) {
	keys, err := c.PublicKeys(ctx)
	if err != nil {
		return nil, err
	}
	info, err := keys.RSA.Select(keyID)
	if err != nil {
		return nil, err
	}
	return info.PublicKey()
}

// PaillierPublicKey returns the ballot encryption key.
func (c *HTTPclient) PaillierPublicKey(ctx context.Context) (*paillier.PublicKey, error) {
	keys, err := c.PublicKeys(ctx)
	if err != nil {
		return nil, err
	}
	if keys.Paillier == nil {
		return nil, fmt.Errorf("%w: no paillier key published", crypto.ErrInvalidKeyFormat)
	}
	return keys.Paillier.PublicKey()
}

// ElectionDetail fetches the voter view of an election.
func (c *HTTPclient) ElectionDetail(ctx context.Context, electionID string) (*api.ElectionDetail, error) {
	detail := &api.ElectionDetail{}
	if err := c.call(ctx, HTTPGET, nil, detail, nil, "voter", "elections", electionID); err != nil {
		return nil, err
	}
	return detail, nil
}

// CreateElection stores an election on an authority running with
// development endpoints.
func (c *HTTPclient) CreateElection(ctx context.Context, e *types.Election) (*api.ElectionDetail, error) {
	detail := &api.ElectionDetail{}
	if err := c.call(ctx, HTTPPOST, e, detail, nil, api.ElectionsEndpoint); err != nil {
		return nil, err
	}
	return detail, nil
}

// BlindSign submits a blinded token for signing.
func (c *HTTPclient) BlindSign(ctx context.Context, electionID string, req *api.BlindSignRequest) (*api.BlindSignResponse, error) {
	resp := &api.BlindSignResponse{}
	if err := c.call(ctx, HTTPPOST, req, resp, nil, "elections", electionID, "blind-sign"); err != nil {
		return nil, err
	}
	if resp.SignedBlindedTokenHex == "" {
		return nil, fmt.Errorf("empty blind signature in response")
	}
	return resp, nil
}

// CastVote submits a ballot.
func (c *HTTPclient) CastVote(ctx context.Context, req *api.CastVoteRequest) (*api.CastVoteResponse, error) {
	resp := &api.CastVoteResponse{}
	if err := c.call(ctx, HTTPPOST, req, resp, nil, api.CastVoteEndpoint); err != nil {
		return nil, err
	}
	return resp, nil
}

// Proof asks the bulletin board whether the tracker was published.
func (c *HTTPclient) Proof(ctx context.Context, electionID, tracker string) (*api.ProofResponse, error) {
	resp := &api.ProofResponse{}
	if err := c.call(ctx, HTTPGET, nil, resp, []string{api.TrackerQueryParam, tracker}, "wbb", electionID, "proof"); err != nil {
		return nil, err
	}
	return resp, nil
}

// Tally fetches the encrypted running tally of an election.
func (c *HTTPclient) Tally(ctx context.Context, electionID string) (*api.TallyResponse, error) {
	resp := &api.TallyResponse{}
	if err := c.call(ctx, HTTPGET, nil, resp, nil, "elections", electionID, "tally"); err != nil {
		return nil, err
	}
	return resp, nil
}
