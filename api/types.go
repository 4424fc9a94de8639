package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vocdoni/blindvote/ballot"
	"github.com/vocdoni/blindvote/crypto"
	"github.com/vocdoni/blindvote/crypto/blindrsa"
	"github.com/vocdoni/blindvote/crypto/paillier"
	"github.com/vocdoni/blindvote/storage"
	"github.com/vocdoni/blindvote/types"
	"github.com/vocdoni/blindvote/util"
)

// RSAKeyInfo is the published RSA signing key. Decoding accepts the field
// names used by the different authority versions: key_id or id, n_hex, nHex,
// n or modulusHex for the modulus, and e_dec, eDec or e for the exponent.
type RSAKeyInfo struct {
	KeyID string `json:"key_id"`
	NHex  string `json:"nHex"`
	EDec  string `json:"eDec"`
	Bits  int    `json:"bits,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *RSAKeyInfo) UnmarshalJSON(data []byte) error {
	var raw struct {
		KeyID      string      `json:"key_id"`
		ID         string      `json:"id"`
		NHexSnake  string      `json:"n_hex"`
		NHex       string      `json:"nHex"`
		N          string      `json:"n"`
		ModulusHex string      `json:"modulusHex"`
		EDecSnake  json.Number `json:"e_dec"`
		EDec       json.Number `json:"eDec"`
		E          json.Number `json:"e"`
		Bits       int         `json:"bits"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", crypto.ErrInvalidKeyFormat, err)
	}
	*k = RSAKeyInfo{
		KeyID: util.FirstNonEmpty(raw.KeyID, raw.ID),
		NHex:  util.FirstNonEmpty(raw.NHexSnake, raw.NHex, raw.N, raw.ModulusHex),
		EDec:  util.FirstNonEmpty(raw.EDecSnake.String(), raw.EDec.String(), raw.E.String()),
		Bits:  raw.Bits,
	}
	return nil
}

// NewRSAKeyInfo returns the published form of pub.
func NewRSAKeyInfo(pub *blindrsa.PublicKey) *RSAKeyInfo {
	return &RSAKeyInfo{
		KeyID: pub.KeyID,
		NHex:  crypto.BigToHex(pub.N),
		EDec:  pub.E.String(),
		Bits:  pub.Bits(),
	}
}

// PublicKey parses and validates the key. Every field is required, a key
// without id is rejected.
func (k *RSAKeyInfo) PublicKey() (*blindrsa.PublicKey, error) {
	if k == nil {
		return nil, fmt.Errorf("%w: missing rsa key", crypto.ErrInvalidKeyFormat)
	}
	if k.KeyID == "" {
		return nil, fmt.Errorf("%w: missing rsa key id", crypto.ErrInvalidKeyFormat)
	}
	n, err := crypto.ParseHexInt(k.NHex)
	if err != nil {
		return nil, fmt.Errorf("rsa modulus: %w", err)
	}
	e, err := crypto.ParseDecInt(k.EDec)
	if err != nil {
		return nil, fmt.Errorf("rsa exponent: %w", err)
	}
	return blindrsa.NewPublicKey(k.KeyID, n, e)
}

// PaillierKeyInfo is the published Paillier ballot key. Decoding accepts the
// same aliases as RSAKeyInfo.
type PaillierKeyInfo struct {
	KeyID string `json:"key_id"`
	NHex  string `json:"nHex"`
	Bits  int    `json:"bits,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *PaillierKeyInfo) UnmarshalJSON(data []byte) error {
	var raw struct {
		KeyID      string `json:"key_id"`
		ID         string `json:"id"`
		NHexSnake  string `json:"n_hex"`
		NHex       string `json:"nHex"`
		N          string `json:"n"`
		ModulusHex string `json:"modulusHex"`
		Bits       int    `json:"bits"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", crypto.ErrInvalidKeyFormat, err)
	}
	*k = PaillierKeyInfo{
		KeyID: util.FirstNonEmpty(raw.KeyID, raw.ID),
		NHex:  util.FirstNonEmpty(raw.NHexSnake, raw.NHex, raw.N, raw.ModulusHex),
		Bits:  raw.Bits,
	}
	return nil
}

// NewPaillierKeyInfo returns the published form of pub.
func NewPaillierKeyInfo(pub *paillier.PublicKey) *PaillierKeyInfo {
	return &PaillierKeyInfo{
		KeyID: pub.KeyID,
		NHex:  crypto.BigToHex(pub.N),
		Bits:  pub.Bits(),
	}
}

// PublicKey parses and validates the key.
func (k *PaillierKeyInfo) PublicKey() (*paillier.PublicKey, error) {
	if k == nil {
		return nil, fmt.Errorf("%w: missing paillier key", crypto.ErrInvalidKeyFormat)
	}
	if k.KeyID == "" {
		return nil, fmt.Errorf("%w: missing paillier key id", crypto.ErrInvalidKeyFormat)
	}
	n, err := crypto.ParseHexInt(k.NHex)
	if err != nil {
		return nil, fmt.Errorf("paillier modulus: %w", err)
	}
	return paillier.NewPublicKey(k.KeyID, n)
}

// RSAKeyList is the rsa field of the public keys response. It is encoded as
// a single object when it holds one key, and decodes from an object or an
// array.
type RSAKeyList []*RSAKeyInfo

// MarshalJSON implements json.Marshaler.
func (l RSAKeyList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	return json.Marshal([]*RSAKeyInfo(l))
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *RSAKeyList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*l = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []*RSAKeyInfo
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*l = list
		return nil
	}
	k := &RSAKeyInfo{}
	if err := json.Unmarshal(data, k); err != nil {
		return err
	}
	*l = RSAKeyList{k}
	return nil
}

// Select returns the key with the given id, or the first key if none
// matches.
func (l RSAKeyList) Select(keyID string) (*RSAKeyInfo, error) {
	if len(l) == 0 {
		return nil, fmt.Errorf("%w: no rsa key published", crypto.ErrInvalidKeyFormat)
	}
	for _, k := range l {
		if k != nil && keyID != "" && k.KeyID == keyID {
			return k, nil
		}
	}
	if l[0] == nil {
		return nil, fmt.Errorf("%w: empty rsa key", crypto.ErrInvalidKeyFormat)
	}
	return l[0], nil
}

// PublicKeys is the response of the public keys endpoint.
type PublicKeys struct {
	RSA      RSAKeyList       `json:"rsa"`
	Paillier *PaillierKeyInfo `json:"paillier"`
}

// ElectionDetail is the election as returned to voters.
type ElectionDetail struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	StartTime      *time.Time         `json:"start_time"`
	EndTime        *time.Time         `json:"end_time"`
	IsActive       bool               `json:"is_active"`
	HasStarted     bool               `json:"has_started"`
	HasEnded       bool               `json:"has_ended"`
	CandidateCount int                `json:"candidate_count"`
	RSAKeyID       string             `json:"rsa_key_id"`
	Candidates     []ballot.Candidate `json:"candidates"`
}

// NewElectionDetail builds the voter view of the election at time now.
func NewElectionDetail(e *types.Election, now time.Time) *ElectionDetail {
	return &ElectionDetail{
		ID:             e.ID,
		Name:           e.Name,
		StartTime:      e.StartTime,
		EndTime:        e.EndTime,
		IsActive:       e.IsActive,
		HasStarted:     e.HasStarted(now),
		HasEnded:       e.HasEnded(now),
		CandidateCount: len(e.Candidates),
		RSAKeyID:       e.RSAKeyID,
		Candidates:     e.Candidates,
	}
}

// BlindSignRequest asks the authority to sign a blinded token. The voter
// signature covers credential.IssuanceMessage.
type BlindSignRequest struct {
	BlindedTokenHex string         `json:"blinded_token_hex"`
	RSAKeyID        string         `json:"rsa_key_id,omitempty"`
	VoterSignature  types.HexBytes `json:"voter_signature"`
}

// UnmarshalJSON accepts blinded_token as an alias of blinded_token_hex.
func (r *BlindSignRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		BlindedTokenHex string         `json:"blinded_token_hex"`
		BlindedToken    string         `json:"blinded_token"`
		RSAKeyID        string         `json:"rsa_key_id"`
		VoterSignature  types.HexBytes `json:"voter_signature"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = BlindSignRequest{
		BlindedTokenHex: util.FirstNonEmpty(raw.BlindedTokenHex, raw.BlindedToken),
		RSAKeyID:        raw.RSAKeyID,
		VoterSignature:  raw.VoterSignature,
	}
	return nil
}

// BlindSignResponse carries the signed blinded token.
type BlindSignResponse struct {
	SignedBlindedTokenHex string `json:"signed_blinded_token_hex"`
	RSAKeyID              string `json:"rsa_key_id,omitempty"`
}

// UnmarshalJSON accepts signed_blinded_token and signed as aliases.
func (r *BlindSignResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		SignedBlindedTokenHex string `json:"signed_blinded_token_hex"`
		SignedBlindedToken    string `json:"signed_blinded_token"`
		Signed                string `json:"signed"`
		RSAKeyID              string `json:"rsa_key_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = BlindSignResponse{
		SignedBlindedTokenHex: util.FirstNonEmpty(raw.SignedBlindedTokenHex, raw.SignedBlindedToken, raw.Signed),
		RSAKeyID:              raw.RSAKeyID,
	}
	return nil
}

// CastVoteRequest submits a ballot with its credential.
type CastVoteRequest struct {
	ElectionID string               `json:"election_id"`
	Token      string               `json:"token"`
	Signature  string               `json:"signature"`
	Tracker    string               `json:"tracker"`
	Ballot     *ballot.OneHotBallot `json:"ballot"`
}

// CastVoteResponse is returned for an accepted ballot.
type CastVoteResponse struct {
	Message string `json:"message"`
	Tracker string `json:"tracker,omitempty"`
	Index   uint64 `json:"index"`
}

// ProofEntry is a bulletin board entry with its inclusion path.
type ProofEntry struct {
	*storage.BulletinEntry
	MerklePath types.HexBytes `json:"merkle_path"`
	Root       types.HexBytes `json:"root"`
}

// ProofResponse answers whether a tracker is on the bulletin board. When
// it is not, only the current root and count are returned.
type ProofResponse struct {
	Found bool           `json:"found"`
	Count int            `json:"count"`
	Root  types.HexBytes `json:"root,omitempty"`
	Entry *ProofEntry    `json:"entry,omitempty"`
}

// TallyResponse is the encrypted tally of an election.
type TallyResponse struct {
	ElectionID string         `json:"election_id"`
	KeyID      string         `json:"key_id"`
	Count      int            `json:"count"`
	Entries    []ballot.Entry `json:"entries"`
}
