package storage

import (
	"fmt"
	"time"

	"github.com/vocdoni/blindvote/types"
)

// Receipt is what the voter keeps after casting a ballot: enough to look the
// ballot up on the bulletin board, and nothing that links it to the token.
type Receipt struct {
	ElectionID string         `json:"election_id"          cbor:"0,keyasint,omitempty"`
	Tracker    string         `json:"tracker"              cbor:"1,keyasint,omitempty"`
	CastAt     time.Time      `json:"cast_at"              cbor:"2,keyasint,omitempty"`
	BallotHash types.HexBytes `json:"ballot_hash,omitempty" cbor:"3,keyasint,omitempty"`
}

// SetReceipt stores the receipt of an election.
func (s *Storage) SetReceipt(r *Receipt) error {
	if r == nil || r.ElectionID == "" || r.Tracker == "" {
		return fmt.Errorf("invalid receipt")
	}
	return s.setArtifact(receiptPrefix, []byte(r.ElectionID), r)
}

// Receipt returns the receipt of an election, or ErrNotFound.
func (s *Storage) Receipt(electionID string) (*Receipt, error) {
	r := &Receipt{}
	if err := s.getArtifact(receiptPrefix, []byte(electionID), r); err != nil {
		return nil, err
	}
	return r, nil
}

// ListReceipts returns every stored receipt.
func (s *Storage) ListReceipts() ([]*Receipt, error) {
	var list []*Receipt
	err := iterateArtifacts(s, receiptPrefix, nil, func(_ []byte, r *Receipt) bool {
		list = append(list, r)
		return true
	})
	return list, err
}
