package storage

import (
	"github.com/vocdoni/blindvote/ballot"
)

// Tally is the encrypted running tally of an election.
type Tally struct {
	ElectionID string         `json:"election_id" cbor:"0,keyasint,omitempty"`
	KeyID      string         `json:"key_id"      cbor:"1,keyasint,omitempty"`
	Count      int            `json:"count"       cbor:"2,keyasint"`
	Entries    []ballot.Entry `json:"entries"     cbor:"3,keyasint,omitempty"`
}

// SetTally stores the tally of an election.
func (s *Storage) SetTally(t *Tally) error {
	return s.setArtifact(tallyPrefix, []byte(t.ElectionID), t)
}

// Tally returns the tally of an election, or ErrNotFound if no ballot was
// counted yet.
func (s *Storage) Tally(electionID string) (*Tally, error) {
	t := &Tally{}
	if err := s.getArtifact(tallyPrefix, []byte(electionID), t); err != nil {
		return nil, err
	}
	return t, nil
}
