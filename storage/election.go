package storage

import (
	"fmt"

	"github.com/vocdoni/blindvote/ballot"
	"github.com/vocdoni/blindvote/types"
)

// SetElection stores an election.
func (s *Storage) SetElection(e *types.Election) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("nil election data")
	}
	if err := ballot.CheckCandidates(e.Candidates); err != nil {
		return err
	}
	return s.setArtifact(electionPrefix, []byte(e.ID), e)
}

// Election retrieves an election. It returns ErrNotFound if it does not
// exist.
func (s *Storage) Election(id string) (*types.Election, error) {
	e := &types.Election{}
	if err := s.getArtifact(electionPrefix, []byte(id), e); err != nil {
		return nil, err
	}
	return e, nil
}

// ListElections returns the ids of the stored elections.
func (s *Storage) ListElections() ([]string, error) {
	keys, err := s.listArtifacts(electionPrefix, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, string(k))
	}
	return ids, nil
}
