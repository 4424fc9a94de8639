package storage

import (
	"errors"
	"fmt"

	"github.com/vocdoni/blindvote/credential"
)

// SetCredential stores the credential of an election, overwriting any
// previous one. Only one in-progress credential is kept per election.
func (s *Storage) SetCredential(c *credential.Credential) error {
	if c == nil || c.ElectionID == "" {
		return fmt.Errorf("invalid credential")
	}
	return s.setArtifact(credentialPrefix, []byte(c.ElectionID), c)
}

// Credential returns the stored credential of an election, or ErrNotFound.
func (s *Storage) Credential(electionID string) (*credential.Credential, error) {
	c := &credential.Credential{}
	if err := s.getArtifact(credentialPrefix, []byte(electionID), c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCredential removes the credential of an election. Deleting a missing
// credential is not an error.
func (s *Storage) DeleteCredential(electionID string) error {
	if err := s.deleteArtifact(credentialPrefix, []byte(electionID)); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
