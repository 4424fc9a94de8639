package storage

import (
	"time"
)

type issuance struct {
	IssuedAt time.Time `cbor:"0,keyasint,omitempty"`
}

type spentToken struct {
	ElectionID string    `cbor:"0,keyasint,omitempty"`
	SpentAt    time.Time `cbor:"1,keyasint,omitempty"`
}

// MarkIssued records that a voter got a blind signature for an election. It
// returns ErrAlreadyExists on a second request of the same voter. Only a hash
// of the pair is stored.
func (s *Storage) MarkIssued(electionID, voterID string) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	key := hashKey(joinKey(electionID, voterID))
	ok, err := s.hasArtifact(issuancePrefix, key)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyExists
	}
	return s.setArtifact(issuancePrefix, key, &issuance{IssuedAt: time.Now()})
}

// TokenSpent reports whether the token hash was already used.
func (s *Storage) TokenSpent(tokenHash []byte) (bool, error) {
	return s.hasArtifact(spentPrefix, tokenHash)
}
