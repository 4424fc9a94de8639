package storage

import (
	"fmt"
	"time"
)

// ErrTokenSpent is returned by RecordCast when the token was already used.
var ErrTokenSpent = fmt.Errorf("token already spent")

// Cast is an accepted ballot as recorded by the election authority.
type Cast struct {
	ElectionID string
	Tracker    string
	TokenHash  []byte
	BallotHash []byte
	// Tally is the election tally with the ballot already added.
	Tally *Tally
}

// RecordCast spends the token, stores the updated tally and publishes the
// ballot on the bulletin board in a single write transaction. On error
// nothing is written. A spent token returns ErrTokenSpent and a repeated
// tracker ErrAlreadyExists.
func (s *Storage) RecordCast(c *Cast) (*BulletinEntry, error) {
	if c == nil || c.Tally == nil || len(c.TokenHash) == 0 {
		return nil, fmt.Errorf("incomplete cast record")
	}
	if c.Tally.ElectionID != c.ElectionID {
		return nil, fmt.Errorf("tally of election %s recorded for %s", c.Tally.ElectionID, c.ElectionID)
	}

	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	spent, err := s.hasArtifact(spentPrefix, c.TokenHash)
	if err != nil {
		return nil, err
	}
	if spent {
		return nil, ErrTokenSpent
	}

	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err := setArtifactTx(wTx, spentPrefix, c.TokenHash,
		&spentToken{ElectionID: c.ElectionID, SpentAt: time.Now()}); err != nil {
		return nil, err
	}
	if err := setArtifactTx(wTx, tallyPrefix, []byte(c.ElectionID), c.Tally); err != nil {
		return nil, err
	}
	entry, err := s.appendBulletinEntryTx(wTx, c.ElectionID, c.Tracker, c.BallotHash)
	if err != nil {
		return nil, err
	}
	if err := wTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cast: %w", err)
	}
	return entry, nil
}
