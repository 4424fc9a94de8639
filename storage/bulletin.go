package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vocdoni/arbo"
	"github.com/vocdoni/blindvote/tracker"
	"github.com/vocdoni/blindvote/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// BulletinHashFunction is the hash function of the bulletin board trees.
var BulletinHashFunction = arbo.HashFunctionSha256

// BulletinEntry is a published ballot on the bulletin board.
type BulletinEntry struct {
	ElectionID  string         `json:"election_id"     cbor:"0,keyasint,omitempty"`
	Tracker     string         `json:"tracker"         cbor:"1,keyasint,omitempty"`
	Index       uint64         `json:"index"           cbor:"2,keyasint"`
	LeafHash    types.HexBytes `json:"leaf_hash"       cbor:"3,keyasint,omitempty"`
	BallotHash  types.HexBytes `json:"commitment_hash" cbor:"4,keyasint,omitempty"`
	PublishedAt time.Time      `json:"published_at"    cbor:"5,keyasint,omitempty"`
}

// BulletinProof is the inclusion proof of an entry in the bulletin tree.
type BulletinProof struct {
	Entry    *BulletinEntry
	Root     []byte
	Count    int
	Siblings []byte
}

// LeafHash computes the bulletin leaf of a ballot:
// sha256("electionID|tracker|hex(ballotHash)").
func LeafHash(electionID, tracker string, ballotHash []byte) []byte {
	h := sha256.Sum256(joinKey(electionID, tracker, hex.EncodeToString(ballotHash)))
	return h[:]
}

// bulletinTree returns the merkle tree of the election, opening it if
// needed. The caller must hold globalLock.
func (s *Storage) bulletinTree(electionID string) (*arbo.Tree, error) {
	if t, ok := s.trees[electionID]; ok {
		return t, nil
	}
	t, err := arbo.NewTree(arbo.Config{
		Database:     prefixeddb.NewPrefixedDatabase(s.db, treePrefix(electionID)),
		MaxLevels:    types.BulletinTreeMaxLevels,
		HashFunction: BulletinHashFunction,
	})
	if err != nil {
		return nil, fmt.Errorf("open bulletin tree: %w", err)
	}
	s.trees[electionID] = t
	return t, nil
}

func treePrefix(electionID string) []byte {
	return append(append([]byte{}, bulletinTreePrefix...), joinKey(electionID, "")...)
}

func trackerKey(tr string) ([]byte, error) {
	if !tracker.Valid(tr) {
		return nil, fmt.Errorf("invalid tracker %q", tr)
	}
	return hex.DecodeString(tr)
}

// AppendBulletinEntry publishes a ballot on the election bulletin board and
// returns the new entry. Trackers are unique per election, a repeated
// tracker returns ErrAlreadyExists.
func (s *Storage) AppendBulletinEntry(electionID, tr string, ballotHash []byte) (*BulletinEntry, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wTx := s.db.WriteTx()
	defer wTx.Discard()
	entry, err := s.appendBulletinEntryTx(wTx, electionID, tr, ballotHash)
	if err != nil {
		return nil, err
	}
	if err := wTx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// appendBulletinEntryTx adds the leaf and the entry into wTx. The caller
// must hold globalLock and commit wTx.
func (s *Storage) appendBulletinEntryTx(wTx db.WriteTx, electionID, tr string, ballotHash []byte) (*BulletinEntry, error) {
	key, err := trackerKey(tr)
	if err != nil {
		return nil, err
	}
	ok, err := s.hasArtifact(bulletinPrefix, joinKey(electionID, tr))
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, ErrAlreadyExists
	}
	tree, err := s.bulletinTree(electionID)
	if err != nil {
		return nil, err
	}
	treeTx := prefixeddb.NewPrefixedWriteTx(wTx, treePrefix(electionID))
	count, err := tree.GetNLeafsWithTx(treeTx)
	if err != nil {
		return nil, err
	}
	entry := &BulletinEntry{
		ElectionID:  electionID,
		Tracker:     tr,
		Index:       uint64(count),
		LeafHash:    LeafHash(electionID, tr, ballotHash),
		BallotHash:  ballotHash,
		PublishedAt: time.Now().Truncate(time.Second),
	}
	if err := tree.AddWithTx(treeTx, key, entry.LeafHash); err != nil {
		return nil, fmt.Errorf("add bulletin leaf: %w", err)
	}
	if err := setArtifactTx(wTx, bulletinPrefix, joinKey(electionID, tr), entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// BulletinEntry returns the entry published with the tracker, or ErrNotFound.
func (s *Storage) BulletinEntry(electionID, tr string) (*BulletinEntry, error) {
	e := &BulletinEntry{}
	if err := s.getArtifact(bulletinPrefix, joinKey(electionID, tr), e); err != nil {
		return nil, err
	}
	return e, nil
}

// BulletinEntries returns all the entries of an election in publication
// order.
func (s *Storage) BulletinEntries(electionID string) ([]*BulletinEntry, error) {
	var list []*BulletinEntry
	if err := iterateArtifacts(s, bulletinPrefix, joinKey(electionID, ""), func(_ []byte, e *BulletinEntry) bool {
		list = append(list, e)
		return true
	}); err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Index < list[j].Index })
	return list, nil
}

// BulletinRoot returns the current root of the election tree and the number
// of published entries.
func (s *Storage) BulletinRoot(electionID string) ([]byte, int, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	tree, err := s.bulletinTree(electionID)
	if err != nil {
		return nil, 0, err
	}
	root, err := tree.Root()
	if err != nil {
		return nil, 0, err
	}
	count, err := tree.GetNLeafs()
	if err != nil {
		return nil, 0, err
	}
	return root, count, nil
}

// BulletinProof returns the inclusion proof of the tracker. If the tracker is
// not on the board, the returned proof has a nil Entry and ErrNotFound is
// returned alongside the current root and count.
func (s *Storage) BulletinProof(electionID, tr string) (*BulletinProof, error) {
	root, count, err := s.BulletinRoot(electionID)
	if err != nil {
		return nil, err
	}
	proof := &BulletinProof{Root: root, Count: count}
	entry, err := s.BulletinEntry(electionID, tr)
	if errors.Is(err, ErrNotFound) {
		return proof, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	key, err := trackerKey(tr)
	if err != nil {
		return nil, err
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	tree, err := s.bulletinTree(electionID)
	if err != nil {
		return nil, err
	}
	_, _, siblings, exists, err := tree.GenProof(key)
	if err != nil {
		return nil, fmt.Errorf("generate bulletin proof: %w", err)
	}
	if !exists {
		return proof, ErrNotFound
	}
	proof.Entry = entry
	proof.Siblings = siblings
	return proof, nil
}

// VerifyBulletinProof checks the proof against its root.
func VerifyBulletinProof(p *BulletinProof) (bool, error) {
	if p == nil || p.Entry == nil {
		return false, nil
	}
	key, err := trackerKey(p.Entry.Tracker)
	if err != nil {
		return false, err
	}
	return arbo.CheckProof(BulletinHashFunction, key, p.Entry.LeafHash, p.Root, p.Siblings)
}
