// storage package contains all the artifacts that are stored in the
// database. It is shared by the voter client, which keeps its in-progress
// credentials and receipts, and by the election authority, which keeps
// elections, issuance records, spent tokens, tallies and the bulletin board.
// The following prefixes are used:
//   - 'cr/' for voter credentials
//   - 'rc/' for voter receipts
//   - 'e/' for elections
//   - 'is/' for blind signature issuance records
//   - 'sp/' for spent token hashes
//   - 'bb/' for bulletin board entries
//   - 'bt/' for bulletin board merkle trees
//   - 'tl/' for encrypted tallies
package storage

import (
	"fmt"
	"sync"

	"github.com/vocdoni/arbo"
	"github.com/vocdoni/blindvote/log"
	"go.vocdoni.io/dvote/db"
)

var (
	// Prefixes for the keys in the database.
	credentialPrefix   = []byte("cr/")
	receiptPrefix      = []byte("rc/")
	electionPrefix     = []byte("e/")
	issuancePrefix     = []byte("is/")
	spentPrefix        = []byte("sp/")
	bulletinPrefix     = []byte("bb/")
	bulletinTreePrefix = []byte("bt/")
	tallyPrefix        = []byte("tl/")

	// ErrNotFound is returned when the requested artifact does not exist.
	ErrNotFound = fmt.Errorf("not found")
	// ErrAlreadyExists is returned when an artifact that can only be written
	// once is written again.
	ErrAlreadyExists = fmt.Errorf("already exists")
)

const (
	// maxKeySize is the maximum size of the key in bytes. It is used to
	// generate the key of the artifacts stored in the database by truncating
	// the hash of the artifact itself.
	maxKeySize = 12
)

// Storage wraps the key-value database with typed accessors.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
	trees      map[string]*arbo.Tree
}

// New creates a new Storage instance.
func New(db db.Database) *Storage {
	return &Storage{
		db:    db,
		trees: make(map[string]*arbo.Tree),
	}
}

// Close closes the storage.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err.Error())
	}
}
