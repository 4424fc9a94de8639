package storage

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Artifact encoding/decoding
func encodeArtifact(a any) ([]byte, error) {
	encOpts := cbor.CoreDetEncOptions()
	em, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return em.Marshal(a)
}

func decodeArtifact(data []byte, out any) error {
	return cbor.Unmarshal(data, out)
}

func hashKey(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:maxKeySize]
}

// joinKey builds a composite key, using '/' as separator.
func joinKey(parts ...string) []byte {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteByte('/')
		}
		buf.WriteString(p)
	}
	return buf.Bytes()
}

// setArtifact encodes and stores the artifact under prefix+key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	wTx := s.db.WriteTx()
	if err := setArtifactTx(wTx, prefix, key, artifact); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// setArtifactTx writes the artifact into wTx without committing it.
func setArtifactTx(wTx db.WriteTx, prefix, key []byte, artifact any) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	return prefixeddb.NewPrefixedWriteTx(wTx, prefix).Set(key, data)
}

// getArtifact loads and decodes the artifact stored under prefix+key into
// out. It returns ErrNotFound if there is nothing stored.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	rd := prefixeddb.NewPrefixedReader(s.db, prefix)
	data, err := rd.Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return decodeArtifact(data, out)
}

// hasArtifact reports whether something is stored under prefix+key.
func (s *Storage) hasArtifact(prefix, key []byte) (bool, error) {
	rd := prefixeddb.NewPrefixedReader(s.db, prefix)
	if _, err := rd.Get(key); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// deleteArtifact removes prefix+key. It returns ErrNotFound if there is
// nothing stored.
func (s *Storage) deleteArtifact(prefix, key []byte) error {
	ok, err := s.hasArtifact(prefix, key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Delete(key); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// listArtifacts returns the keys stored under prefix+sub, without the
// prefixes.
func (s *Storage) listArtifacts(prefix, sub []byte) ([][]byte, error) {
	rd := prefixeddb.NewPrefixedReader(s.db, prefix)
	var keys [][]byte
	if err := rd.Iterate(sub, func(k, _ []byte) bool {
		keys = append(keys, bytes.Clone(k))
		return true
	}); err != nil {
		return nil, err
	}
	return keys, nil
}

// iterateArtifacts decodes every artifact stored under prefix+sub into a new
// T and passes it to fn, stopping when fn returns false.
func iterateArtifacts[T any](s *Storage, prefix, sub []byte, fn func(key []byte, v *T) bool) error {
	rd := prefixeddb.NewPrefixedReader(s.db, prefix)
	var decodeErr error
	if err := rd.Iterate(sub, func(k, v []byte) bool {
		out := new(T)
		if err := decodeArtifact(v, out); err != nil {
			decodeErr = fmt.Errorf("decode artifact %x: %w", k, err)
			return false
		}
		return fn(bytes.Clone(k), out)
	}); err != nil {
		return err
	}
	return decodeErr
}
