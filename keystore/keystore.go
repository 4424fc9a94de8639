// Package keystore keeps the voter's long-term secp256k1 signing key
// encrypted on disk under a passphrase.
//
// The key is derived with PBKDF2-SHA256 and the private key is sealed with
// AES-256-GCM. Salt and IV are drawn fresh on every encryption.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vocdoni/blindvote/crypto/ethereum"
	"github.com/vocdoni/blindvote/log"
	"github.com/vocdoni/blindvote/types"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Version is the current key file format version.
	Version = 1
	// KDF names the key derivation function of the key file.
	KDF = "pbkdf2-sha256"
	// Iterations is the PBKDF2 iteration count.
	Iterations = 100_000
	// SaltSize is the size of the PBKDF2 salt.
	SaltSize = 16
	// IVSize is the size of the AES-GCM nonce.
	IVSize = 12
	// KeySize is the size of the derived AES key.
	KeySize = 32
)

var (
	// ErrWrongPassphrase is returned when the key file can not be opened
	// with the given passphrase.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted key file")
	// ErrInvalidKeyFile is returned for key files with unknown parameters.
	ErrInvalidKeyFile = errors.New("invalid key file")
	// ErrEmptyPassphrase is returned when encrypting with an empty passphrase.
	ErrEmptyPassphrase = errors.New("empty passphrase")
)

// KeyFile is the encrypted form of a signing key.
type KeyFile struct {
	Version    int            `json:"version"`
	Address    string         `json:"address"`
	KDF        string         `json:"kdf"`
	Iterations int            `json:"iterations"`
	Salt       types.HexBytes `json:"salt"`
	IV         types.HexBytes `json:"iv"`
	Ciphertext types.HexBytes `json:"ciphertext"`
}

func deriveKey(passphrase string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, KeySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals the private key of k under passphrase. The address is kept
// in clear so the file can be identified without the passphrase.
func Encrypt(rand io.Reader, k *ethereum.SignKeys, passphrase string) (*KeyFile, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	_, priv := k.HexString()
	if priv == "" {
		return nil, fmt.Errorf("no private key to encrypt")
	}
	salt := make([]byte, SaltSize)
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand, iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}
	key := deriveKey(passphrase, salt, Iterations)
	defer clear(key)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &KeyFile{
		Version:    Version,
		Address:    k.AddressString(),
		KDF:        KDF,
		Iterations: Iterations,
		Salt:       salt,
		IV:         iv,
		Ciphertext: gcm.Seal(nil, iv, []byte(priv), []byte(k.AddressString())),
	}, nil
}

// Decrypt opens the key file with passphrase.
func (kf *KeyFile) Decrypt(passphrase string) (*ethereum.SignKeys, error) {
	if kf.Version != Version || kf.KDF != KDF || kf.Iterations <= 0 ||
		len(kf.Salt) != SaltSize || len(kf.IV) != IVSize {
		return nil, ErrInvalidKeyFile
	}
	key := deriveKey(passphrase, kf.Salt, kf.Iterations)
	defer clear(key)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	priv, err := gcm.Open(nil, kf.IV, kf.Ciphertext, []byte(kf.Address))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	defer clear(priv)
	k := ethereum.NewSignKeys()
	if err := k.AddHexKey(string(priv)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
	}
	if !strings.EqualFold(k.AddressString(), kf.Address) {
		return nil, fmt.Errorf("%w: address mismatch", ErrInvalidKeyFile)
	}
	return k, nil
}

// KeyStore is a key file on disk.
type KeyStore struct {
	path string
}

// New returns a KeyStore backed by the file at path. The file does not need
// to exist yet.
func New(path string) *KeyStore {
	return &KeyStore{path: path}
}

// Path returns the key file path.
func (ks *KeyStore) Path() string {
	return ks.path
}

// Exists reports whether the key file is present.
func (ks *KeyStore) Exists() bool {
	_, err := os.Stat(ks.path)
	return err == nil
}

// Generate creates a new signing key, stores it encrypted and returns it.
// An existing key file is never overwritten.
func (ks *KeyStore) Generate(passphrase string) (*ethereum.SignKeys, error) {
	if ks.Exists() {
		return nil, fmt.Errorf("key file %s already exists", ks.path)
	}
	k := ethereum.NewSignKeys()
	if err := k.Generate(); err != nil {
		return nil, err
	}
	if err := ks.Save(k, passphrase); err != nil {
		return nil, err
	}
	return k, nil
}

// Save encrypts k and writes it to the key file.
func (ks *KeyStore) Save(k *ethereum.SignKeys, passphrase string) error {
	kf, err := Encrypt(rand.Reader, k, passphrase)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(ks.path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(ks.path, data, 0o600); err != nil {
		return err
	}
	log.Infow("signing key stored", "address", kf.Address, "path", ks.path)
	return nil
}

// Load reads the key file without decrypting it.
func (ks *KeyStore) Load() (*KeyFile, error) {
	data, err := os.ReadFile(ks.path)
	if err != nil {
		return nil, err
	}
	kf := &KeyFile{}
	if err := json.Unmarshal(data, kf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
	}
	return kf, nil
}

// SigningKey returns the decrypted signing key.
func (ks *KeyStore) SigningKey(passphrase string) (*ethereum.SignKeys, error) {
	kf, err := ks.Load()
	if err != nil {
		return nil, err
	}
	return kf.Decrypt(passphrase)
}

// SignNonce signs a login nonce issued by the election authority.
func SignNonce(k *ethereum.SignKeys, nonce string) ([]byte, error) {
	if nonce == "" {
		return nil, fmt.Errorf("empty nonce")
	}
	return k.SignEthereum([]byte(nonce))
}
