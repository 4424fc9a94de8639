package authority

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vocdoni/blindvote/crypto"
	"github.com/vocdoni/blindvote/crypto/blindrsa"
	"github.com/vocdoni/blindvote/crypto/paillier"
	"github.com/vocdoni/blindvote/types"
)

// KeyFile is the JSON file the authority is started from. Keys are
// generated elsewhere, the authority only loads them. Elections listed in
// the file are created on startup.
type KeyFile struct {
	RSA struct {
		NHex string `json:"n_hex"`
		EDec string `json:"e_dec"`
		DHex string `json:"d_hex"`
	} `json:"rsa"`
	Paillier struct {
		NHex string `json:"n_hex"`
	} `json:"paillier"`
	Elections []*types.Election `json:"elections,omitempty"`
}

// LoadKeyFile reads a key file from disk.
func LoadKeyFile(path string) (*KeyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	kf := &KeyFile{}
	if err := json.Unmarshal(data, kf); err != nil {
		return nil, fmt.Errorf("%w: %v", crypto.ErrInvalidKeyFormat, err)
	}
	return kf, nil
}

// Keys parses the key material. Key ids are the fingerprints of the public
// parts.
func (kf *KeyFile) Keys() (*blindrsa.PrivateKey, *paillier.PublicKey, error) {
	n, err := crypto.ParseHexInt(kf.RSA.NHex)
	if err != nil {
		return nil, nil, fmt.Errorf("rsa modulus: %w", err)
	}
	e, err := crypto.ParseDecInt(kf.RSA.EDec)
	if err != nil {
		return nil, nil, fmt.Errorf("rsa exponent: %w", err)
	}
	d, err := crypto.ParseHexInt(kf.RSA.DHex)
	if err != nil {
		return nil, nil, fmt.Errorf("rsa private exponent: %w", err)
	}
	pub, err := blindrsa.NewPublicKey(crypto.RSAKeyID(n, e), n, e)
	if err != nil {
		return nil, nil, err
	}
	pn, err := crypto.ParseHexInt(kf.Paillier.NHex)
	if err != nil {
		return nil, nil, fmt.Errorf("paillier modulus: %w", err)
	}
	ppub, err := paillier.NewPublicKey(crypto.PaillierKeyID(pn), pn)
	if err != nil {
		return nil, nil, err
	}
	return &blindrsa.PrivateKey{PublicKey: *pub, D: d}, ppub, nil
}
