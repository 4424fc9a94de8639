package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/blindvote/crypto"
	"github.com/vocdoni/blindvote/crypto/blindrsa"
)

func TestRSAKeyInfoAliases(t *testing.T) {
	c := qt.New(t)
	n, e := big.NewInt(3233), big.NewInt(17)
	keyID := crypto.RSAKeyID(n, e)

	bodies := []string{
		`{"key_id":"` + keyID + `","nHex":"ca1","eDec":"17","bits":12}`,
		`{"id":"` + keyID + `","n_hex":"0xca1","e_dec":"17"}`,
		`{"key_id":"` + keyID + `","n":"ca1","e":17}`,
		`{"key_id":"` + keyID + `","modulusHex":"CA1","e":"17"}`,
	}
	for _, body := range bodies {
		var k RSAKeyInfo
		c.Assert(json.Unmarshal([]byte(body), &k), qt.IsNil, qt.Commentf("%s", body))
		pub, err := k.PublicKey()
		c.Assert(err, qt.IsNil, qt.Commentf("%s", body))
		c.Assert(pub.KeyID, qt.Equals, keyID)
		c.Assert(pub.N.Cmp(n), qt.Equals, 0)
		c.Assert(pub.E.Cmp(e), qt.Equals, 0)
	}

}

func TestKeyInfoMissingID(t *testing.T) {
	c := qt.New(t)
	var k RSAKeyInfo
	c.Assert(json.Unmarshal([]byte(`{"nHex":"ca1","eDec":"17"}`), &k), qt.IsNil)
	_, err := k.PublicKey()
	c.Assert(err, qt.ErrorIs, crypto.ErrInvalidKeyFormat)
	c.Assert(err, qt.ErrorMatches, ".*missing rsa key id")

	var pk PaillierKeyInfo
	c.Assert(json.Unmarshal([]byte(`{"n_hex":"bb"}`), &pk), qt.IsNil)
	_, err = pk.PublicKey()
	c.Assert(err, qt.ErrorIs, crypto.ErrInvalidKeyFormat)
	c.Assert(err, qt.ErrorMatches, ".*missing paillier key id")
}

func TestRSAKeyInfoMalformed(t *testing.T) {
	c := qt.New(t)
	bodies := []string{
		`{"key_id":"k","eDec":"17"}`,
		`{"key_id":"k","nHex":"ca1"}`,
		`{"key_id":"k","nHex":"xyz","eDec":"17"}`,
		`{"key_id":"k","nHex":"ca2","eDec":"17"}`,
		`{"key_id":"k","nHex":"ca1","eDec":"1"}`,
	}
	for _, body := range bodies {
		var k RSAKeyInfo
		c.Assert(json.Unmarshal([]byte(body), &k), qt.IsNil)
		_, err := k.PublicKey()
		c.Assert(err, qt.ErrorIs, crypto.ErrInvalidKeyFormat, qt.Commentf("%s", body))
	}

	var k RSAKeyInfo
	err := json.Unmarshal([]byte(`{"nHex":"ca1","e":"seventeen"}`), &k)
	c.Assert(err, qt.ErrorIs, crypto.ErrInvalidKeyFormat)
}

func TestPublicKeysRSAList(t *testing.T) {
	c := qt.New(t)
	pub, err := blindrsa.NewPublicKey("rsa-a", big.NewInt(3233), big.NewInt(17))
	c.Assert(err, qt.IsNil)

	// single key marshals as an object
	data, err := json.Marshal(&PublicKeys{RSA: RSAKeyList{NewRSAKeyInfo(pub)}})
	c.Assert(err, qt.IsNil)
	var raw map[string]any
	c.Assert(json.Unmarshal(data, &raw), qt.IsNil)
	obj, ok := raw["rsa"].(map[string]any)
	c.Assert(ok, qt.IsTrue)
	c.Assert(obj["nHex"], qt.Equals, "ca1")
	c.Assert(obj["eDec"], qt.Equals, "17")

	var keys PublicKeys
	c.Assert(json.Unmarshal(data, &keys), qt.IsNil)
	c.Assert(keys.RSA, qt.HasLen, 1)

	list := `{"rsa":[{"key_id":"rsa-a","nHex":"ca1","eDec":"17"},{"key_id":"rsa-b","nHex":"bb","eDec":"3"}],
		"paillier":{"id":"paillier-x","n_hex":"bb"}}`
	c.Assert(json.Unmarshal([]byte(list), &keys), qt.IsNil)
	c.Assert(keys.RSA, qt.HasLen, 2)
	k, err := keys.RSA.Select("rsa-b")
	c.Assert(err, qt.IsNil)
	c.Assert(k.KeyID, qt.Equals, "rsa-b")
	// unknown ids fall back to the first key
	k, err = keys.RSA.Select("rsa-zzz")
	c.Assert(err, qt.IsNil)
	c.Assert(k.KeyID, qt.Equals, "rsa-a")
	c.Assert(keys.Paillier.KeyID, qt.Equals, "paillier-x")
	ppub, err := keys.Paillier.PublicKey()
	c.Assert(err, qt.IsNil)
	c.Assert(ppub.N.Int64(), qt.Equals, int64(187))

	_, err = RSAKeyList(nil).Select("x")
	c.Assert(err, qt.ErrorIs, crypto.ErrInvalidKeyFormat)
}

func TestBlindSignAliases(t *testing.T) {
	c := qt.New(t)
	var req BlindSignRequest
	c.Assert(json.Unmarshal([]byte(`{"blinded_token":"abc","rsa_key_id":"k","voter_signature":"0102"}`), &req), qt.IsNil)
	c.Assert(req.BlindedTokenHex, qt.Equals, "abc")
	c.Assert([]byte(req.VoterSignature), qt.DeepEquals, []byte{1, 2})

	for _, body := range []string{
		`{"signed_blinded_token_hex":"ff"}`,
		`{"signed_blinded_token":"ff"}`,
		`{"signed":"ff"}`,
	} {
		var resp BlindSignResponse
		c.Assert(json.Unmarshal([]byte(body), &resp), qt.IsNil)
		c.Assert(resp.SignedBlindedTokenHex, qt.Equals, "ff", qt.Commentf("%s", body))
	}
}

func TestErrorCodes(t *testing.T) {
	c := qt.New(t)
	e := ErrTokenAlreadyIssued.With("again")
	c.Assert(errors.Is(e, ErrTokenAlreadyIssued), qt.IsTrue)
	c.Assert(errors.Is(e, ErrTokenAlreadyUsed), qt.IsFalse)

	data, err := json.Marshal(e)
	c.Assert(err, qt.IsNil)
	var decoded Error
	c.Assert(json.Unmarshal(data, &decoded), qt.IsNil)
	c.Assert(decoded.Code, qt.Equals, ErrTokenAlreadyIssued.Code)
	c.Assert(decoded.Error(), qt.Equals, "token_already_issued_for_this_election: again")
	c.Assert(errors.Is(decoded, ErrTokenAlreadyIssued), qt.IsTrue)
}
