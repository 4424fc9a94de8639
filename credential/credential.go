// Package credential implements the voter side of the blind signature
// credential: token generation, the blinding attempt state machine and the
// resulting credential.
package credential

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/google/uuid"
	"github.com/vocdoni/blindvote/crypto"
	"github.com/vocdoni/blindvote/crypto/blindrsa"
	"github.com/vocdoni/blindvote/log"
)

var (
	// ErrInvalidState is returned when an operation is called in a state
	// that does not allow it.
	ErrInvalidState = errors.New("invalid attempt state")
	// ErrInvalidToken is returned for malformed voting tokens.
	ErrInvalidToken = errors.New("invalid voting token")
)

// State is the stage of a blind signing attempt.
type State int

const (
	Idle State = iota
	TokenGenerated
	Blinded
	AwaitingSignature
	Unblinded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case TokenGenerated:
		return "token-generated"
	case Blinded:
		return "blinded"
	case AwaitingSignature:
		return "awaiting-signature"
	case Unblinded:
		return "unblinded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Unblinded || s == Failed
}

// Credential is the outcome of a successful attempt: the token and the
// signer's signature over its digest. It carries no blinding material.
type Credential struct {
	ElectionID string `json:"election_id"`
	Token      Token  `json:"token"`
	Signature  string `json:"signature"`
	RSAKeyID   string `json:"rsa_key_id"`
	Tracker    string `json:"tracker,omitempty"`
}

// Attempt is a single blind signing attempt. It owns the token and the
// blinding factor r, and it is the only place where r lives: r never leaves
// the Attempt and is wiped when the attempt completes, fails or is
// discarded. A failed attempt cannot be retried, a retry needs a new
// Attempt with a new token and a new r.
//
// An Attempt is not safe for concurrent use.
type Attempt struct {
	id         string
	electionID string
	pub        *blindrsa.PublicKey

	state     State
	token     Token
	r         *big.Int
	blinded   *big.Int
	signature *big.Int
	err       error
}

// NewAttempt starts an attempt for the given election and signer key.
func NewAttempt(electionID string, pub *blindrsa.PublicKey) (*Attempt, error) {
	if electionID == "" {
		return nil, fmt.Errorf("missing election id")
	}
	if err := pub.Validate(); err != nil {
		return nil, err
	}
	return &Attempt{
		id:         uuid.NewString(),
		electionID: electionID,
		pub:        pub,
		state:      Idle,
	}, nil
}

// ID returns the attempt identifier, safe to log.
func (a *Attempt) ID() string { return a.id }

// ElectionID returns the election the attempt belongs to.
func (a *Attempt) ElectionID() string { return a.electionID }

// KeyID returns the id of the signer key the attempt is bound to.
func (a *Attempt) KeyID() string { return a.pub.KeyID }

// State returns the current state.
func (a *Attempt) State() State { return a.state }

// Err returns the error that made the attempt fail, if any.
func (a *Attempt) Err() error { return a.err }

// String describes the attempt without any secret material.
func (a *Attempt) String() string {
	return fmt.Sprintf("attempt{id:%s election:%s key:%s state:%s}", a.id, a.electionID, a.pub.KeyID, a.state)
}

// GoString prevents %#v from dumping the secret fields.
func (a *Attempt) GoString() string { return a.String() }

func (a *Attempt) transition(from, to State) error {
	if a.state != from {
		return fmt.Errorf("%w: %s required, attempt is %s", ErrInvalidState, from, a.state)
	}
	log.Debugw("credential attempt transition", "attempt", a.id, "from", from.String(), "to", to.String())
	a.state = to
	return nil
}

// GenerateToken draws the voting token. Idle -> TokenGenerated.
func (a *Attempt) GenerateToken(rand io.Reader) error {
	if a.state != Idle {
		return a.transition(Idle, TokenGenerated)
	}
	t, err := GenToken(rand)
	if err != nil {
		return a.fail(err)
	}
	a.token = t
	return a.transition(Idle, TokenGenerated)
}

// Blind blinds the token digest with a fresh factor and returns the blinded
// value as hex, ready to be sent to the signer. TokenGenerated -> Blinded.
func (a *Attempt) Blind(rand io.Reader) (string, error) {
	if a.state != TokenGenerated {
		return "", a.transition(TokenGenerated, Blinded)
	}
	blinded, r, err := blindrsa.Blind(rand, a.token.String(), a.pub)
	if err != nil {
		return "", a.fail(err)
	}
	a.r, a.blinded = r, blinded
	if err := a.transition(TokenGenerated, Blinded); err != nil {
		return "", err
	}
	return crypto.BigToHex(blinded), nil
}

// BlindedHex returns the blinded token as hex once the attempt is blinded.
func (a *Attempt) BlindedHex() (string, error) {
	if a.state != Blinded && a.state != AwaitingSignature {
		return "", fmt.Errorf("%w: attempt is %s", ErrInvalidState, a.state)
	}
	return crypto.BigToHex(a.blinded), nil
}

// Submitted records that the blinded token was sent to the signer.
// Blinded -> AwaitingSignature.
func (a *Attempt) Submitted() error {
	return a.transition(Blinded, AwaitingSignature)
}

// Unblind removes the blinding factor from the signer's answer and checks
// the resulting signature against the token. AwaitingSignature -> Unblinded
// on success, Failed otherwise. The blinding factor is wiped in both cases.
func (a *Attempt) Unblind(signedBlindedHex string) error {
	if a.state != AwaitingSignature {
		return a.transition(AwaitingSignature, Unblinded)
	}
	signed, err := crypto.ParseHexInt(signedBlindedHex)
	if err != nil {
		return a.fail(fmt.Errorf("%w: %v", blindrsa.ErrBadSignature, err))
	}
	sig, err := blindrsa.Unblind(signed, a.r, a.pub)
	if err != nil {
		return a.fail(err)
	}
	if err := blindrsa.Verify(a.token.String(), sig, a.pub); err != nil {
		return a.fail(err)
	}
	a.wipe()
	a.signature = sig
	return a.transition(AwaitingSignature, Unblinded)
}

// Credential returns the credential of an unblinded attempt.
func (a *Attempt) Credential(tracker string) (*Credential, error) {
	if a.state != Unblinded {
		return nil, fmt.Errorf("%w: attempt is %s", ErrInvalidState, a.state)
	}
	return &Credential{
		ElectionID: a.electionID,
		Token:      a.token,
		Signature:  crypto.BigToHex(a.signature),
		RSAKeyID:   a.pub.KeyID,
		Tracker:    tracker,
	}, nil
}

// Fail marks the attempt as failed with the given cause and wipes its
// secrets. It is a no-op on terminal attempts.
func (a *Attempt) Fail(cause error) {
	if a.state.Terminal() {
		return
	}
	_ = a.fail(cause)
}

// Discard abandons the attempt, for instance when the context is cancelled
// while waiting for the signer. The token and r are wiped and the attempt
// can not be resumed.
func (a *Attempt) Discard() {
	if a.state == Unblinded {
		return
	}
	a.Fail(errors.New("attempt discarded"))
	a.token = ""
}

func (a *Attempt) fail(err error) error {
	log.Debugw("credential attempt failed", "attempt", a.id, "state", a.state.String(), "error", err.Error())
	a.wipe()
	a.state = Failed
	a.err = err
	return err
}

func (a *Attempt) wipe() {
	for _, v := range []*big.Int{a.r, a.blinded} {
		if v != nil {
			clear(v.Bits())
			v.SetInt64(0)
		}
	}
	a.r, a.blinded = nil, nil
}

// IssuanceMessage is the message a voter signs with their long-term key to
// request a blind signature. It binds the request to the election, the
// signer key and the blinded value.
func IssuanceMessage(electionID, rsaKeyID, blindedHex string) []byte {
	return []byte(fmt.Sprintf("blindvote issuance\nelection:%s\nkey:%s\nblinded:%s", electionID, rsaKeyID, blindedHex))
}
