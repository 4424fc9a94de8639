package types

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/vocdoni/blindvote/ballot"
)

// Election is an election as known by the election authority.
type Election struct {
	ID         string             `json:"id"                   cbor:"0,keyasint,omitempty"`
	Name       string             `json:"name"                 cbor:"1,keyasint,omitempty"`
	StartTime  *time.Time         `json:"start_time"           cbor:"2,keyasint,omitempty"`
	EndTime    *time.Time         `json:"end_time"             cbor:"3,keyasint,omitempty"`
	IsActive   bool               `json:"is_active"            cbor:"4,keyasint,omitempty"`
	RSAKeyID   string             `json:"rsa_key_id,omitempty" cbor:"5,keyasint,omitempty"`
	Candidates []ballot.Candidate `json:"candidates"           cbor:"6,keyasint,omitempty"`
	// Voters is the list of addresses allowed to request a credential. An
	// empty list lets any signing key request one, once.
	Voters []string `json:"voters,omitempty" cbor:"7,keyasint,omitempty"`
}

// HasStarted reports whether the election started at the given time. An
// election without start time starts when it is activated.
func (e *Election) HasStarted(now time.Time) bool {
	return e.StartTime == nil || !now.Before(*e.StartTime)
}

// HasEnded reports whether the election ended at the given time.
func (e *Election) HasEnded(now time.Time) bool {
	return e.EndTime != nil && !now.Before(*e.EndTime)
}

// Open reports whether ballots can be cast at the given time.
func (e *Election) Open(now time.Time) bool {
	return e.IsActive && e.HasStarted(now) && !e.HasEnded(now)
}

// Eligible reports whether the address may request a credential.
func (e *Election) Eligible(address string) bool {
	if len(e.Voters) == 0 {
		return true
	}
	for _, v := range e.Voters {
		if strings.EqualFold(v, address) {
			return true
		}
	}
	return false
}

func (e *Election) String() string {
	data, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(data)
}
