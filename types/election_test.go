package types

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/blindvote/ballot"
)

func TestElectionWindow(t *testing.T) {
	c := qt.New(t)
	now := time.Now()
	start, end := now.Add(-time.Hour), now.Add(time.Hour)
	e := &Election{ID: "e1", IsActive: true, StartTime: &start, EndTime: &end}
	c.Assert(e.Open(now), qt.IsTrue)
	c.Assert(e.Open(end), qt.IsFalse)
	c.Assert(e.HasEnded(end.Add(time.Second)), qt.IsTrue)
	c.Assert(e.HasStarted(start.Add(-time.Second)), qt.IsFalse)

	e.IsActive = false
	c.Assert(e.Open(now), qt.IsFalse)

	open := &Election{ID: "e2", IsActive: true}
	c.Assert(open.Open(now), qt.IsTrue)
}

func TestElectionCBOR(t *testing.T) {
	c := qt.New(t)
	start := time.Unix(1700000000, 0).UTC()
	e := &Election{
		ID:         "e1",
		Name:       "Board",
		StartTime:  &start,
		IsActive:   true,
		RSAKeyID:   "rsa-0123456789ab",
		Candidates: []ballot.Candidate{{ID: "a", Name: "Alice"}, {ID: "b", Name: "Bob"}},
	}
	data, err := cbor.Marshal(e)
	c.Assert(err, qt.IsNil)
	var out Election
	c.Assert(cbor.Unmarshal(data, &out), qt.IsNil)
	c.Assert(out.ID, qt.Equals, e.ID)
	c.Assert(out.Candidates, qt.DeepEquals, e.Candidates)
	c.Assert(out.StartTime.Equal(start), qt.IsTrue)
	c.Assert(out.EndTime, qt.IsNil)
}

func TestElectionEligible(t *testing.T) {
	c := qt.New(t)
	e := &Election{ID: "e1"}
	c.Assert(e.Eligible("0xabc"), qt.IsTrue)

	e.Voters = []string{"0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"}
	c.Assert(e.Eligible("0x7e5f4552091a69125d5dfcb7b8c2659029395bdf"), qt.IsTrue)
	c.Assert(e.Eligible("0x2B5AD5c4795c026514f8317c7a215E218DcCD6cF"), qt.IsFalse)
}
