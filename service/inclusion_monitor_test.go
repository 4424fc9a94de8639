package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/blindvote/api/client"
	"github.com/vocdoni/blindvote/authority/authoritytest"
	"github.com/vocdoni/blindvote/crypto/ethereum"
	"github.com/vocdoni/blindvote/storage"
	"github.com/vocdoni/blindvote/voter"
	"go.vocdoni.io/dvote/db/metadb"
)

func TestInclusionMonitor(t *testing.T) {
	c := qt.New(t)
	a, _ := authoritytest.New(t)
	apiService := NewAPI(a, "127.0.0.1", 0, false)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.Assert(apiService.Start(ctx), qt.IsNil)
	defer apiService.Stop()

	cli, err := client.New(ctx, apiService.URL())
	c.Assert(err, qt.IsNil)
	signer := ethereum.NewSignKeys()
	c.Assert(signer.Generate(), qt.IsNil)
	store := storage.New(metadb.NewTest(t))
	session, err := voter.New((&voter.Config{Signer: signer, Storage: store}).WithAuthority(cli))
	c.Assert(err, qt.IsNil)

	_, err = session.PrepareCredential(ctx, authoritytest.ElectionID)
	c.Assert(err, qt.IsNil)
	receipt, err := session.Cast(ctx, authoritytest.ElectionID, "carol")
	c.Assert(err, qt.IsNil)

	monitor := NewInclusionMonitor(session, store, 50*time.Millisecond)
	c.Assert(monitor.Start(ctx), qt.IsNil)
	defer monitor.Stop()
	c.Assert(monitor.Start(ctx), qt.ErrorMatches, "service already running")

	select {
	case inc := <-monitor.Included():
		c.Assert(inc.Found, qt.IsTrue)
		c.Assert(inc.Receipt.Tracker, qt.Equals, receipt.Tracker)
		c.Assert(inc.Index, qt.Equals, uint64(0))
	case <-ctx.Done():
		c.Fatal("ballot inclusion not reported")
	}

	// reported once
	select {
	case <-monitor.Included():
		c.Fatal("ballot reported twice")
	case <-time.After(200 * time.Millisecond):
	}
}

// delayedBoard publishes the ballot after a number of lookups and then
// answers with a commitment mismatch for the "forged" election.
type delayedBoard struct {
	mu      sync.Mutex
	lookups int
}

func (d *delayedBoard) VerifyInclusion(_ context.Context, electionID string) (*voter.Inclusion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	r := &storage.Receipt{ElectionID: electionID}
	if electionID == "forged" {
		return &voter.Inclusion{Receipt: r, Found: true}, voter.ErrBallotMismatch
	}
	if d.lookups < 3 {
		return &voter.Inclusion{Receipt: r}, nil
	}
	return &voter.Inclusion{Receipt: r, Found: true, Index: 7}, nil
}

func TestInclusionMonitorPending(t *testing.T) {
	c := qt.New(t)
	store := storage.New(metadb.NewTest(t))
	for _, eid := range []string{"forged", "pending"} {
		c.Assert(store.SetReceipt(&storage.Receipt{ElectionID: eid, Tracker: "aa"}), qt.IsNil)
	}

	monitor := NewInclusionMonitor(&delayedBoard{}, store, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.Assert(monitor.Start(ctx), qt.IsNil)
	defer monitor.Stop()

	select {
	case inc := <-monitor.Mismatches():
		c.Assert(inc.Receipt.ElectionID, qt.Equals, "forged")
	case <-ctx.Done():
		c.Fatal("mismatch not reported")
	}
	select {
	case inc := <-monitor.Included():
		c.Assert(inc.Receipt.ElectionID, qt.Equals, "pending")
		c.Assert(inc.Index, qt.Equals, uint64(7))
	case <-ctx.Done():
		c.Fatal("inclusion not reported")
	}

	c.Assert(NewInclusionMonitor(&delayedBoard{}, store, 0).Start(ctx), qt.ErrorMatches, "invalid monitor interval 0s")
}

// slowBoard blocks every lookup until its context is cancelled and takes a
// while to return afterwards.
type slowBoard struct {
	entered  chan struct{}
	once     sync.Once
	returned atomic.Bool
}

func (b *slowBoard) VerifyInclusion(ctx context.Context, _ string) (*voter.Inclusion, error) {
	b.once.Do(func() { close(b.entered) })
	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	b.returned.Store(true)
	return nil, ctx.Err()
}

func TestInclusionMonitorStopWaits(t *testing.T) {
	c := qt.New(t)
	store := storage.New(metadb.NewTest(t))
	c.Assert(store.SetReceipt(&storage.Receipt{ElectionID: "e1", Tracker: "aa"}), qt.IsNil)

	board := &slowBoard{entered: make(chan struct{})}
	monitor := NewInclusionMonitor(board, store, 10*time.Millisecond)
	c.Assert(monitor.Start(context.Background()), qt.IsNil)

	select {
	case <-board.entered:
	case <-time.After(5 * time.Second):
		c.Fatal("lookup not started")
	}
	// no lookup is left running once Stop returns
	monitor.Stop()
	c.Assert(board.returned.Load(), qt.IsTrue)
	// stopping twice is a no-op
	monitor.Stop()

	// the monitor can be restarted on a fresh storage
	monitor = NewInclusionMonitor(&delayedBoard{}, storage.New(metadb.NewTest(t)), 10*time.Millisecond)
	c.Assert(monitor.Start(context.Background()), qt.IsNil)
	monitor.Stop()
	c.Assert(monitor.Start(context.Background()), qt.IsNil)
	monitor.Stop()
}
