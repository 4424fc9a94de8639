package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/blindvote/log"
	"github.com/vocdoni/blindvote/storage"
	"github.com/vocdoni/blindvote/voter"
)

// InclusionVerifier checks a stored receipt against the bulletin board.
type InclusionVerifier interface {
	VerifyInclusion(ctx context.Context, electionID string) (*voter.Inclusion, error)
}

// InclusionMonitor represents a service that periodically looks up the
// stored receipts on the bulletin board until each ballot is published.
// Every ballot found is sent once on the Included channel, a ballot found
// with another commitment is reported on Mismatches.
type InclusionMonitor struct {
	verifier InclusionVerifier
	storage  *storage.Storage
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     map[string]bool

	included   chan *voter.Inclusion
	mismatches chan *voter.Inclusion
}

// NewInclusionMonitor creates a new InclusionMonitor service.
func NewInclusionMonitor(verifier InclusionVerifier, stg *storage.Storage, interval time.Duration) *InclusionMonitor {
	return &InclusionMonitor{
		verifier:   verifier,
		storage:    stg,
		interval:   interval,
		done:       make(map[string]bool),
		included:   make(chan *voter.Inclusion, 16),
		mismatches: make(chan *voter.Inclusion, 16),
	}
}

// Included returns the channel of published ballots.
func (im *InclusionMonitor) Included() <-chan *voter.Inclusion {
	return im.included
}

// Mismatches returns the channel of ballots published with a commitment
// that does not match the receipt.
func (im *InclusionMonitor) Mismatches() <-chan *voter.Inclusion {
	return im.mismatches
}

// Start begins monitoring the receipts. It returns an error if the service
// is already running.
func (im *InclusionMonitor) Start(ctx context.Context) error {
	im.mu.Lock()
	defer im.mu.Unlock()

	if im.cancel != nil {
		return fmt.Errorf("service already running")
	}
	if im.interval <= 0 {
		return fmt.Errorf("invalid monitor interval %s", im.interval)
	}
	ctx, im.cancel = context.WithCancel(ctx)
	im.wg.Add(1)
	go func() {
		defer im.wg.Done()
		im.monitorReceipts(ctx)
	}()
	return nil
}

// Stop halts the monitoring service and waits for the running lookup to
// return, so the storage can be closed right after.
func (im *InclusionMonitor) Stop() {
	im.mu.Lock()
	cancel := im.cancel
	im.cancel = nil
	im.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	im.wg.Wait()
}

func (im *InclusionMonitor) monitorReceipts(ctx context.Context) {
	ticker := time.NewTicker(im.interval)
	defer ticker.Stop()
	for {
		im.check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// check verifies every pending receipt once.
func (im *InclusionMonitor) check(ctx context.Context) {
	receipts, err := im.storage.ListReceipts()
	if err != nil {
		log.Warnw("failed to list receipts", "error", err.Error())
		return
	}
	for _, r := range receipts {
		if ctx.Err() != nil {
			return
		}
		im.mu.Lock()
		seen := im.done[r.ElectionID]
		im.mu.Unlock()
		if seen {
			continue
		}
		inc, err := im.verifier.VerifyInclusion(ctx, r.ElectionID)
		out := im.included
		switch {
		case errors.Is(err, voter.ErrBallotMismatch):
			log.Warnw("published ballot does not match receipt", "election", r.ElectionID, "tracker", r.Tracker)
			out = im.mismatches
		case err != nil:
			log.Debugw("inclusion lookup failed", "election", r.ElectionID, "error", err.Error())
			continue
		case !inc.Found:
			log.Debugw("ballot not yet published", "election", r.ElectionID, "count", inc.Count)
			continue
		default:
			log.Infow("ballot published", "election", r.ElectionID, "index", inc.Index)
		}
		im.mu.Lock()
		im.done[r.ElectionID] = true
		im.mu.Unlock()
		select {
		case out <- inc:
		case <-ctx.Done():
			return
		}
	}
}
