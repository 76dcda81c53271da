// Package sync periodically backs up the rule set to S3 and git as a legacy
// export document.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Destination is a backup target (S3, git, etc.).
type Destination interface {
	// Write stores the export document captured at version.
	Write(ctx context.Context, version int64, data []byte) error
}

// Scheduler runs periodic syncs to one or more destinations. A tick whose
// rules match the last fully written export is skipped. Rules are compared
// by content, since an import can restore an earlier version number.
type Scheduler struct {
	exporter     Exporter
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	mu        sync.Mutex
	lastRules []byte

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from e to the given
// destinations at the specified interval.
func NewScheduler(e Exporter, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		exporter:     e,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins periodic sync. It runs an initial sync immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current sync (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.SyncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce exports the rules and writes them to every destination. It
// reports whether anything was written.
func (s *Scheduler) SyncOnce(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.exporter.Export(ctx)
	if err != nil {
		s.logger.Error("sync export failed", "err", err)
		return false
	}
	version := doc.Rules.VersionID
	rules, err := json.Marshal(doc.Rules)
	if err != nil {
		s.logger.Error("sync export failed", "err", err)
		return false
	}
	if s.lastRules != nil && bytes.Equal(rules, s.lastRules) {
		s.logger.Debug("sync skipped, rules unchanged", "version", version)
		return false
	}

	var buf bytes.Buffer
	if err := encodeExport(&buf, doc); err != nil {
		s.logger.Error("sync export failed", "err", err)
		return false
	}
	data := buf.Bytes()

	failed := 0
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, version, data); err != nil {
			failed++
			s.logger.Error("sync destination write failed", "destination", fmt.Sprintf("%d", i), "version", version, "err", err)
		}
	}
	if failed == 0 {
		s.lastRules = rules
	}

	s.logger.Info("sync completed", "version", version, "destinations", len(s.destinations), "failed", failed, "bytes", len(data))
	return true
}
