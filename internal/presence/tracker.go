// Package presence tracks which editors have recently changed the rule set.
//
// The server calls Record after every applied mutation, and again for
// changes relayed from other instances over NATS. A background reaper marks
// editors idle once they stop writing and evicts them later, so the roster
// stays small.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Entry is one editor's presence state.
type Entry struct {
	ClientID      string    `json:"client_id"`
	LastSeen      time.Time `json:"last_seen"`
	FirstSeen     time.Time `json:"first_seen"`
	LastOperation string    `json:"last_operation"`
	LastVersion   int64     `json:"last_version"`
	IdleSecs      float64   `json:"idle_secs"`
	EditCount     int64     `json:"edit_count"`
	Idle          bool      `json:"idle,omitempty"` // set by the reaper
	IdleSince     time.Time `json:"idle_since,omitempty"`
}

// Activity is what the tracker needs to know about an applied mutation.
type Activity struct {
	ClientID  string
	Operation string
	Version   int64
}

// ReaperConfig configures the background reaper.
type ReaperConfig struct {
	// IdleThreshold is how long an editor may go without writing before it
	// is marked idle. Default: 15 minutes.
	IdleThreshold time.Duration

	// EvictAfter is how long an idle editor is kept before it is removed.
	// Default: 30 minutes.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper runs. Default: 60 seconds.
	SweepInterval time.Duration

	// OnIdle is called, outside the lock, for each editor newly marked idle.
	OnIdle func(clientID string)
}

// Tracker keeps an in-memory roster of editors.
type Tracker struct {
	mu      sync.RWMutex
	editors map[string]*editorState

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type editorState struct {
	firstSeen   time.Time
	lastSeen    time.Time
	lastOp      string
	lastVersion int64
	editCount   int64
	idle        bool
	idleSince   time.Time
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{editors: make(map[string]*editorState)}
}

// Record notes an applied mutation by a.ClientID.
func (t *Tracker) Record(a Activity) {
	if a.ClientID == "" {
		return
	}

	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.editors[a.ClientID]
	if !ok {
		st = &editorState{firstSeen: now}
		t.editors[a.ClientID] = st
	}
	if st.idle {
		slog.Info("presence: editor active again", "client_id", a.ClientID)
		st.idle = false
		st.idleSince = time.Time{}
	}

	st.lastSeen = now
	st.lastOp = a.Operation
	if a.Version > st.lastVersion {
		st.lastVersion = a.Version
	}
	st.editCount++
}

// Roster returns the tracked editors, most recently active first. Editors
// idle for longer than staleThreshold are left out; pass 0 to include all.
func (t *Tracker) Roster(staleThreshold time.Duration) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	entries := make([]Entry, 0, len(t.editors))
	for id, st := range t.editors {
		idle := now.Sub(st.lastSeen)
		if staleThreshold > 0 && idle > staleThreshold {
			continue
		}
		entries = append(entries, Entry{
			ClientID:      id,
			LastSeen:      st.lastSeen,
			FirstSeen:     st.firstSeen,
			LastOperation: st.lastOp,
			LastVersion:   st.lastVersion,
			IdleSecs:      idle.Seconds(),
			EditCount:     st.editCount,
			Idle:          st.idle,
			IdleSince:     st.idleSince,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	return entries
}

// StartReaper launches the reaper goroutine. Call Stop to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.IdleThreshold == 0 {
		cfg.IdleThreshold = 15 * time.Minute
	}
	if cfg.EvictAfter == 0 {
		cfg.EvictAfter = 30 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 60 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"idle_threshold", cfg.IdleThreshold,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig) {
	now := time.Now()
	var newlyIdle []string

	t.mu.Lock()
	for id, st := range t.editors {
		if st.idle {
			if now.Sub(st.idleSince) > cfg.EvictAfter {
				delete(t.editors, id)
			}
			continue
		}
		if now.Sub(st.lastSeen) > cfg.IdleThreshold {
			st.idle = true
			st.idleSince = now
			newlyIdle = append(newlyIdle, id)
		}
	}
	t.mu.Unlock()

	for _, id := range newlyIdle {
		slog.Info("presence: editor idle", "client_id", id, "threshold", cfg.IdleThreshold)
		if cfg.OnIdle != nil {
			cfg.OnIdle(id)
		}
	}
}
