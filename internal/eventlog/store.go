// Package eventlog owns all on-disk state: an append-only ndjson event log
// plus a periodic snapshot that shortens replay. The projection held by the
// store is derived purely by applying events, so a crash at any point is
// recovered by reloading snapshot.json and replaying the tail of
// events.ndjson.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haasonsaas/conduit/internal/state"
	"github.com/haasonsaas/conduit/pkg/models"
)

const (
	eventsFile   = "events.ndjson"
	snapshotFile = "snapshot.json"

	// SnapshotEveryEvents forces a snapshot after this many appends.
	SnapshotEveryEvents = 50

	// SnapshotEverySeconds forces a snapshot after this much wall-clock
	// time, provided at least one event was appended since the last one.
	SnapshotEverySeconds = 5
)

// Options configures a Store. The zero value is production-ready.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock overrides time.Now for tests.
	Clock func() time.Time

	// Fatal is invoked on unrecoverable disk errors during append or
	// snapshot. Corruption beats silent drift, so the default logs and
	// exits the process. Tests may substitute a panic.
	Fatal func(err error)
}

// Store is the single durable writer. Appends are serialized; the seq of
// each event is assigned under the same lock that writes it, so seq order
// equals file order.
type Store struct {
	mu     sync.Mutex
	dir    string
	f      *os.File
	st     *state.State
	logger *slog.Logger
	clock  func() time.Time
	fatal  func(err error)

	eventsSinceSnap int
	lastSnapAt      time.Time
}

// snapshotOnDisk mirrors state.Snapshot but keeps Seq as a pointer so a
// snapshot file that lacks a seq is detected and rejected rather than
// silently treated as zero.
type snapshotOnDisk struct {
	Version  int                        `json:"version"`
	Seq      *uint64                    `json:"seq"`
	Sessions map[string]*models.Session `json:"sessions"`
	Jobs     map[string]*models.Job     `json:"jobs"`
	Dedupe   map[string]string          `json:"dedupe"`
}

// Open loads the snapshot (if any), replays the event tail, and leaves the
// store ready for appends. It does not run crash recovery; call Recover
// after Open so callers can observe which jobs were marked.
func Open(dir string, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Fatal == nil {
		logger := opts.Logger
		opts.Fatal = func(err error) {
			logger.Error("event log unrecoverable", "error", err)
			os.Exit(1)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	s := &Store{
		dir:        dir,
		st:         state.New(),
		logger:     opts.Logger.With("component", "eventlog"),
		clock:      opts.Clock,
		fatal:      opts.Fatal,
		lastSnapAt: opts.Clock(),
	}

	if err := s.loadSnapshot(); err != nil {
		return nil, err
	}
	if err := s.replay(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filepath.Join(dir, eventsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	s.f = f

	sessions, jobs := s.st.Counts()
	s.logger.Info("state restored",
		"seq", s.st.Seq(), "sessions", sessions, "jobs", jobs)
	return s, nil
}

func (s *Store) loadSnapshot() error {
	data, err := os.ReadFile(filepath.Join(s.dir, snapshotFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshotOnDisk
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	if snap.Version != state.SnapshotVersion {
		return fmt.Errorf("snapshot version %d not supported", snap.Version)
	}
	if snap.Seq == nil {
		return fmt.Errorf("snapshot has no seq; refusing to guess a replay start")
	}

	s.st.Restore(&state.Snapshot{
		Version:  snap.Version,
		Seq:      *snap.Seq,
		Sessions: snap.Sessions,
		Jobs:     snap.Jobs,
		Dedupe:   snap.Dedupe,
	})
	return nil
}

func (s *Store) replay() error {
	f, err := os.Open(filepath.Join(s.dir, eventsFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open event log for replay: %w", err)
	}
	defer f.Close()

	base := s.st.Seq()
	applied := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev models.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("corrupt event at line %d: %w", lineNo, err)
		}
		if ev.Seq <= base {
			continue // covered by the snapshot
		}
		if err := s.st.Apply(ev); err != nil {
			return fmt.Errorf("replay line %d: %w", lineNo, err)
		}
		applied++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan event log: %w", err)
	}
	if applied > 0 {
		s.logger.Info("replayed event tail", "events", applied, "seq", s.st.Seq())
	}
	return nil
}

// Recover transitions every job left in state running to
// unknown_after_crash, writing a durable JobMarkedUnknownAfterCrash event
// per job. Returns the marked job IDs in deterministic order. Running it
// again is a no-op: no job is left running after the first pass.
func (s *Store) Recover() ([]string, error) {
	ids := s.st.RunningJobIDs()
	for _, id := range ids {
		job, ok := s.st.Job(id)
		if !ok {
			return nil, fmt.Errorf("recovery: job %s vanished", id)
		}
		_, err := s.Append(models.EventJobMarkedUnknownAfterCrash, models.JobMarkedUnknownAfterCrashPayload{
			ThreadID: job.ThreadID,
			JobID:    id,
		})
		if err != nil {
			return nil, err
		}
		s.logger.Warn("job was running at crash, marked unknown",
			"job_id", id, "thread_id", job.ThreadID)
	}
	return ids, nil
}

// State returns the projection. Callers read through its copy-returning
// accessors; all mutation goes through Append.
func (s *Store) State() *state.State {
	return s.st
}

// Append assigns the next seq, writes the envelope with a durability
// barrier, applies it to the projection, and then considers a snapshot.
// Disk failures are fatal (see Options.Fatal); the returned error covers
// payload marshaling and event application only.
func (s *Store) Append(t models.EventType, payload any) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(payload)
	if err != nil {
		return models.Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	ev := models.Event{
		Seq:     s.st.Seq() + 1,
		TS:      s.clock().UTC(),
		Type:    t,
		Payload: raw,
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return models.Event{}, fmt.Errorf("marshal event: %w", err)
	}

	if _, err := s.f.Write(append(line, '\n')); err != nil {
		s.fatal(fmt.Errorf("append event %d: %w", ev.Seq, err))
		return models.Event{}, err
	}
	if err := s.f.Sync(); err != nil {
		s.fatal(fmt.Errorf("sync event log at %d: %w", ev.Seq, err))
		return models.Event{}, err
	}

	if err := s.st.Apply(ev); err != nil {
		// The event is durable but inapplicable: replay would hit the
		// same error at startup, so surface it loudly.
		return models.Event{}, fmt.Errorf("apply appended event: %w", err)
	}

	s.eventsSinceSnap++
	s.maybeSnapshotLocked()
	return ev, nil
}

func (s *Store) maybeSnapshotLocked() {
	if s.eventsSinceSnap == 0 {
		return
	}
	if s.eventsSinceSnap < SnapshotEveryEvents &&
		s.clock().Sub(s.lastSnapAt) < SnapshotEverySeconds*time.Second {
		return
	}
	if err := s.writeSnapshotLocked(); err != nil {
		s.fatal(fmt.Errorf("write snapshot: %w", err))
	}
}

// Snapshot forces a snapshot write regardless of the periodic policy.
func (s *Store) Snapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSnapshotLocked()
}

func (s *Store) writeSnapshotLocked() error {
	snap := s.st.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	final := filepath.Join(s.dir, snapshotFile)
	tmp := final + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		return err
	}

	s.eventsSinceSnap = 0
	s.lastSnapAt = s.clock()
	s.logger.Debug("snapshot written", "seq", snap.Seq)
	return nil
}

// Close flushes a final snapshot and closes the log file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventsSinceSnap > 0 {
		if err := s.writeSnapshotLocked(); err != nil {
			s.logger.Error("final snapshot failed", "error", err)
		}
	}
	return s.f.Close()
}
