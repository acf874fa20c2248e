package web

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/lorawiz/app/service"
	"github.com/umputun/lorawiz/app/service/request"
	"github.com/umputun/lorawiz/app/web/enums"
	"github.com/umputun/lorawiz/app/web/persistence"
)

// RunEvent is a single message of the run event stream
type RunEvent struct {
	Type enums.EventType `json:"type"`
	Data string          `json:"data"`
}

// activeRun keeps live state of a run and all its events for replay to late subscribers
type activeRun struct {
	mu      sync.Mutex
	info    persistence.RunInfo
	events  []RunEvent
	changed chan struct{} // closed and replaced on each change
	cancel  context.CancelFunc
	done    bool
}

func (a *activeRun) append(ev RunEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	a.notify()
}

// notify wakes up subscribers, must be called under lock
func (a *activeRun) notify() {
	close(a.changed)
	a.changed = make(chan struct{})
}

// since returns events starting from idx, done flag and channel to wait for the next change
func (a *activeRun) since(idx int) (events []RunEvent, done bool, changed <-chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if idx < len(a.events) {
		events = append(events, a.events[idx:]...)
	}
	return events, a.done, a.changed
}

func (a *activeRun) snapshot() (persistence.RunInfo, []RunEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.info, append([]RunEvent(nil), a.events...)
}

// startRun registers run and starts it in background, returns initial run info
func (s *Server) startRun(id, archive string, req request.Training) persistence.RunInfo {
	ctx, cancel := context.WithCancel(s.runCtx)
	run := &activeRun{
		info: persistence.RunInfo{ID: id, Archive: archive, DestDir: req.DestDir, ModelName: req.ModelName,
			LearningRate: req.LearningRate, BatchSize: req.BatchSize, Rank: req.Rank, DeleteAfter: req.DeleteAfter,
			Status: enums.RunStatusRunning, StartedAt: time.Now()},
		changed: make(chan struct{}),
		cancel:  cancel,
	}

	s.runsMu.Lock()
	s.runs[id] = run
	s.runsMu.Unlock()
	s.record(run.info)
	log.Printf("[INFO] run %s started for %s", id, archive)

	s.runsStarted.Add(1)
	go func() {
		defer s.runsStarted.Done()
		defer cancel()
		s.consume(run, s.runner.Stream(ctx, req))
		s.removeUpload(id)
	}()
	return run.info
}

// consume reads run updates into the event log until the stream is closed
func (s *Server) consume(run *activeRun, updates <-chan service.Update) {
	for upd := range updates {
		switch {
		case upd.Progress != nil:
			run.append(RunEvent{Type: enums.EventTypeProgress, Data: upd.Progress.String()})
		case upd.Result != nil:
			s.finish(run, enums.RunStatusSuccess, upd.Result, nil)
		case upd.Err != nil:
			status := enums.RunStatusFailed
			if errors.Is(upd.Err, service.ErrCanceled) {
				status = enums.RunStatusCanceled
			}
			s.finish(run, status, nil, upd.Err)
		}
	}
}

// finish sets final state of the run, adds the last event and stores the run
func (s *Server) finish(run *activeRun, status enums.RunStatus, res *service.Result, err error) {
	run.mu.Lock()
	run.info.Status = status
	run.info.FinishedAt = time.Now()
	ev := RunEvent{Type: enums.EventTypeDone}
	if res != nil {
		run.info.DatasetPath = res.DatasetPath
		run.info.Summary = res.Summary
		ev.Data = res.Summary
		if res.CleanupErr != nil {
			run.info.Error = "dataset cleanup failed: " + res.CleanupErr.Error()
			ev.Data += "\n" + run.info.Error
		}
	}
	if err != nil {
		run.info.Error = err.Error()
		ev = RunEvent{Type: enums.EventTypeFailure, Data: err.Error()}
	}
	run.events = append(run.events, ev)
	run.done = true
	run.notify()
	info := run.info
	run.mu.Unlock()

	s.record(info)
	log.Printf("[INFO] run %s finished, status: %s", info.ID, info.Status)
}

func (s *Server) record(info persistence.RunInfo) {
	err := s.store.RecordRun(request.RecordRun{ID: info.ID, Archive: info.Archive, DestDir: info.DestDir,
		DatasetPath: info.DatasetPath, ModelName: info.ModelName, LearningRate: info.LearningRate,
		BatchSize: info.BatchSize, Rank: info.Rank, DeleteAfter: info.DeleteAfter, Status: info.Status,
		Summary: info.Summary, Error: info.Error, StartedAt: info.StartedAt, FinishedAt: info.FinishedAt})
	if err != nil {
		log.Printf("[WARN] failed to record run %s: %v", info.ID, err)
	}
}

func (s *Server) getRun(id string) (*activeRun, bool) {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}

// cancelRun cancels active run, returns false if run is unknown or already finished
func (s *Server) cancelRun(id string) bool {
	run, ok := s.getRun(id)
	if !ok {
		return false
	}
	run.mu.Lock()
	done := run.done
	run.mu.Unlock()
	if done {
		return false
	}
	run.cancel()
	log.Printf("[INFO] run %s cancel requested", id)
	return true
}

// cleanupRuns removes finished runs older than history ttl from memory and store
func (s *Server) cleanupRuns() {
	threshold := time.Now().Add(-s.historyTTL)
	removed := 0
	s.runsMu.Lock()
	for id, run := range s.runs {
		run.mu.Lock()
		expired := run.done && run.info.FinishedAt.Before(threshold)
		run.mu.Unlock()
		if expired {
			delete(s.runs, id)
			removed++
		}
	}
	s.runsMu.Unlock()

	n, err := s.store.DeleteFinishedBefore(threshold)
	if err != nil {
		log.Printf("[WARN] failed to cleanup run history: %v", err)
		return
	}
	if removed > 0 || n > 0 {
		log.Printf("[DEBUG] run history cleanup, removed %d live and %d stored runs", removed, n)
	}
}

// uploadPath returns location of uploaded archive for the run
func (s *Server) uploadPath(id, fileName string) string {
	return filepath.Join(s.uploadDir, id, fileName)
}

func (s *Server) removeUpload(id string) {
	if err := os.RemoveAll(filepath.Join(s.uploadDir, id)); err != nil {
		log.Printf("[WARN] failed to remove upload of run %s: %v", id, err)
	}
}
