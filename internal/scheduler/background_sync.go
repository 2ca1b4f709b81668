package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"

	"github.com/mrlokans/booksync/internal/booksync"
	"github.com/mrlokans/booksync/internal/tasks"
)

// Syncer is the part of the coordinator a scheduled run drives inline.
type Syncer interface {
	BackgroundSyncRecent(ctx context.Context, userID string)
	CheckForBackendUpdates(ctx context.Context) (int, error)
}

// Enqueuer hands scheduled work to the persistent task queue.
type Enqueuer interface {
	Enqueue(task backlite.Task) (string, error)
}

// Options configures the background sync scheduler.
type Options struct {
	Schedule      string
	UserID        string
	RetentionDays int
	Timeout       time.Duration
}

// BackgroundSyncScheduler periodically refreshes the book list, the recently
// opened books and anything changed remotely since the last sync.
type BackgroundSyncScheduler struct {
	syncer Syncer
	queue  Enqueuer
	opts   Options

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	isSyncing  bool
	cancelFunc context.CancelFunc
	runCtx     context.Context
}

// NewBackgroundSyncScheduler creates a scheduler. When queue is non-nil each
// run is enqueued as tasks instead of executed in the cron goroutine.
func NewBackgroundSyncScheduler(syncer Syncer, queue Enqueuer, opts Options) *BackgroundSyncScheduler {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	return &BackgroundSyncScheduler{
		syncer: syncer,
		queue:  queue,
		opts:   opts,
		cron:   cron.New(cron.WithParser(parser)),
		runCtx: context.Background(),
	}
}

// Start schedules the sync job. A missing user disables the scheduler.
func (s *BackgroundSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if s.opts.UserID == "" {
		log.Printf("[SYNC] Background scheduler: no user configured, skipping")
		return nil
	}

	if err := ValidateCronSchedule(s.opts.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.opts.Schedule, err)
	}

	entryID, err := s.cron.AddFunc(s.opts.Schedule, s.runSync)
	if err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	s.entryID = entryID

	s.runCtx, s.cancelFunc = context.WithCancel(ctx)
	s.cron.Start()
	s.isRunning = true

	nextRun, _ := NextRunTime(s.opts.Schedule, time.Now())
	log.Printf("[SYNC] Background scheduler: started with schedule '%s' (%s). Next run: %v",
		s.opts.Schedule, GetCronDescription(s.opts.Schedule), nextRun)

	go func(done <-chan struct{}) {
		<-done
		s.Stop()
	}(s.runCtx.Done())

	return nil
}

// Stop stops the cron and waits for a running job to finish.
func (s *BackgroundSyncScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}
	s.mu.Unlock()

	// The running job takes mu on exit, so wait without holding it.
	<-s.cron.Stop().Done()

	log.Printf("[SYNC] Background scheduler: stopped")
}

// RunNow triggers an immediate run.
func (s *BackgroundSyncScheduler) RunNow() {
	go s.runSync()
}

// IsRunning returns whether the scheduler is active
func (s *BackgroundSyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// IsSyncing returns whether a run is currently in progress
func (s *BackgroundSyncScheduler) IsSyncing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isSyncing
}

// GetNextRunTime returns when the next run will occur
func (s *BackgroundSyncScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

func (s *BackgroundSyncScheduler) runSync() {
	s.mu.Lock()
	if s.isSyncing {
		s.mu.Unlock()
		log.Printf("[SYNC] Background sync: skipped (already syncing)")
		return
	}
	s.isSyncing = true
	parent := s.runCtx
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isSyncing = false
		s.mu.Unlock()
	}()

	if s.queue != nil {
		s.enqueueRun()
		return
	}

	ctx, cancel := context.WithTimeout(booksync.WithUser(parent, s.opts.UserID), s.opts.Timeout)
	defer cancel()

	startTime := time.Now()
	s.syncer.BackgroundSyncRecent(ctx, s.opts.UserID)

	reloaded, err := s.syncer.CheckForBackendUpdates(ctx)
	if err != nil {
		log.Printf("[SYNC] Background sync: checking remote updates failed: %v", err)
		return
	}
	log.Printf("[SYNC] Background sync: done in %v, %d book(s) reloaded",
		time.Since(startTime).Round(time.Millisecond), reloaded)
}

func (s *BackgroundSyncScheduler) enqueueRun() {
	jobs := []backlite.Task{
		tasks.BackgroundSyncTask{UserID: s.opts.UserID},
		tasks.CheckUpdatesTask{UserID: s.opts.UserID},
	}
	if s.opts.RetentionDays > 0 {
		jobs = append(jobs, tasks.PruneAuditTask{RetentionDays: s.opts.RetentionDays})
	}
	for _, job := range jobs {
		id, err := s.queue.Enqueue(job)
		if err != nil {
			log.Printf("[SYNC] Background sync: %v", err)
			continue
		}
		log.Printf("[SYNC] Background sync: queued %s (%s)", job.Config().Name, id)
	}
}
