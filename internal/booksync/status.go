package booksync

import (
	"context"
	"log"
	"slices"

	"github.com/mrlokans/booksync/internal/entities"
)

// Subscribe registers fn for LoadingState changes. fn is called synchronously
// after every mutation with its own copy of the state.
func (c *Coordinator) Subscribe(fn func(entities.LoadingState)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextObserverID
	c.nextObserverID++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// SubscribeStatus registers fn for SyncStatus changes.
func (c *Coordinator) SubscribeStatus(fn func(entities.SyncStatus)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextObserverID
	c.nextObserverID++
	c.statusObservers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.statusObservers, id)
		c.mu.Unlock()
	}
}

func (c *Coordinator) LoadingState() entities.LoadingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading.Clone()
}

func (c *Coordinator) Status() entities.SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.Clone()
}

// updateLoading applies fn under the lock and then notifies observers.
func (c *Coordinator) updateLoading(fn func(s *entities.LoadingState)) {
	c.mu.Lock()
	fn(&c.loading)
	snapshot := c.loading.Clone()
	observers := make([]func(entities.LoadingState), 0, len(c.observers))
	for _, o := range c.observers {
		observers = append(observers, o)
	}
	c.mu.Unlock()

	for _, o := range observers {
		o(snapshot.Clone())
	}
}

func (c *Coordinator) updateStatus(fn func(s *entities.SyncStatus)) {
	c.mu.Lock()
	fn(&c.status)
	snapshot := c.status.Clone()
	observers := make([]func(entities.SyncStatus), 0, len(c.statusObservers))
	for _, o := range c.statusObservers {
		observers = append(observers, o)
	}
	c.mu.Unlock()

	for _, o := range observers {
		o(snapshot.Clone())
	}
}

func (c *Coordinator) setBookListLoading(loading bool) {
	c.updateLoading(func(s *entities.LoadingState) {
		s.IsLoadingBookList = loading
	})
}

func (c *Coordinator) setBookLoading(bookID string, loading bool) {
	c.updateLoading(func(s *entities.LoadingState) {
		s.IsLoadingBook[bookID] = loading
	})
}

func (c *Coordinator) setSyncError(key, msg string) {
	c.updateLoading(func(s *entities.LoadingState) {
		s.SyncErrors[key] = msg
	})
}

func (c *Coordinator) markBookLoaded(bookID string) {
	now := c.now()
	c.updateLoading(func(s *entities.LoadingState) {
		s.LastSync[bookID] = now
		delete(s.SyncErrors, bookID)
	})
}

// beginSyncing and endSyncing nest, so IsSyncing stays true for the whole of
// a batch run.
func (c *Coordinator) beginSyncing() {
	c.updateStatus(func(s *entities.SyncStatus) {
		c.syncDepth++
		s.IsSyncing = true
	})
}

func (c *Coordinator) endSyncing() {
	c.updateStatus(func(s *entities.SyncStatus) {
		if c.syncDepth > 0 {
			c.syncDepth--
		}
		s.IsSyncing = c.syncDepth > 0
	})
}

func (c *Coordinator) addPending(bookID string) {
	c.updateStatus(func(s *entities.SyncStatus) {
		if !slices.Contains(s.PendingSync, bookID) {
			s.PendingSync = append(s.PendingSync, bookID)
		}
	})
}

func (c *Coordinator) removePending(bookID string) {
	c.updateStatus(func(s *entities.SyncStatus) {
		s.PendingSync = slices.DeleteFunc(s.PendingSync, func(id string) bool { return id == bookID })
	})
}

func (c *Coordinator) markSynced(bookID string) {
	now := c.now()
	c.updateStatus(func(s *entities.SyncStatus) {
		s.LastSync = &now
		s.PendingSync = slices.DeleteFunc(s.PendingSync, func(id string) bool { return id == bookID })
	})
}

// SetOnline records a network change. Coming back online starts a full sync
// in the background for the user resolved from ctx.
func (c *Coordinator) SetOnline(ctx context.Context, online bool) {
	var cameOnline bool
	c.updateStatus(func(s *entities.SyncStatus) {
		cameOnline = !s.IsOnline && online
		s.IsOnline = online
	})

	userID, _ := c.resolveUser(ctx, "")
	action := "went_offline"
	if online {
		action = "went_online"
	}
	c.report(&entities.AuditEvent{
		UserID:    userID,
		EventType: entities.AuditEventNetwork,
		Action:    action,
		Status:    entities.AuditStatusSuccess,
	})

	if !cameOnline {
		return
	}
	if userID == "" {
		log.Printf("[SYNC] Back online but no user is known, skipping sync")
		return
	}
	log.Printf("[SYNC] Back online, syncing books of %s", userID)
	c.inBackground("sync-all", userID, func(ctx context.Context) {
		c.SyncAllUserBooks(ctx)
	})
}

func (c *Coordinator) touchRecent(bookID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = slices.DeleteFunc(c.recent, func(id string) bool { return id == bookID })
	c.recent = append([]string{bookID}, c.recent...)
	if len(c.recent) > c.recentCapacity {
		c.recent = c.recent[:c.recentCapacity]
	}
}

func (c *Coordinator) forgetRecent(bookID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = slices.DeleteFunc(c.recent, func(id string) bool { return id == bookID })
}

// RecentBooks returns the most recently accessed book ids, newest first.
func (c *Coordinator) RecentBooks() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.recent)
}
