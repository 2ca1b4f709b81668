package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mrlokans/booksync/internal/database/audit"
	"github.com/mrlokans/booksync/internal/entities"
)

// Service provides high-level audit logging of sync activity.
type Service struct {
	repo    *audit.Repository
	pending sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.LogEvent(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	event.Description = truncate(event.Description, 500)
	event.ErrorMsg = truncate(event.ErrorMsg, 500)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.repo.LogEvent(event); err != nil {
			log.Printf("Failed to log audit event: %v", err)
		}
	}()
}

// Wait blocks until every LogAsync call has been written.
func (s *Service) Wait() {
	s.pending.Wait()
}

// LogBatch records the outcome of a sync-all or load-all run.
func (s *Service) LogBatch(userID, action string, succeeded, total int, failed []string) {
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventSync,
		Action:      action,
		Description: fmt.Sprintf("%d of %d books", succeeded, total),
		Status:      entities.AuditStatusSuccess,
	}

	metadata := map[string]any{
		"succeeded": succeeded,
		"total":     total,
		"failed":    failed,
	}
	if mdBytes, e := json.Marshal(metadata); e == nil {
		event.Metadata = string(mdBytes)
	}

	switch {
	case len(failed) == 0:
	case succeeded == 0:
		event.Status = entities.AuditStatusFailed
	default:
		event.Status = entities.AuditStatusPartial
	}

	s.LogAsync(event)
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(filter audit.Filter, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(filter, limit, offset)
}

// LastSync returns the most recent sync event of a book, or nil.
func (s *Service) LastSync(bookID string) (*entities.AuditEvent, error) {
	return s.repo.LastEvent(bookID, entities.AuditEventSync)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(cutoff)
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
