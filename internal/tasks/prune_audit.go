package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// DefaultAuditRetentionDays applies when a prune task carries no retention.
const DefaultAuditRetentionDays = 30

// AuditPruner deletes sync audit events older than a retention window.
type AuditPruner interface {
	DeleteOldEvents(retention time.Duration) (int64, error)
}

// PruneAuditTask drops sync audit history past its retention window so the
// local cache database does not grow without bound.
type PruneAuditTask struct {
	RetentionDays int `json:"retention_days"`
}

func (t PruneAuditTask) retention() time.Duration {
	days := t.RetentionDays
	if days <= 0 {
		days = DefaultAuditRetentionDays
	}
	return time.Duration(days) * 24 * time.Hour
}

func (t PruneAuditTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "prune_audit_events",
		MaxAttempts: 2,
		Backoff:     10 * time.Minute,
		Timeout:     time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

func PruneAuditProcessor(pruner AuditPruner) backlite.QueueProcessor[PruneAuditTask] {
	return func(ctx context.Context, task PruneAuditTask) error {
		if pruner == nil {
			return errors.New("audit pruning not configured")
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		deleted, err := pruner.DeleteOldEvents(task.retention())
		if err != nil {
			return fmt.Errorf("prune audit events: %w", err)
		}
		if deleted > 0 {
			log.Printf("[TASK] Pruned %d sync audit events older than %s", deleted, task.retention())
		}
		return nil
	}
}

func NewPruneAuditQueue(pruner AuditPruner) backlite.Queue {
	return backlite.NewQueue(PruneAuditProcessor(pruner))
}
