package booksync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/mrlokans/booksync/internal/assets"
	"github.com/mrlokans/booksync/internal/entities"
)

// migrationRun migrates the ephemeral references of one sync call. Successful
// migrations are memoized for the call, failures for the coordinator's life.
type migrationRun struct {
	c        *Coordinator
	migrated map[string]string
	failures int
}

func (c *Coordinator) newMigrationRun() *migrationRun {
	return &migrationRun{c: c, migrated: make(map[string]string)}
}

// text migrates a raw cache value, which may be JSON or plain text.
func (r *migrationRun) text(ctx context.Context, text string, mc assets.MigrationContext) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !json.Valid([]byte(trimmed)) {
		return r.ref(ctx, text, mc)
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return text, false
	}
	out, changed := r.value(ctx, v, mc)
	if !changed {
		return text, false
	}
	encoded, err := marshalJSON(out)
	if err != nil {
		log.Printf("[SYNC] Failed to re-encode migrated value: %v", err)
		return text, false
	}
	return encoded, true
}

func (r *migrationRun) value(ctx context.Context, v any, mc assets.MigrationContext) (any, bool) {
	switch t := v.(type) {
	case string:
		return r.ref(ctx, t, mc)
	case []any:
		changed := false
		for i, item := range t {
			if out, ok := r.value(ctx, item, mc); ok {
				t[i] = out
				changed = true
			}
		}
		return t, changed
	case map[string]any:
		changed := false
		for k, item := range t {
			if out, ok := r.value(ctx, item, mc); ok {
				t[k] = out
				changed = true
			}
		}
		return t, changed
	}
	return v, false
}

func (r *migrationRun) ref(ctx context.Context, ref string, mc assets.MigrationContext) (string, bool) {
	if !assets.IsEphemeral(ref) {
		return ref, false
	}
	if url, ok := r.migrated[ref]; ok {
		return url, true
	}
	if r.c.migrationFailed(ref) || r.c.migrator == nil {
		return ref, false
	}

	url, err := r.c.migrator.Migrate(ctx, ref, mc)
	if err != nil || url == "" {
		r.failures++
		if ctx.Err() == nil {
			r.c.recordFailedMigration(ref)
		}
		log.Printf("[SYNC] Asset migration failed for %s: %v", shortRef(ref), err)
		return ref, false
	}
	r.migrated[ref] = url
	return url, true
}

func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func shortRef(ref string) string {
	if len(ref) <= 50 {
		return ref
	}
	return ref[:50] + "..."
}

func (c *Coordinator) migrationFailed(ref string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, failed := c.failedMigrations[ref]
	return failed
}

func (c *Coordinator) recordFailedMigration(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedMigrations[ref] = struct{}{}
}

// ClearFailedMigrations lets previously failed references be retried.
func (c *Coordinator) ClearFailedMigrations() {
	c.mu.Lock()
	cleared := len(c.failedMigrations)
	clear(c.failedMigrations)
	c.mu.Unlock()

	log.Printf("[SYNC] Cleared failed migration cache")
	c.report(&entities.AuditEvent{
		EventType:   entities.AuditEventMigrate,
		Action:      "clear_failed_migrations",
		Description: fmt.Sprintf("%d failed reference(s) cleared", cleared),
		Status:      entities.AuditStatusSuccess,
	})
}

// FailedMigrationStats lists failed references, shortened to 50 characters.
func (c *Coordinator) FailedMigrationStats() entities.MigrationStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	urls := make([]string, 0, len(c.failedMigrations))
	for ref := range c.failedMigrations {
		urls = append(urls, shortRef(ref))
	}
	slices.Sort(urls)
	return entities.MigrationStats{Count: len(c.failedMigrations), URLs: urls}
}
