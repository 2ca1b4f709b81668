package booksync

import (
	"context"
	"time"

	"github.com/mrlokans/booksync/internal/assets"
	"github.com/mrlokans/booksync/internal/entities"
)

// LocalStore is the string key/value cache on the user's side.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// RemoteStore is the authoritative document store. Getters return nil, nil
// when no row matches.
type RemoteStore interface {
	ListByOwner(ctx context.Context, userID string) ([]entities.UserBookRecord, error)
	GetByIDAndOwner(ctx context.Context, id, userID string) (*entities.UserBookRecord, error)
	Upsert(ctx context.Context, record *entities.UserBookRecord) error
	DeleteByIDAndOwner(ctx context.Context, id, userID string) (bool, error)
	ListUpdatedSince(ctx context.Context, userID string, since time.Time) ([]entities.UserBookRecord, error)
	GetPublished(ctx context.Context, publicLink string) (*entities.UserBookRecord, error)
	Search(ctx context.Context, query string, tags []string, limit int) ([]entities.UserBookRecord, error)
}

// AssetMigrator turns an ephemeral asset reference into a durable URL.
type AssetMigrator interface {
	Migrate(ctx context.Context, ref string, mc assets.MigrationContext) (string, error)
}

// AssetCatalog lists and purges the durable assets of a book.
type AssetCatalog interface {
	ListBookAssets(ctx context.Context, userID, bookID string) ([]entities.AssetReference, error)
	DeleteBookAssets(ctx context.Context, userID, bookID string) error
}

// IdentityResolver yields the current user id, if any.
type IdentityResolver interface {
	ResolveUserID(ctx context.Context) (string, bool)
}

// Reporter receives audit events for completed operations.
type Reporter interface {
	LogAsync(event *entities.AuditEvent)
	LogBatch(userID, action string, succeeded, total int, failed []string)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type userKey struct{}

// WithUser scopes ctx to userID. It takes precedence over the IdentityResolver
// and is how background jobs carry the user they run for.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

func userFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}
