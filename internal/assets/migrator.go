// Package assets migrates ephemeral asset references (blob handles and inline
// data URLs) found in book content to durable object storage URLs.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mrlokans/booksync/internal/cachekeys"
	"github.com/mrlokans/booksync/internal/entities"
	"github.com/mrlokans/booksync/internal/storage"
)

var (
	ErrBlobUnavailable  = errors.New("blob reference cannot be resolved outside the originating session")
	ErrInvalidDataURL   = errors.New("invalid data URL")
	ErrUnsupportedType  = errors.New("unsupported asset type")
	ErrTooLarge         = errors.New("asset too large")
	ErrUnknownReference = errors.New("unrecognised asset reference")
)

// MigrationContext says where an asset belongs.
type MigrationContext struct {
	UserID    string
	BookID    string
	ChapterID string
	TabID     string
}

// BlobFetcher resolves a blob: reference to its content.
type BlobFetcher interface {
	FetchBlob(ctx context.Context, ref string) (mimeType string, data []byte, err error)
}

// AssetRecorder persists metadata of uploaded assets.
type AssetRecorder interface {
	SaveAsset(ctx context.Context, asset *entities.AssetRecord) error
}

type unavailableBlobs struct{}

func (unavailableBlobs) FetchBlob(context.Context, string) (string, []byte, error) {
	return "", nil, ErrBlobUnavailable
}

// Options configures a Migrator.
type Options struct {
	MaxSize       int64
	UploadsPerSec float64 // <= 0 disables pacing
	UploadBurst   int
	Blobs         BlobFetcher
	Records       AssetRecorder
}

// Migrator uploads ephemeral references to an ObjectStore.
type Migrator struct {
	store   storage.ObjectStore
	records AssetRecorder
	blobs   BlobFetcher
	limiter *rate.Limiter
	maxSize int64
	newID   func() string
	now     func() time.Time
}

func NewMigrator(store storage.ObjectStore, opts Options) *Migrator {
	m := &Migrator{
		store:   store,
		records: opts.Records,
		blobs:   opts.Blobs,
		maxSize: opts.MaxSize,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	if m.blobs == nil {
		m.blobs = unavailableBlobs{}
	}
	if m.maxSize <= 0 {
		m.maxSize = 50 * 1024 * 1024
	}
	if opts.UploadsPerSec > 0 {
		burst := opts.UploadBurst
		if burst <= 0 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(opts.UploadsPerSec), burst)
	}
	return m
}

// Migrate returns a durable URL for ref. Durable references are returned
// unchanged. The returned error is non-nil whenever no URL could be produced.
func (m *Migrator) Migrate(ctx context.Context, ref string, mc MigrationContext) (string, error) {
	if IsDurable(ref) {
		return ref, nil
	}

	var (
		mimeType string
		data     []byte
		err      error
	)
	switch {
	case strings.HasPrefix(ref, "data:"):
		mimeType, data, err = DecodeDataURL(ref)
	case strings.HasPrefix(ref, "blob:"):
		mimeType, data, err = m.blobs.FetchBlob(ctx, ref)
	default:
		err = ErrUnknownReference
	}
	if err != nil {
		return "", err
	}

	if !AllowedMimeTypes[mimeType] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	if int64(len(data)) > m.maxSize {
		return "", fmt.Errorf("%w: %d bytes, maximum is %dMB", ErrTooLarge, len(data), m.maxSize/1024/1024)
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	assetID := m.newID()
	ext := Extension(mimeType)
	key := StorageKey(mc, assetID, ext)

	if err := m.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), mimeType); err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}
	url, err := m.store.URL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to resolve asset URL: %w", err)
	}

	if m.records != nil {
		record := &entities.AssetRecord{
			ID:         assetID,
			UserID:     mc.UserID,
			BookID:     mc.BookID,
			ChapterID:  mc.ChapterID,
			TabID:      mc.TabID,
			FileName:   assetID + "." + ext,
			FileSize:   int64(len(data)),
			MimeType:   mimeType,
			AssetType:  DetectAssetType(mimeType),
			StorageKey: key,
			PublicURL:  url,
			UploadedAt: m.now(),
		}
		if err := m.records.SaveAsset(ctx, record); err != nil {
			// Metadata is best-effort, the object is already stored.
			log.Printf("[ASSETS] Failed to save metadata for %s: %v", key, err)
		}
	}

	log.Printf("[ASSETS] Migrated %s asset (%d bytes) to %s", mimeType, len(data), key)
	return url, nil
}

// StorageKey builds {user}/{book}/{chapter}/tab_{tab}/{assetID}.{ext},
// leaving out the parts that are not set. Every part is a single path
// segment: whitespace is normalized and slashes are escaped.
func StorageKey(mc MigrationContext, assetID, ext string) string {
	parts := []string{pathSegment(mc.UserID)}
	if seg := pathSegment(mc.BookID); seg != "" {
		parts = append(parts, seg)
	}
	if seg := pathSegment(mc.ChapterID); seg != "" {
		parts = append(parts, seg)
	}
	if seg := pathSegment(mc.TabID); seg != "" {
		parts = append(parts, "tab_"+seg)
	}
	return strings.Join(parts, "/") + "/" + assetID + "." + ext
}

func pathSegment(s string) string {
	s = cachekeys.Normalize(s)
	if s == "." || s == ".." {
		return strings.ReplaceAll(s, ".", "%2E")
	}
	return url.PathEscape(s)
}
