package assets

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/mrlokans/booksync/internal/entities"
)

// AllowedMimeTypes lists the content types accepted for upload.
var AllowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"image/svg+xml":   true,
	"application/pdf": true,
	"video/mp4":       true,
	"video/webm":      true,
	"video/ogg":       true,
	"audio/mpeg":      true,
	"audio/wav":       true,
	"audio/ogg":       true,
}

var extensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"image/svg+xml":   "svg",
	"application/pdf": "pdf",
	"video/mp4":       "mp4",
	"video/webm":      "webm",
	"video/ogg":       "ogv",
	"audio/mpeg":      "mp3",
	"audio/wav":       "wav",
	"audio/ogg":       "ogg",
}

// ephemeralPrefixes mark references that only live inside one client session.
var ephemeralPrefixes = []string{"blob:", "data:image/", "data:application/pdf"}

// IsEphemeral reports whether ref must be migrated before it can be shared.
func IsEphemeral(ref string) bool {
	for _, p := range ephemeralPrefixes {
		if strings.HasPrefix(ref, p) {
			return true
		}
	}
	return false
}

// IsDurable reports whether ref already points at remote storage.
func IsDurable(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}

// Extension maps a MIME type to a file extension, "bin" when unknown.
func Extension(mimeType string) string {
	if ext, ok := extensions[mimeType]; ok {
		return ext
	}
	return "bin"
}

// DetectAssetType classifies a MIME type.
func DetectAssetType(mimeType string) entities.AssetType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return entities.AssetTypeImage
	case mimeType == "application/pdf":
		return entities.AssetTypePDF
	case strings.HasPrefix(mimeType, "video/"):
		return entities.AssetTypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return entities.AssetTypeAudio
	}
	return entities.AssetTypeDocument
}

// DecodeDataURL splits an RFC 2397 data URL into its MIME type and payload.
func DecodeDataURL(ref string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: scheme", ErrInvalidDataURL)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURL)
	}

	params := strings.Split(header, ";")
	mimeType := strings.ToLower(strings.TrimSpace(params[0]))
	if mimeType == "" {
		mimeType = "text/plain"
	}
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some encoders drop the padding.
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
			}
		}
		return mimeType, data, nil
	}

	text, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return mimeType, []byte(text), nil
}
