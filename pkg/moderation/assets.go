package moderation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxAssetBytes is the size ceiling of an uploaded asset.
const DefaultMaxAssetBytes int64 = 2 << 20

const (
	stagedPrefix = "staged/"
	publicPrefix = "public/"
)

// Allowed image extensions and the content type each must carry.
// SVG is excluded: it is scriptable.
var allowedAssetTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
}

// AssetUpload is an uploaded file as received from a caller.
type AssetUpload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// BlobAssetStore is an AssetStore on top of a BlobStore. Staged assets live
// under "staged/" and promoted ones under "public/".
type BlobAssetStore struct {
	blob     BlobStore
	maxBytes int64
}

// AssetOption configures a BlobAssetStore
type AssetOption func(*BlobAssetStore)

// WithMaxAssetBytes overrides the upload size ceiling
func WithMaxAssetBytes(n int64) AssetOption {
	return func(s *BlobAssetStore) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// NewAssetStore creates an asset store backed by blob
func NewAssetStore(blob BlobStore, opts ...AssetOption) *BlobAssetStore {
	s := &BlobAssetStore{blob: blob, maxBytes: DefaultMaxAssetBytes}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateAsset checks filename, declared type and content of an upload and
// returns the content type the asset is stored with.
func ValidateAsset(filename, declared string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := allowedAssetTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: extension %q is not allowed", ErrAssetRejected, ext)
	}
	if len(content) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrAssetRejected)
	}

	if declared != "" {
		mt, _, err := mime.ParseMediaType(declared)
		if err != nil || mt != want {
			return "", fmt.Errorf("%w: declared type %q does not match extension %q", ErrAssetRejected, declared, ext)
		}
	}

	sniffed := http.DetectContentType(content)
	if sniffed == want {
		return want, nil
	}
	// HEIC/HEIF are not sniffable.
	if sniffed == "application/octet-stream" && (ext == ".heic" || ext == ".heif") {
		return want, nil
	}
	return "", fmt.Errorf("%w: content type %q does not match extension %q", ErrAssetRejected, sniffed, ext)
}

// SaveStaged validates the upload and stores it under a fresh staged key.
func (s *BlobAssetStore) SaveStaged(ctx context.Context, upload AssetUpload) (string, error) {
	if upload.Body == nil {
		return "", fmt.Errorf("%w: missing file body", ErrAssetRejected)
	}
	content, err := io.ReadAll(io.LimitReader(upload.Body, s.maxBytes+1))
	if err != nil {
		return "", &AssetError{Path: upload.Filename, Op: "read", Err: err}
	}
	if int64(len(content)) > s.maxBytes {
		return "", fmt.Errorf("%w: file exceeds %d bytes", ErrAssetRejected, s.maxBytes)
	}

	mimeType, err := ValidateAsset(upload.Filename, upload.ContentType, content)
	if err != nil {
		return "", err
	}

	key := stagedPrefix + uuid.NewString() + strings.ToLower(filepath.Ext(upload.Filename))
	if err := s.blob.Upload(ctx, key, bytes.NewReader(content), mimeType); err != nil {
		return "", &AssetError{Path: key, Op: "upload", Err: err}
	}
	return key, nil
}

// Promote copies a staged asset to its public location. The staged object is
// left in place for the caller to delete.
func (s *BlobAssetStore) Promote(ctx context.Context, path string) (string, error) {
	if !strings.HasPrefix(path, stagedPrefix) {
		return "", &AssetError{Path: path, Op: "promote", Err: fmt.Errorf("%w: not a staged asset", ErrBadRequest)}
	}
	dst := publicPrefix + strings.TrimPrefix(path, stagedPrefix)
	if err := s.blob.Copy(ctx, path, dst); err != nil {
		return "", &AssetError{Path: path, Op: "promote", Err: err}
	}
	return dst, nil
}

// Delete removes an asset. An empty or already missing path is a no-op.
func (s *BlobAssetStore) Delete(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	if err := s.blob.Delete(ctx, path); err != nil && !errors.Is(err, ErrNotFound) {
		return &AssetError{Path: path, Op: "delete", Err: err}
	}
	return nil
}
