package moderation

import (
	"context"
	"io"
	"time"
)

// CanonicalStore holds the live records of one kind.
type CanonicalStore[T any] interface {
	// Create assigns the record a new ID. A slug collision returns ErrConflict.
	Create(ctx context.Context, record *Record[T]) error
	Get(ctx context.Context, id int64) (*Record[T], error)
	GetBySlug(ctx context.Context, slug string) (*Record[T], error)
	ExistsBySlug(ctx context.Context, slug string) (bool, error)
	Update(ctx context.Context, record *Record[T]) error
	Delete(ctx context.Context, id int64) error
	// List returns records newest first. An empty createdBy lists all.
	List(ctx context.Context, createdBy string) ([]*Record[T], error)
	ListByIDs(ctx context.Context, ids []int64) ([]*Record[T], error)
}

// ProposalStore holds the proposals of one kind.
type ProposalStore[T any] interface {
	// Create assigns the proposal a new ID. A second pending proposal for the
	// same slug or canonical ID returns ErrConflict.
	Create(ctx context.Context, proposal *Proposal[T]) error
	Get(ctx context.Context, id int64) (*Proposal[T], error)
	Update(ctx context.Context, proposal *Proposal[T]) error
	// DeleteRejected removes a proposal only while it is rejected.
	DeleteRejected(ctx context.Context, id int64) error
	// List returns proposals newest first.
	List(ctx context.Context, filter ProposalFilter) ([]*Proposal[T], error)
}

// Tables groups the two stores of one kind.
type Tables[T any] interface {
	Canonical() CanonicalStore[T]
	Proposals() ProposalStore[T]
}

// Backend is the storage of one kind. WithTx runs fn atomically: either every
// write made through tx commits or none does.
type Backend[T any] interface {
	Tables[T]
	WithTx(ctx context.Context, fn func(tx Tables[T]) error) error
}

// Repository provides the backends of all kinds.
type Repository interface {
	Articles() Backend[ArticleFields]
	Categories() Backend[CategoryFields]
	Tags() Backend[TagFields]
	Comments() CommentStore
}

// BlobStore is the low-level byte storage behind AssetStore.
type BlobStore interface {
	Upload(ctx context.Context, key string, r io.Reader, mimeType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
}

// AssetStore stages, promotes and deletes uploaded image assets.
type AssetStore interface {
	SaveStaged(ctx context.Context, upload AssetUpload) (string, error)
	Promote(ctx context.Context, path string) (string, error)
	Delete(ctx context.Context, path string) error
}

// Locker is a distributed mutual-exclusion lock. TryLock returns false
// without error when the lock is held elsewhere.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// CommentStore persists article comments. Comments are published directly
// and never staged.
type CommentStore interface {
	Create(ctx context.Context, comment *Comment) error
	Get(ctx context.Context, id int64) (*Comment, error)
	// ListByArticle returns the comments of an article, oldest first.
	ListByArticle(ctx context.Context, articleID int64) ([]*Comment, error)
	Update(ctx context.Context, comment *Comment) error
	Delete(ctx context.Context, id int64) error
}
