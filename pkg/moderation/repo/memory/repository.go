package memory

import (
	"github.com/tendant/simple-moderation/pkg/moderation"
)

// Repository implements moderation.Repository using in-memory storage. Each
// kind has an independent backend.
type Repository struct {
	articles   *Backend[moderation.ArticleFields]
	categories *Backend[moderation.CategoryFields]
	tags       *Backend[moderation.TagFields]
	comments   *CommentStore
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		articles:   NewBackend[moderation.ArticleFields](),
		categories: NewBackend[moderation.CategoryFields](),
		tags:       NewBackend[moderation.TagFields](),
		comments:   NewCommentStore(),
	}
}

func (r *Repository) Articles() moderation.Backend[moderation.ArticleFields] {
	return r.articles
}

func (r *Repository) Categories() moderation.Backend[moderation.CategoryFields] {
	return r.categories
}

func (r *Repository) Tags() moderation.Backend[moderation.TagFields] {
	return r.tags
}

func (r *Repository) Comments() moderation.CommentStore {
	return r.comments
}
