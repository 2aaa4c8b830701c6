package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tendant/simple-moderation/pkg/moderation"
)

// CommentStore implements moderation.CommentStore using in-memory storage
type CommentStore struct {
	mu       sync.RWMutex
	comments map[int64]moderation.Comment
	nextID   int64
}

// NewCommentStore creates an empty comment store
func NewCommentStore() *CommentStore {
	return &CommentStore{comments: make(map[int64]moderation.Comment)}
}

func (s *CommentStore) Create(ctx context.Context, comment *moderation.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	comment.ID = s.nextID
	s.comments[comment.ID] = *comment
	return nil
}

func (s *CommentStore) Get(ctx context.Context, id int64) (*moderation.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[id]
	if !ok {
		return nil, fmt.Errorf("%w: comment %d", moderation.ErrNotFound, id)
	}
	return &c, nil
}

func (s *CommentStore) ListByArticle(ctx context.Context, articleID int64) ([]*moderation.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*moderation.Comment
	for _, c := range s.comments {
		if c.ArticleID == articleID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *CommentStore) Update(ctx context.Context, comment *moderation.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.comments[comment.ID]
	if !ok {
		return fmt.Errorf("%w: comment %d", moderation.ErrNotFound, comment.ID)
	}
	current.Content = comment.Content
	current.UpdatedBy = comment.UpdatedBy
	current.UpdatedAt = comment.UpdatedAt
	s.comments[comment.ID] = current
	return nil
}

func (s *CommentStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comments[id]; !ok {
		return fmt.Errorf("%w: comment %d", moderation.ErrNotFound, id)
	}
	delete(s.comments, id)
	return nil
}
