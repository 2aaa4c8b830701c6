package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Comment is a reader comment on a canonical article.
type Comment struct {
	ID         int64     `json:"id"`
	ArticleID  int64     `json:"article_id"`
	AuthorName string    `json:"name,omitempty"`
	Content    string    `json:"content" validate:"required,max=10000"`
	CreatedBy  string    `json:"created_by"`
	UpdatedBy  string    `json:"updated_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func validateComment(c *Comment) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: invalid comment: %v", ErrBadRequest, err)
	}
	return nil
}

// requireArticle checks that articleID names a canonical article.
func (s *Service) requireArticle(ctx context.Context, articleID int64) error {
	if _, err := s.articles.Backend().Canonical().Get(ctx, articleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return &RecordError{Kind: KindArticle, ID: articleID, Op: "load", Err: err}
		}
		return err
	}
	return nil
}

// AddComment publishes a comment on an approved article.
func (s *Service) AddComment(ctx context.Context, actor Actor, articleID int64, content string) (*Comment, error) {
	if actor.Anonymous() {
		return nil, fmt.Errorf("%w: anonymous actors cannot comment", ErrForbidden)
	}
	if err := s.requireArticle(ctx, articleID); err != nil {
		return nil, err
	}

	now := s.now()
	c := &Comment{
		ArticleID:  articleID,
		AuthorName: actor.Username,
		Content:    strings.TrimSpace(content),
		CreatedBy:  actor.ID,
		UpdatedBy:  actor.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := validateComment(c); err != nil {
		return nil, err
	}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	s.logger.Info("comment added", "comment_id", c.ID, "article_id", articleID, "actor", actor.ID)
	return c, nil
}

// GetComment returns a comment whose article is still canonical.
func (s *Service) GetComment(ctx context.Context, id int64) (*Comment, error) {
	c, err := s.comments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get comment %d: %w", id, err)
	}
	if err := s.requireArticle(ctx, c.ArticleID); err != nil {
		return nil, fmt.Errorf("get comment %d: %w", id, err)
	}
	return c, nil
}

// ListComments returns the comments of a canonical article, oldest first.
func (s *Service) ListComments(ctx context.Context, articleID int64) ([]*Comment, error) {
	if err := s.requireArticle(ctx, articleID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByArticle(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("list comments of article %d: %w", articleID, err)
	}
	if comments == nil {
		comments = []*Comment{}
	}
	return comments, nil
}

// UpdateComment replaces the content of a comment. Only its author may edit it.
func (s *Service) UpdateComment(ctx context.Context, actor Actor, id int64, content string) (*Comment, error) {
	c, err := s.GetComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Anonymous() || c.CreatedBy != actor.ID {
		return nil, fmt.Errorf("%w: cannot update another user's comment", ErrForbidden)
	}

	c.Content = strings.TrimSpace(content)
	c.UpdatedBy = actor.ID
	c.UpdatedAt = s.now()
	if err := validateComment(c); err != nil {
		return nil, err
	}
	if err := s.comments.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update comment %d: %w", id, err)
	}
	return c, nil
}

// DeleteComment removes a comment. Its author and admins may delete it.
func (s *Service) DeleteComment(ctx context.Context, actor Actor, id int64) error {
	c, err := s.comments.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("delete comment %d: %w", id, err)
	}
	if !actor.IsAdmin() && (actor.Anonymous() || c.CreatedBy != actor.ID) {
		return fmt.Errorf("%w: cannot delete another user's comment", ErrForbidden)
	}
	if err := s.comments.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete comment %d: %w", id, err)
	}
	s.logger.Info("comment deleted", "comment_id", id, "actor", actor.ID)
	return nil
}
